package session

import (
	"time"
)

// State is the connection state of one session as exposed on the wire.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	// StateAwaitingScan means a pairing QR code has been issued and the
	// session is waiting for the user to scan it on a phone.
	StateAwaitingScan State = "qr"
)

// Status is the externally visible record of one session. QRCode is only
// present while State is StateAwaitingScan. LastConnected is retained as
// history after a disconnect.
type Status struct {
	ID            string     `json:"id"`
	State         State      `json:"status"`
	QRCode        string     `json:"qr,omitempty"`
	PhoneNumber   string     `json:"phoneNumber,omitempty"`
	LastConnected *time.Time `json:"lastConnected,omitempty"`
}

func (s *Status) clone() Status {
	out := *s
	if s.LastConnected != nil {
		t := *s.LastConnected
		out.LastConnected = &t
	}
	return out
}
