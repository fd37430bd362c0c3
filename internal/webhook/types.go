package webhook

import (
	"time"
)

type EventType string

const (
	EventConnectionConnecting   EventType = "connection.connecting"
	EventConnectionQR           EventType = "connection.qr"
	EventConnectionConnected    EventType = "connection.connected"
	EventConnectionDisconnected EventType = "connection.disconnected"
	EventConnectionLoggedOut    EventType = "connection.logged_out"
	EventMessageReceived        EventType = "message.received"
	EventMessageSent            EventType = "message.sent"
)

// KnownEventTypes lists every event a webhook may subscribe to.
var KnownEventTypes = []EventType{
	EventConnectionConnecting,
	EventConnectionQR,
	EventConnectionConnected,
	EventConnectionDisconnected,
	EventConnectionLoggedOut,
	EventMessageReceived,
	EventMessageSent,
}

func IsKnownEventType(e EventType) bool {
	for _, known := range KnownEventTypes {
		if known == e {
			return true
		}
	}
	return false
}

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
)

// Config is one webhook subscription for a session.
type Config struct {
	ID        string      `json:"id"`
	SessionID string      `json:"session_id"`
	URL       string      `json:"url"`
	Secret    string      `json:"-"`
	Events    []EventType `json:"events"`
	Active    bool        `json:"active"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// Event is the payload posted to subscribed endpoints.
type Event struct {
	EventType EventType              `json:"event_type"`
	SessionID string                 `json:"session_id"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

type DeliveryLog struct {
	ID           int64          `json:"id"`
	WebhookID    string         `json:"webhook_id"`
	EventType    EventType      `json:"event_type"`
	Status       DeliveryStatus `json:"status"`
	AttemptCount int            `json:"attempt_count"`
	LastError    string         `json:"last_error,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
