package session

import (
	"context"
	"time"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
)

// Controller drives one transport's event stream for one session. A new
// instance is created for every transport, including every reconnect
// attempt; its generation ties it to the handle it was started with.
type Controller struct {
	id       string
	gen      uint64
	registry *Registry
	creds    CredentialStore
	dialer   Dialer
	notifier Notifier

	reconnectDelay time.Duration
	dialTimeout    time.Duration
}

// Run consumes the transport's event stream until it ends. It is meant to be
// started as `go ctl.Run(t)` right after the handle is attached.
func (c *Controller) Run(t Transport) {
	for evt := range t.Events() {
		switch e := evt.(type) {
		case QREvent:
			c.registry.UpdateStatus(c.id, func(s *Status) {
				s.State = StateAwaitingScan
				s.QRCode = e.Code
			})
			log.SessionOp(c.id, "qr").Info("Pairing code issued")
			c.notify("connection.qr", nil)

		case OpenedEvent:
			now := time.Now()
			c.registry.UpdateStatus(c.id, func(s *Status) {
				s.State = StateConnected
				s.QRCode = ""
				s.PhoneNumber = e.PhoneNumber
				s.LastConnected = &now
			})
			log.SessionOp(c.id, "open").Info("Connection opened")
			c.notify("connection.connected", map[string]interface{}{
				"phone_number": e.PhoneNumber,
			})

		case CredentialsEvent:
			ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
			if err := c.creds.Persist(ctx, c.id, e.Material); err != nil {
				log.SessionOp(c.id, "creds").WithError(err).Error("Failed to persist refreshed credentials")
			}
			cancel()

		case MessagesEvent:
			log.SessionOp(c.id, "receive").WithField("count", e.Count).Info("Received messages")
			c.notify("message.received", map[string]interface{}{
				"count": e.Count,
			})

		case ClosedEvent:
			c.handleClose(e)
			return
		}
	}
	// Stream ended without a close event; the transport is gone either way.
	c.registry.DetachIfCurrent(c.id, c.gen)
}

func (c *Controller) handleClose(e ClosedEvent) {
	if _, ok := c.registry.DetachIfCurrent(c.id, c.gen); !ok {
		// A concurrent disconnect/delete already won the detach, or a newer
		// transport owns this session now. Nothing left to do here.
		return
	}

	if e.LoggedOut {
		c.registry.UpdateStatus(c.id, func(s *Status) {
			s.State = StateDisconnected
			s.QRCode = ""
		})
		log.SessionOp(c.id, "close").Info("Session logged out")
		c.notify("connection.logged_out", nil)
		return
	}

	c.registry.UpdateStatus(c.id, func(s *Status) {
		s.State = StateConnecting
		s.QRCode = ""
	})
	log.SessionOp(c.id, "close").WithField("reason", e.Reason).Warn("Connection closed, scheduling reconnect")
	c.notify("connection.disconnected", map[string]interface{}{
		"reason": e.Reason,
	})

	time.AfterFunc(c.reconnectDelay, c.reconnect)
}

// reconnect runs once per non-logout close. Failures are logged and not
// retried; the session stays in StateConnecting with no handle until the
// caller or the health routine intervenes.
func (c *Controller) reconnect() {
	if !c.registry.StillCurrent(c.id, c.gen) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.dialTimeout)
	defer cancel()

	t, err := c.dialer.Dial(ctx, c.id)
	if err != nil {
		log.SessionOp(c.id, "reconnect").WithError(err).Error("Reconnection failed")
		return
	}

	gen, ok := c.registry.ReattachIfCurrent(c.id, c.gen, t)
	if !ok {
		// Session was deleted or re-created while dialing.
		t.Disconnect()
		return
	}

	log.SessionOp(c.id, "reconnect").Info("Transport re-established")
	next := c.successor(gen)
	go next.Run(t)
}

func (c *Controller) successor(gen uint64) *Controller {
	next := *c
	next.gen = gen
	return &next
}

func (c *Controller) notify(event string, data map[string]interface{}) {
	if c.notifier == nil {
		return
	}
	c.notifier.SessionEvent(c.id, event, data)
}
