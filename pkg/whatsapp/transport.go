package whatsapp

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	qrCode "github.com/skip2/go-qrcode"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
)

const (
	qrChannelWaitTimeout  = 2 * time.Minute
	routingUpdateTimeout  = 5 * time.Second
	eventStreamBufferSize = 32
)

var errClientNotReady = errors.New("whatsapp client is not connected and logged in")

// transport adapts one whatsmeow client to the session.Transport contract.
// Protocol callbacks are translated into the ordered event stream the
// lifecycle controller consumes.
type transport struct {
	sessionID string
	client    *whatsmeow.Client
	routing   *routingStore

	events    chan session.Event
	mu        sync.Mutex
	closed    bool
	handlerID uint32
}

func newTransport(sessionID string, client *whatsmeow.Client, routing *routingStore) *transport {
	return &transport{
		sessionID: sessionID,
		client:    client,
		routing:   routing,
		events:    make(chan session.Event, eventStreamBufferSize),
	}
}

// start registers the protocol event handler and connects. A device without
// stored credentials goes through the QR pairing flow; pairing codes are
// delivered on the event stream as they rotate.
func (t *transport) start(ctx context.Context) error {
	t.handlerID = t.client.AddEventHandler(t.handleEvent)

	if t.client.Store.ID == nil {
		qrCtx, cancel := context.WithTimeout(context.Background(), qrChannelWaitTimeout)

		qrChan, err := t.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			t.teardown()
			return err
		}

		if err := t.client.Connect(); err != nil {
			cancel()
			t.teardown()
			return err
		}

		go func() {
			defer cancel()
			t.pumpQR(qrChan)
		}()
		return nil
	}

	if err := t.client.Connect(); err != nil {
		t.teardown()
		return err
	}
	return nil
}

func (t *transport) Events() <-chan session.Event {
	return t.events
}

func (t *transport) Logout(ctx context.Context) error {
	if err := t.client.Logout(ctx); err != nil {
		t.teardown()
		return err
	}
	t.finishWith(session.ClosedEvent{LoggedOut: true, Reason: "logged out"})
	return nil
}

func (t *transport) Disconnect() {
	t.teardown()
}

// teardown drops the protocol connection and ends the event stream without
// a close event.
func (t *transport) teardown() {
	t.client.RemoveEventHandler(t.handlerID)
	t.client.Disconnect()
	t.closeStream()
}

func (t *transport) handleEvent(evt interface{}) {
	switch e := evt.(type) {
	case *events.Connected:
		jid := t.client.Store.ID
		if jid == nil {
			return
		}
		routingCtx, cancel := context.WithTimeout(context.Background(), routingUpdateTimeout)
		if err := t.routing.saveSessionRouting(routingCtx, t.sessionID, jid.String()); err != nil {
			log.SessionOp(t.sessionID, "routing").WithError(err).Error("Failed to save session routing")
		}
		cancel()
		t.emit(session.OpenedEvent{PhoneNumber: jid.User})

	case *events.LoggedOut:
		routingCtx, cancel := context.WithTimeout(context.Background(), routingUpdateTimeout)
		_ = t.routing.markActive(routingCtx, t.sessionID, false)
		cancel()
		t.finishWith(session.ClosedEvent{
			LoggedOut: true,
			Reason:    fmt.Sprintf("logged out by remote: %s", e.Reason),
		})

	case *events.StreamReplaced:
		t.finishWith(session.ClosedEvent{LoggedOut: false, Reason: "stream replaced by another client"})

	case *events.Disconnected:
		routingCtx, cancel := context.WithTimeout(context.Background(), routingUpdateTimeout)
		_ = t.routing.markActive(routingCtx, t.sessionID, false)
		cancel()
		t.finishWith(session.ClosedEvent{LoggedOut: false, Reason: "connection closed"})

	case *events.ConnectFailure:
		t.finishWith(session.ClosedEvent{
			LoggedOut: false,
			Reason:    fmt.Sprintf("connect failure: %s", e.Reason),
		})

	case *events.Message:
		t.emit(session.MessagesEvent{Count: 1})

	case *events.KeepAliveTimeout:
		log.SessionOp(t.sessionID, "keepalive").
			WithField("errors", e.ErrorCount).
			Warn("Client keepalive timeout")

	case *events.TemporaryBan:
		log.SessionOp(t.sessionID, "ban").
			WithField("code", e.Code.String()).
			Error("Client temporarily banned")
	}
}

// pumpQR forwards pairing codes from the whatsmeow QR channel onto the
// event stream as PNG data URIs.
func (t *transport) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			qrPNG, err := qrCode.Encode(item.Code, qrCode.Medium, 256)
			if err != nil {
				log.SessionOp(t.sessionID, "qr").WithError(err).Error("Failed to encode pairing code")
				continue
			}
			t.emit(session.QREvent{
				Code: "data:image/png;base64," + base64.StdEncoding.EncodeToString(qrPNG),
			})

		case whatsmeow.QRChannelSuccess.Event:
			// The Connected protocol event carries the open transition.
			return

		case whatsmeow.QRChannelTimeout.Event:
			t.client.Disconnect()
			t.finishWith(session.ClosedEvent{LoggedOut: false, Reason: "qr pairing timed out"})
			return

		case whatsmeow.QRChannelClientOutdated.Event:
			t.client.Disconnect()
			t.finishWith(session.ClosedEvent{LoggedOut: false, Reason: "client version outdated for qr pairing"})
			return

		case whatsmeow.QRChannelScannedWithoutMultidevice.Event:
			log.SessionOp(t.sessionID, "qr").Warn("QR scanned without multi-device enabled")

		case "error":
			reason := "qr channel error"
			if item.Error != nil {
				reason = item.Error.Error()
			}
			t.client.Disconnect()
			t.finishWith(session.ClosedEvent{LoggedOut: false, Reason: reason})
			return
		}
	}
}

// emit blocks until the controller takes the event. The controller reads
// the stream until it is closed, and closing happens under the same mutex,
// so the send cannot race the close and nothing is ever dropped.
func (t *transport) emit(e session.Event) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.events <- e
}

// finishWith emits the final close event and ends the stream. Later calls
// are no-ops, so racing protocol callbacks cannot double-close.
func (t *transport) finishWith(e session.ClosedEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	t.events <- e
	close(t.events)
}

func (t *transport) closeStream() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	close(t.events)
}
