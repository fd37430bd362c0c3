package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/env"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
	"github.com/rcfaria/go-whatsapp-session-api/pkg/validation"
)

// SendRequest is the normalized outbound message request handed to the
// facade. Content holds the text body or media caption; MediaURL references
// the payload for non-text kinds.
type SendRequest struct {
	To       string
	Kind     MessageKind
	Content  string
	MediaURL string
	FileName string
}

// Config tunes the lifecycle policy. Zero values fall back to the env-driven
// defaults used in production.
type Config struct {
	ReconnectDelay time.Duration
	DialTimeout    time.Duration
	LogoutTimeout  time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = env.GetEnvDurationOrDefault("SESSION_RECONNECT_DELAY", 2*time.Second)
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = env.GetEnvDurationOrDefault("SESSION_DIAL_TIMEOUT", 2*time.Minute)
	}
	if c.LogoutTimeout <= 0 {
		c.LogoutTimeout = env.GetEnvDurationOrDefault("SESSION_LOGOUT_TIMEOUT", 30*time.Second)
	}
	return c
}

// Manager is the session API facade. It owns the registry and starts one
// controller per live transport.
type Manager struct {
	registry *Registry
	dialer   Dialer
	creds    CredentialStore
	media    MediaFetcher
	notifier Notifier
	cfg      Config
}

func NewManager(dialer Dialer, creds CredentialStore, media MediaFetcher, notifier Notifier, cfg Config) *Manager {
	return &Manager{
		registry: NewRegistry(),
		dialer:   dialer,
		creds:    creds,
		media:    media,
		notifier: notifier,
		cfg:      cfg.withDefaults(),
	}
}

// Registry exposes the registry for read-side collaborators (health routine).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// CreateSession registers a session, opens its transport and starts the
// event subscription. It returns the current snapshot without waiting for a
// QR or open event.
func (m *Manager) CreateSession(ctx context.Context, id string) (Status, error) {
	if err := validation.ValidateSessionID(id); err != nil {
		return Status{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	if _, err := m.registry.Register(id); err != nil {
		return Status{}, err
	}

	if err := m.creds.Ensure(ctx, id); err != nil {
		m.markConnectFailed(id)
		return Status{}, fmt.Errorf("prepare credential store: %w", err)
	}

	t, err := m.dialer.Dial(ctx, id)
	if err != nil {
		m.markConnectFailed(id)
		return Status{}, transportErr("connect", err)
	}

	gen, err := m.registry.AttachHandle(id, t)
	if err != nil {
		// Session was deleted while the transport was connecting.
		t.Disconnect()
		return Status{}, err
	}

	m.startController(id, gen, t)

	log.SessionOp(id, "create").Info("Session created")
	if m.notifier != nil {
		m.notifier.SessionEvent(id, "connection.connecting", nil)
	}
	st, _ := m.registry.Get(id)
	return st, nil
}

// SessionInfo returns the current snapshot for one session.
func (m *Manager) SessionInfo(id string) (Status, error) {
	st, ok := m.registry.Get(id)
	if !ok {
		return Status{}, ErrNotFound
	}
	return st, nil
}

// Sessions returns snapshots of every known session.
func (m *Manager) Sessions() []Status {
	return m.registry.List()
}

// DisconnectSession logs the session out of its transport. The logout close
// is terminal, so the controller will not schedule a reconnect; credential
// material is removed so a later create must re-pair via QR.
func (m *Manager) DisconnectSession(ctx context.Context, id string) error {
	t, ok := m.registry.DetachHandle(id)
	if !ok {
		return ErrNotFound
	}

	logoutCtx, cancel := context.WithTimeout(ctx, m.cfg.LogoutTimeout)
	defer cancel()
	if err := t.Logout(logoutCtx); err != nil {
		log.SessionOp(id, "disconnect").WithError(err).Warn("Transport logout failed, dropping connection")
		t.Disconnect()
	}

	m.registry.UpdateStatus(id, func(s *Status) {
		s.State = StateDisconnected
		s.QRCode = ""
	})

	if err := m.creds.Delete(ctx, id); err != nil {
		return transportErr("delete credentials", err)
	}

	log.SessionOp(id, "disconnect").Info("Session disconnected")
	return nil
}

// DeleteSession tears the session down completely: handle, status record and
// credential material. It is idempotent; deleting an unknown session is not
// an error.
func (m *Manager) DeleteSession(ctx context.Context, id string) error {
	if t, ok := m.registry.DetachHandle(id); ok {
		logoutCtx, cancel := context.WithTimeout(ctx, m.cfg.LogoutTimeout)
		if err := t.Logout(logoutCtx); err != nil {
			log.SessionOp(id, "delete").WithError(err).Warn("Transport logout failed, dropping connection")
			t.Disconnect()
		}
		cancel()
	}

	m.registry.Remove(id)

	if err := m.creds.Delete(ctx, id); err != nil {
		return transportErr("delete credentials", err)
	}

	log.SessionOp(id, "delete").Info("Session deleted")
	return nil
}

// SendMessage composes and forwards one outbound message through the
// session's live transport.
func (m *Manager) SendMessage(ctx context.Context, id string, req SendRequest) error {
	st, ok := m.registry.Get(id)
	if !ok {
		return ErrNotFound
	}
	if st.State != StateConnected {
		return ErrNotConnected
	}

	t, ok := m.registry.Handle(id)
	if !ok {
		return ErrNotFound
	}

	if strings.TrimSpace(req.To) == "" {
		return fmt.Errorf("%w: destination is required", ErrInvalidArgument)
	}
	if !strings.Contains(req.To, "@") {
		if err := validation.ValidatePhone(req.To); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
	}

	msg, err := m.composeMessage(ctx, req)
	if err != nil {
		return err
	}

	to := NormalizeDestination(req.To)
	if err := t.Send(ctx, to, msg); err != nil {
		return transportErr("send", err)
	}

	log.SessionOp(id, "send").
		WithField("to", to).
		WithField("kind", string(req.Kind)).
		Info("Message sent")
	if m.notifier != nil {
		m.notifier.SessionEvent(id, "message.sent", map[string]interface{}{
			"to":   to,
			"type": string(req.Kind),
		})
	}
	return nil
}

func (m *Manager) composeMessage(ctx context.Context, req SendRequest) (Message, error) {
	switch req.Kind {
	case KindText:
		if req.Content == "" {
			return Message{}, fmt.Errorf("%w: content is required for text messages", ErrInvalidArgument)
		}
		if err := validation.ValidateMessageText(req.Content); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}
		return Message{Kind: KindText, Text: req.Content}, nil

	case KindImage, KindVideo, KindAudio, KindDocument:
		if req.MediaURL == "" {
			return Message{}, fmt.Errorf("%w: media url is required for %s messages", ErrInvalidArgument, req.Kind)
		}
		if err := validation.ValidateURL(req.MediaURL); err != nil {
			return Message{}, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
		}

		data, mimeType, err := m.media.Fetch(ctx, req.MediaURL)
		if err != nil {
			return Message{}, fmt.Errorf("fetch media: %w", err)
		}

		msg := Message{
			Kind:     req.Kind,
			Text:     req.Content,
			Media:    data,
			MimeType: mimeType,
		}
		switch req.Kind {
		case KindAudio:
			if msg.MimeType == "" {
				msg.MimeType = "audio/mp4"
			}
		case KindDocument:
			if msg.MimeType == "" {
				msg.MimeType = "application/pdf"
			}
			msg.FileName = req.FileName
			if msg.FileName == "" {
				msg.FileName = "document.pdf"
			}
		}
		return msg, nil

	default:
		return Message{}, fmt.Errorf("%w: unsupported message type %q", ErrInvalidArgument, req.Kind)
	}
}

func (m *Manager) startController(id string, gen uint64, t Transport) {
	ctl := &Controller{
		id:             id,
		gen:            gen,
		registry:       m.registry,
		creds:          m.creds,
		dialer:         m.dialer,
		notifier:       m.notifier,
		reconnectDelay: m.cfg.ReconnectDelay,
		dialTimeout:    m.cfg.DialTimeout,
	}
	go ctl.Run(t)
}

// RedialStalled opens fresh transports for sessions stuck in the connecting
// state with no live handle, which happens when a scheduled reconnect
// attempt failed. Returns how many sessions were revived.
func (m *Manager) RedialStalled(ctx context.Context) int {
	revived := 0
	for _, st := range m.registry.List() {
		if st.State != StateConnecting {
			continue
		}
		if _, ok := m.registry.Handle(st.ID); ok {
			continue
		}

		t, err := m.dialer.Dial(ctx, st.ID)
		if err != nil {
			log.SessionOp(st.ID, "redial").WithError(err).Warn("Redial failed")
			continue
		}

		gen, ok := m.registry.AttachIfIdle(st.ID, t)
		if !ok {
			t.Disconnect()
			continue
		}

		m.startController(st.ID, gen, t)
		log.SessionOp(st.ID, "redial").Info("Transport re-established")
		revived++
	}
	return revived
}

func (m *Manager) markConnectFailed(id string) {
	m.registry.UpdateStatus(id, func(s *Status) {
		s.State = StateDisconnected
		s.QRCode = ""
	})
}

// NormalizeDestination maps a bare phone number to a direct-message address
// and passes already-qualified group or direct addresses through unchanged.
func NormalizeDestination(to string) string {
	to = strings.TrimSpace(to)
	if strings.ContainsRune(to, '@') {
		return to
	}
	return strings.TrimPrefix(to, "+") + "@" + DefaultUserServer
}
