package session

import (
	"context"
)

// DefaultUserServer is the addressing domain for direct-message destinations.
const DefaultUserServer = "s.whatsapp.net"

// MessageKind selects the payload shape of an outbound message.
type MessageKind string

const (
	KindText     MessageKind = "text"
	KindImage    MessageKind = "image"
	KindVideo    MessageKind = "video"
	KindAudio    MessageKind = "audio"
	KindDocument MessageKind = "document"
)

// Message is a composed outbound message ready for the transport. Text holds
// the body for text messages and the caption for media messages.
type Message struct {
	Kind     MessageKind
	Text     string
	Media    []byte
	MimeType string
	FileName string
}

// Event is one item on a transport's event stream. Events for one transport
// are delivered strictly in the order the transport emits them.
type Event interface {
	isEvent()
}

// QREvent carries a freshly issued (or rotated) pairing code.
type QREvent struct {
	Code string
}

// OpenedEvent signals the connection is authenticated and usable.
type OpenedEvent struct {
	PhoneNumber string
}

// ClosedEvent signals the connection ended. LoggedOut distinguishes an
// explicit user logout, which is terminal, from a transient drop.
type ClosedEvent struct {
	LoggedOut bool
	Reason    string
}

// CredentialsEvent carries refreshed credential material to persist.
type CredentialsEvent struct {
	Material []byte
}

// MessagesEvent signals a batch of inbound messages arrived.
type MessagesEvent struct {
	Count int
}

func (QREvent) isEvent()          {}
func (OpenedEvent) isEvent()      {}
func (ClosedEvent) isEvent()      {}
func (CredentialsEvent) isEvent() {}
func (MessagesEvent) isEvent()    {}

// Transport is one live protocol connection. Implementations close the
// Events channel after the final ClosedEvent.
type Transport interface {
	Events() <-chan Event
	Send(ctx context.Context, to string, msg Message) error
	Logout(ctx context.Context) error
	Disconnect()
}

// Dialer opens a new transport for a session against its stored credentials.
type Dialer interface {
	Dial(ctx context.Context, sessionID string) (Transport, error)
}

// CredentialStore owns per-session authentication material. Delete on an
// unknown session must succeed.
type CredentialStore interface {
	Ensure(ctx context.Context, sessionID string) error
	Persist(ctx context.Context, sessionID string, material []byte) error
	Delete(ctx context.Context, sessionID string) error
}

// MediaFetcher downloads referenced media payloads for outbound messages.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (data []byte, mimeType string, err error)
}

// Notifier receives session lifecycle and message notifications. Calls must
// not block; implementations queue or drop.
type Notifier interface {
	SessionEvent(sessionID string, event string, data map[string]interface{})
}
