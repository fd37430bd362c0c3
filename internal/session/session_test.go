package session

import (
	"context"
	"errors"
	"sync"
)

type sendCall struct {
	To  string
	Msg Message
}

type fakeTransport struct {
	mu           sync.Mutex
	events       chan Event
	sends        []sendCall
	sendErr      error
	logoutErr    error
	loggedOut    bool
	disconnected bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan Event, 16)}
}

func (t *fakeTransport) Events() <-chan Event {
	return t.events
}

func (t *fakeTransport) Send(_ context.Context, to string, msg Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.sendErr != nil {
		return t.sendErr
	}
	t.sends = append(t.sends, sendCall{To: to, Msg: msg})
	return nil
}

func (t *fakeTransport) Logout(context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.loggedOut = true
	return t.logoutErr
}

func (t *fakeTransport) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.disconnected = true
}

func (t *fakeTransport) emit(e Event) {
	t.events <- e
}

// closeWith emits the final close event and ends the stream, the way a real
// transport does.
func (t *fakeTransport) closeWith(e ClosedEvent) {
	t.events <- e
	close(t.events)
}

func (t *fakeTransport) sentMessages() []sendCall {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]sendCall, len(t.sends))
	copy(out, t.sends)
	return out
}

func (t *fakeTransport) wasLoggedOut() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loggedOut
}

func (t *fakeTransport) wasDisconnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.disconnected
}

type fakeDialer struct {
	mu         sync.Mutex
	transports []*fakeTransport
	dials      int
	dialErr    error
}

func (d *fakeDialer) Dial(context.Context, string) (Transport, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	t := newFakeTransport()
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.transports) {
		return nil
	}
	return d.transports[i]
}

type fakeCredStore struct {
	mu        sync.Mutex
	ensured   map[string]int
	persisted map[string][][]byte
	deleted   map[string]int
	deleteErr error
}

func newFakeCredStore() *fakeCredStore {
	return &fakeCredStore{
		ensured:   make(map[string]int),
		persisted: make(map[string][][]byte),
		deleted:   make(map[string]int),
	}
}

func (s *fakeCredStore) Ensure(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensured[id]++
	return nil
}

func (s *fakeCredStore) Persist(_ context.Context, id string, material []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.persisted[id] = append(s.persisted[id], material)
	return nil
}

func (s *fakeCredStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.deleteErr != nil {
		return s.deleteErr
	}
	s.deleted[id]++
	return nil
}

func (s *fakeCredStore) deleteCount(id string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleted[id]
}

type fakeMediaFetcher struct {
	mu       sync.Mutex
	data     []byte
	mimeType string
	err      error
	fetches  int
}

func (f *fakeMediaFetcher) Fetch(context.Context, string) ([]byte, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetches++
	if f.err != nil {
		return nil, "", f.err
	}
	return f.data, f.mimeType, nil
}

func (f *fakeMediaFetcher) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

var errDialRefused = errors.New("dial refused")
