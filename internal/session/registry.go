package session

import (
	"sort"
	"sync"

	"github.com/rcfaria/go-whatsapp-session-api/pkg/log"
)

type entry struct {
	status *Status
	handle Transport
	// gen is bumped on every handle attach. A scheduled reconnect callback
	// only proceeds when its generation still matches, so a deleted or
	// re-created session is never resurrected by a stale timer.
	gen uint64
}

// Registry is the single source of truth for session status records and live
// transport handles. Every read and write goes through its mutex; mutators
// passed to UpdateStatus run under the lock and must not block or call back
// into the Registry.
type Registry struct {
	mu      sync.Mutex
	entries map[string]*entry
	nextGen uint64
}

func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*entry),
	}
}

// Register creates the status record for a session in StateConnecting. It
// fails with ErrAlreadyExists when the session already has a live handle.
// A record left over from a disconnected session is reset instead, keeping
// LastConnected as history.
func (r *Registry) Register(id string) (Status, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if ok && e.handle != nil {
		return Status{}, ErrAlreadyExists
	}
	if !ok {
		e = &entry{status: &Status{ID: id}}
		r.entries[id] = e
	}
	e.status.State = StateConnecting
	e.status.QRCode = ""
	return e.status.clone(), nil
}

// AttachHandle associates a live transport with an existing record and
// returns the new handle generation.
func (r *Registry) AttachHandle(id string, t Transport) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return 0, ErrNotFound
	}
	r.nextGen++
	e.handle = t
	e.gen = r.nextGen
	return e.gen, nil
}

// ReattachIfCurrent attaches a transport only when the session still exists,
// has no handle, and its generation is unchanged since the caller observed
// it. Used by the reconnect timer callback.
func (r *Registry) ReattachIfCurrent(id string, gen uint64, t Transport) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.handle != nil || e.gen != gen {
		return 0, false
	}
	r.nextGen++
	e.handle = t
	e.gen = r.nextGen
	return e.gen, true
}

// AttachIfIdle attaches a transport only when the session exists and has no
// live handle, regardless of generation. Used to revive sessions whose
// reconnect attempt failed.
func (r *Registry) AttachIfIdle(id string, t Transport) (uint64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.handle != nil {
		return 0, false
	}
	r.nextGen++
	e.handle = t
	e.gen = r.nextGen
	return e.gen, true
}

// StillCurrent reports whether the session exists with an unchanged
// generation and no handle attached.
func (r *Registry) StillCurrent(id string, gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	return ok && e.handle == nil && e.gen == gen
}

// UpdateStatus atomically applies a transition to the status record. An
// unknown id is an expected race with deletion and is silently absorbed.
func (r *Registry) UpdateStatus(id string, mutate func(*Status)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		log.SessionOp(id, "update-status").Debug("Dropping status update for unknown session")
		return false
	}
	mutate(e.status)
	return true
}

// DetachHandle removes the live handle, keeping the status record. The
// returned bool reports whether a handle was present, which arbitrates
// between a concurrent disconnect call and the controller's own close
// handling: the first caller wins, the second no-ops.
func (r *Registry) DetachHandle(id string) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.handle == nil {
		return nil, false
	}
	t := e.handle
	e.handle = nil
	return t, true
}

// DetachIfCurrent removes the handle only when the generation matches, so a
// stale controller cannot detach a successor's transport.
func (r *Registry) DetachIfCurrent(id string, gen uint64) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.handle == nil || e.gen != gen {
		return nil, false
	}
	t := e.handle
	e.handle = nil
	return t, true
}

// Get returns a snapshot of the session's status.
func (r *Registry) Get(id string) (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return Status{}, false
	}
	return e.status.clone(), true
}

// List returns snapshots of all sessions, ordered by id.
func (r *Registry) List() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.status.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Handle returns the live transport for a session, if any.
func (r *Registry) Handle(id string) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// Remove deletes both the handle and the status record, returning the
// detached handle for teardown.
func (r *Registry) Remove(id string) (Transport, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	delete(r.entries, id)
	return e.handle, e.handle != nil
}

// Len reports the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
