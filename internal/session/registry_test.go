package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryRegisterInitialState(t *testing.T) {
	r := NewRegistry()

	st, err := r.Register("alpha")
	require.NoError(t, err)
	assert.Equal(t, "alpha", st.ID)
	assert.Equal(t, StateConnecting, st.State)
	assert.Empty(t, st.QRCode)
	assert.Nil(t, st.LastConnected)
}

func TestRegistryRegisterRejectsLiveSession(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)
	_, err = r.AttachHandle("alpha", newFakeTransport())
	require.NoError(t, err)

	_, err = r.Register("alpha")
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestRegistryRegisterReusesDisconnectedRecord(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)
	r.UpdateStatus("alpha", func(s *Status) {
		s.State = StateDisconnected
		s.PhoneNumber = "5511999999999"
	})

	st, err := r.Register("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, st.State)
	// History survives re-registration.
	assert.Equal(t, "5511999999999", st.PhoneNumber)
}

func TestRegistryAttachHandleUnknownSession(t *testing.T) {
	r := NewRegistry()

	_, err := r.AttachHandle("ghost", newFakeTransport())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegistryUpdateStatusUnknownSessionIsNoop(t *testing.T) {
	r := NewRegistry()

	applied := r.UpdateStatus("ghost", func(s *Status) {
		s.State = StateConnected
	})
	assert.False(t, applied)
}

func TestRegistrySnapshotsAreIsolated(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)

	st, ok := r.Get("alpha")
	require.True(t, ok)
	st.State = StateConnected
	st.QRCode = "mutated"

	fresh, ok := r.Get("alpha")
	require.True(t, ok)
	assert.Equal(t, StateConnecting, fresh.State)
	assert.Empty(t, fresh.QRCode)
}

func TestRegistryListOrderedByID(t *testing.T) {
	r := NewRegistry()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		_, err := r.Register(id)
		require.NoError(t, err)
	}

	list := r.List()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].ID)
	assert.Equal(t, "bravo", list[1].ID)
	assert.Equal(t, "charlie", list[2].ID)
}

func TestRegistryDetachArbitration(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)
	tr := newFakeTransport()
	_, err = r.AttachHandle("alpha", tr)
	require.NoError(t, err)

	var wins int
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := r.DetachHandle("alpha"); ok {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins, "exactly one concurrent detach must win")
	_, ok := r.Handle("alpha")
	assert.False(t, ok)
}

func TestRegistryDetachIfCurrentRejectsStaleGeneration(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)
	oldGen, err := r.AttachHandle("alpha", newFakeTransport())
	require.NoError(t, err)

	// Simulate a successor transport taking over.
	_, ok := r.DetachHandle("alpha")
	require.True(t, ok)
	newGen, ok := r.ReattachIfCurrent("alpha", oldGen, newFakeTransport())
	require.True(t, ok)
	require.NotEqual(t, oldGen, newGen)

	_, ok = r.DetachIfCurrent("alpha", oldGen)
	assert.False(t, ok, "stale controller must not detach the successor's handle")

	_, ok = r.DetachIfCurrent("alpha", newGen)
	assert.True(t, ok)
}

func TestRegistryReattachIfCurrentAfterRemove(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)
	gen, err := r.AttachHandle("alpha", newFakeTransport())
	require.NoError(t, err)
	_, ok := r.DetachHandle("alpha")
	require.True(t, ok)

	r.Remove("alpha")

	_, ok = r.ReattachIfCurrent("alpha", gen, newFakeTransport())
	assert.False(t, ok, "removed session must not be resurrected")
	assert.Equal(t, 0, r.Len())
}

func TestRegistryRemoveReturnsHandle(t *testing.T) {
	r := NewRegistry()

	_, err := r.Register("alpha")
	require.NoError(t, err)
	tr := newFakeTransport()
	_, err = r.AttachHandle("alpha", tr)
	require.NoError(t, err)

	got, ok := r.Remove("alpha")
	require.True(t, ok)
	assert.Same(t, tr, got)

	_, ok = r.Get("alpha")
	assert.False(t, ok)

	_, ok = r.Remove("alpha")
	assert.False(t, ok)
}
