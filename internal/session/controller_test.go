package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testReconnectDelay = 20 * time.Millisecond
	waitTimeout        = 2 * time.Second
	waitTick           = 5 * time.Millisecond
)

func testConfig() Config {
	return Config{
		ReconnectDelay: testReconnectDelay,
		DialTimeout:    time.Second,
		LogoutTimeout:  time.Second,
	}
}

// startSession creates a manager with fake collaborators and one live
// session, returning its first transport.
func startSession(t *testing.T, id string) (*Manager, *fakeDialer, *fakeTransport) {
	t.Helper()

	dialer := &fakeDialer{}
	m := NewManager(dialer, newFakeCredStore(), &fakeMediaFetcher{}, nil, testConfig())

	_, err := m.CreateSession(context.Background(), id)
	require.NoError(t, err)

	tr := dialer.transport(0)
	require.NotNil(t, tr)
	return m, dialer, tr
}

func sessionState(m *Manager, id string) State {
	st, ok := m.Registry().Get(id)
	if !ok {
		return ""
	}
	return st.State
}

func TestControllerQREvent(t *testing.T) {
	m, _, tr := startSession(t, "alpha")

	tr.emit(QREvent{Code: "qr-payload-1"})

	assert.Eventually(t, func() bool {
		st, _ := m.Registry().Get("alpha")
		return st.State == StateAwaitingScan && st.QRCode == "qr-payload-1"
	}, waitTimeout, waitTick)
}

func TestControllerQRRotation(t *testing.T) {
	m, _, tr := startSession(t, "alpha")

	tr.emit(QREvent{Code: "qr-payload-1"})
	tr.emit(QREvent{Code: "qr-payload-2"})

	assert.Eventually(t, func() bool {
		st, _ := m.Registry().Get("alpha")
		return st.State == StateAwaitingScan && st.QRCode == "qr-payload-2"
	}, waitTimeout, waitTick)
}

func TestControllerOpenEvent(t *testing.T) {
	m, _, tr := startSession(t, "alpha")

	tr.emit(QREvent{Code: "qr-payload-1"})
	tr.emit(OpenedEvent{PhoneNumber: "5511999999999"})

	assert.Eventually(t, func() bool {
		st, _ := m.Registry().Get("alpha")
		return st.State == StateConnected &&
			st.QRCode == "" &&
			st.PhoneNumber == "5511999999999" &&
			st.LastConnected != nil
	}, waitTimeout, waitTick)
}

func TestControllerTransientCloseReconnects(t *testing.T) {
	m, dialer, tr := startSession(t, "alpha")

	tr.emit(OpenedEvent{PhoneNumber: "5511999999999"})
	require.Eventually(t, func() bool {
		return sessionState(m, "alpha") == StateConnected
	}, waitTimeout, waitTick)

	tr.closeWith(ClosedEvent{LoggedOut: false, Reason: "connection lost"})

	// The gap: status back to connecting, sends rejected.
	require.Eventually(t, func() bool {
		return sessionState(m, "alpha") == StateConnecting
	}, waitTimeout, waitTick)

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511888888888", Kind: KindText, Content: "hi",
	})
	assert.ErrorIs(t, err, ErrNotConnected)

	// After the policy delay a fresh transport is attached and a new
	// connecting/QR cycle can begin.
	require.Eventually(t, func() bool {
		_, hasHandle := m.Registry().Handle("alpha")
		return hasHandle && dialer.dialCount() == 2
	}, waitTimeout, waitTick)

	next := dialer.transport(1)
	require.NotNil(t, next)
	next.emit(QREvent{Code: "qr-after-reconnect"})
	assert.Eventually(t, func() bool {
		st, _ := m.Registry().Get("alpha")
		return st.State == StateAwaitingScan && st.QRCode == "qr-after-reconnect"
	}, waitTimeout, waitTick)

	// History from the first connection survives the drop.
	st, _ := m.Registry().Get("alpha")
	assert.NotNil(t, st.LastConnected)
}

func TestControllerLogoutCloseIsTerminal(t *testing.T) {
	m, dialer, tr := startSession(t, "alpha")

	tr.emit(OpenedEvent{PhoneNumber: "5511999999999"})
	require.Eventually(t, func() bool {
		return sessionState(m, "alpha") == StateConnected
	}, waitTimeout, waitTick)

	tr.closeWith(ClosedEvent{LoggedOut: true, Reason: "logged out"})

	require.Eventually(t, func() bool {
		return sessionState(m, "alpha") == StateDisconnected
	}, waitTimeout, waitTick)

	// No reconnect may fire after the policy delay.
	time.Sleep(3 * testReconnectDelay)
	assert.Equal(t, 1, dialer.dialCount())

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511888888888", Kind: KindText, Content: "hi",
	})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestControllerReconnectFailureDoesNotRetry(t *testing.T) {
	m, dialer, tr := startSession(t, "alpha")

	dialer.mu.Lock()
	dialer.dialErr = errDialRefused
	dialer.mu.Unlock()

	tr.closeWith(ClosedEvent{LoggedOut: false, Reason: "stream error"})

	require.Eventually(t, func() bool {
		return dialer.dialCount() == 2
	}, waitTimeout, waitTick)

	// One attempt only; the session stays in connecting with no handle.
	time.Sleep(3 * testReconnectDelay)
	assert.Equal(t, 2, dialer.dialCount())
	assert.Equal(t, StateConnecting, sessionState(m, "alpha"))
	_, hasHandle := m.Registry().Handle("alpha")
	assert.False(t, hasHandle)
}

func TestControllerDeleteCancelsPendingReconnect(t *testing.T) {
	m, dialer, tr := startSession(t, "alpha")

	tr.closeWith(ClosedEvent{LoggedOut: false, Reason: "connection lost"})
	require.Eventually(t, func() bool {
		_, hasHandle := m.Registry().Handle("alpha")
		return !hasHandle
	}, waitTimeout, waitTick)

	require.NoError(t, m.DeleteSession(context.Background(), "alpha"))

	time.Sleep(3 * testReconnectDelay)
	assert.Equal(t, 0, m.Registry().Len(), "deleted session must not be resurrected")
	// A transport dialed by the racing timer, if any, must be torn down.
	if dialer.dialCount() > 1 {
		assert.Eventually(t, func() bool {
			next := dialer.transport(1)
			return next.wasDisconnected() || next.wasLoggedOut()
		}, waitTimeout, waitTick)
	}
}

func TestControllerLosesDetachRaceAgainstDisconnect(t *testing.T) {
	m, dialer, tr := startSession(t, "alpha")

	tr.emit(OpenedEvent{PhoneNumber: "5511999999999"})
	require.Eventually(t, func() bool {
		return sessionState(m, "alpha") == StateConnected
	}, waitTimeout, waitTick)

	// Facade disconnect wins the detach before the close event is handled.
	require.NoError(t, m.DisconnectSession(context.Background(), "alpha"))
	tr.closeWith(ClosedEvent{LoggedOut: false, Reason: "connection lost"})

	time.Sleep(3 * testReconnectDelay)
	assert.Equal(t, 1, dialer.dialCount(), "loser of the detach race must not schedule a reconnect")
	assert.Equal(t, StateDisconnected, sessionState(m, "alpha"))
}

func TestControllerForwardsCredentialRefresh(t *testing.T) {
	dialer := &fakeDialer{}
	creds := newFakeCredStore()
	m := NewManager(dialer, creds, &fakeMediaFetcher{}, nil, testConfig())

	_, err := m.CreateSession(context.Background(), "alpha")
	require.NoError(t, err)

	tr := dialer.transport(0)
	tr.emit(CredentialsEvent{Material: []byte("refreshed-keys")})

	assert.Eventually(t, func() bool {
		creds.mu.Lock()
		defer creds.mu.Unlock()
		got := creds.persisted["alpha"]
		return len(got) == 1 && string(got[0]) == "refreshed-keys"
	}, waitTimeout, waitTick)
}
