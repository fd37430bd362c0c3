package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// connectedSession brings one session all the way to StateConnected.
func connectedSession(t *testing.T, id string) (*Manager, *fakeDialer, *fakeCredStore, *fakeMediaFetcher, *fakeTransport) {
	t.Helper()

	dialer := &fakeDialer{}
	creds := newFakeCredStore()
	media := &fakeMediaFetcher{data: []byte("media-bytes"), mimeType: "image/jpeg"}
	m := NewManager(dialer, creds, media, nil, testConfig())

	_, err := m.CreateSession(context.Background(), id)
	require.NoError(t, err)

	tr := dialer.transport(0)
	tr.emit(OpenedEvent{PhoneNumber: "5511999999999"})
	require.Eventually(t, func() bool {
		return sessionState(m, id) == StateConnected
	}, waitTimeout, waitTick)

	return m, dialer, creds, media, tr
}

func TestCreateSessionInitialState(t *testing.T) {
	dialer := &fakeDialer{}
	creds := newFakeCredStore()
	m := NewManager(dialer, creds, &fakeMediaFetcher{}, nil, testConfig())

	st, err := m.CreateSession(context.Background(), "alpha")
	require.NoError(t, err)

	assert.Equal(t, "alpha", st.ID)
	assert.Equal(t, StateConnecting, st.State)
	assert.Empty(t, st.QRCode)
	assert.Nil(t, st.LastConnected)
	assert.Equal(t, 1, dialer.dialCount())

	creds.mu.Lock()
	assert.Equal(t, 1, creds.ensured["alpha"])
	creds.mu.Unlock()
}

func TestCreateSessionRejectsDuplicate(t *testing.T) {
	m, dialer, _ := startSession(t, "alpha")

	_, err := m.CreateSession(context.Background(), "alpha")
	assert.ErrorIs(t, err, ErrAlreadyExists)
	assert.Equal(t, 1, dialer.dialCount())
}

func TestCreateSessionRejectsInvalidID(t *testing.T) {
	m := NewManager(&fakeDialer{}, newFakeCredStore(), &fakeMediaFetcher{}, nil, testConfig())

	for _, id := range []string{"", "has space", "has/slash"} {
		_, err := m.CreateSession(context.Background(), id)
		assert.ErrorIs(t, err, ErrInvalidArgument, "id %q", id)
	}
	assert.Equal(t, 0, m.Registry().Len())
}

func TestCreateSessionDialFailure(t *testing.T) {
	dialer := &fakeDialer{dialErr: errDialRefused}
	m := NewManager(dialer, newFakeCredStore(), &fakeMediaFetcher{}, nil, testConfig())

	_, err := m.CreateSession(context.Background(), "alpha")
	require.Error(t, err)

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "connect", terr.Op)
	assert.ErrorIs(t, err, errDialRefused)

	// The record stays with a terminal status so the failure is visible,
	// and a retry create is allowed.
	assert.Equal(t, StateDisconnected, sessionState(m, "alpha"))

	dialer.mu.Lock()
	dialer.dialErr = nil
	dialer.mu.Unlock()

	st, err := m.CreateSession(context.Background(), "alpha")
	require.NoError(t, err)
	assert.Equal(t, StateConnecting, st.State)
}

func TestSessionInfoUnknown(t *testing.T) {
	m := NewManager(&fakeDialer{}, newFakeCredStore(), &fakeMediaFetcher{}, nil, testConfig())

	_, err := m.SessionInfo("ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSessionsListsAll(t *testing.T) {
	m, _, _ := startSession(t, "alpha")
	_, err := m.CreateSession(context.Background(), "beta")
	require.NoError(t, err)

	all := m.Sessions()
	require.Len(t, all, 2)
	assert.Equal(t, "alpha", all[0].ID)
	assert.Equal(t, "beta", all[1].ID)
}

func TestSendMessageText(t *testing.T) {
	m, _, _, _, tr := connectedSession(t, "alpha")

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511999999999", Kind: KindText, Content: "hi",
	})
	require.NoError(t, err)

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "5511999999999@s.whatsapp.net", sent[0].To)
	assert.Equal(t, KindText, sent[0].Msg.Kind)
	assert.Equal(t, "hi", sent[0].Msg.Text)
}

func TestSendMessageUnknownSession(t *testing.T) {
	m := NewManager(&fakeDialer{}, newFakeCredStore(), &fakeMediaFetcher{}, nil, testConfig())

	err := m.SendMessage(context.Background(), "ghost", SendRequest{
		To: "5511999999999", Kind: KindText, Content: "hi",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSendMessageNotConnected(t *testing.T) {
	m, _, _ := startSession(t, "alpha")

	// Still in StateConnecting, no open event yet.
	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511999999999", Kind: KindText, Content: "hi",
	})
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestSendMessageTextRequiresContent(t *testing.T) {
	m, _, _, _, tr := connectedSession(t, "alpha")

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511999999999", Kind: KindText,
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, tr.sentMessages())
}

func TestSendMessageRejectsMalformedPhone(t *testing.T) {
	m, _, _, _, tr := connectedSession(t, "alpha")

	for _, to := range []string{"0511999999999", "55-11-9999", "abc"} {
		err := m.SendMessage(context.Background(), "alpha", SendRequest{
			To: to, Kind: KindText, Content: "hi",
		})
		assert.ErrorIs(t, err, ErrInvalidArgument, to)
	}
	assert.Empty(t, tr.sentMessages())
}

func TestSendMessageMediaRequiresURL(t *testing.T) {
	m, _, _, media, tr := connectedSession(t, "alpha")

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511999999999", Kind: KindImage, Content: "caption",
	})
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Empty(t, tr.sentMessages())
	assert.Equal(t, 0, media.fetchCount())
}

func TestSendMessageImage(t *testing.T) {
	m, _, _, media, tr := connectedSession(t, "alpha")

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To:       "5511999999999",
		Kind:     KindImage,
		Content:  "caption",
		MediaURL: "https://cdn.example.com/pic.jpg",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, media.fetchCount())

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, KindImage, sent[0].Msg.Kind)
	assert.Equal(t, "caption", sent[0].Msg.Text)
	assert.Equal(t, []byte("media-bytes"), sent[0].Msg.Media)
	assert.Equal(t, "image/jpeg", sent[0].Msg.MimeType)
}

func TestSendMessageDocumentDefaults(t *testing.T) {
	m, _, _, media, tr := connectedSession(t, "alpha")

	media.mu.Lock()
	media.mimeType = ""
	media.mu.Unlock()

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To:       "5511999999999",
		Kind:     KindDocument,
		MediaURL: "https://cdn.example.com/file",
	})
	require.NoError(t, err)

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "application/pdf", sent[0].Msg.MimeType)
	assert.Equal(t, "document.pdf", sent[0].Msg.FileName)
}

func TestSendMessageMediaFetchFailure(t *testing.T) {
	m, _, _, media, tr := connectedSession(t, "alpha")

	media.mu.Lock()
	media.err = errors.New("upstream returned 404")
	media.mu.Unlock()

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To:       "5511999999999",
		Kind:     KindImage,
		MediaURL: "https://cdn.example.com/missing.jpg",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch media")
	assert.Empty(t, tr.sentMessages())
}

func TestSendMessageTransportFailure(t *testing.T) {
	m, _, _, _, tr := connectedSession(t, "alpha")

	tr.mu.Lock()
	tr.sendErr = errors.New("websocket closed")
	tr.mu.Unlock()

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "5511999999999", Kind: KindText, Content: "hi",
	})

	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "send", terr.Op)
}

func TestSendMessagePassesThroughQualifiedAddress(t *testing.T) {
	m, _, _, _, tr := connectedSession(t, "alpha")

	err := m.SendMessage(context.Background(), "alpha", SendRequest{
		To: "123456789-987654@g.us", Kind: KindText, Content: "hi group",
	})
	require.NoError(t, err)

	sent := tr.sentMessages()
	require.Len(t, sent, 1)
	assert.Equal(t, "123456789-987654@g.us", sent[0].To)
}

func TestDisconnectSession(t *testing.T) {
	m, _, creds, _, tr := connectedSession(t, "alpha")

	require.NoError(t, m.DisconnectSession(context.Background(), "alpha"))

	assert.True(t, tr.wasLoggedOut())
	assert.Equal(t, 1, creds.deleteCount("alpha"))

	st, err := m.SessionInfo("alpha")
	require.NoError(t, err)
	assert.Equal(t, StateDisconnected, st.State)
	assert.Equal(t, "5511999999999", st.PhoneNumber, "history survives disconnect")

	// The handle is gone, so a second disconnect has nothing to act on.
	assert.ErrorIs(t, m.DisconnectSession(context.Background(), "alpha"), ErrNotFound)
}

func TestDisconnectSessionUnknown(t *testing.T) {
	m := NewManager(&fakeDialer{}, newFakeCredStore(), &fakeMediaFetcher{}, nil, testConfig())
	assert.ErrorIs(t, m.DisconnectSession(context.Background(), "ghost"), ErrNotFound)
}

func TestDisconnectSessionLogoutFailureFallsBackToDrop(t *testing.T) {
	m, _, _, _, tr := connectedSession(t, "alpha")

	tr.mu.Lock()
	tr.logoutErr = errors.New("stream already dead")
	tr.mu.Unlock()

	require.NoError(t, m.DisconnectSession(context.Background(), "alpha"))
	assert.True(t, tr.wasDisconnected())
	assert.Equal(t, StateDisconnected, sessionState(m, "alpha"))
}

func TestDeleteSession(t *testing.T) {
	m, _, creds, _, tr := connectedSession(t, "alpha")

	require.NoError(t, m.DeleteSession(context.Background(), "alpha"))

	assert.True(t, tr.wasLoggedOut())
	assert.Equal(t, 1, creds.deleteCount("alpha"))
	assert.Equal(t, 0, m.Registry().Len())

	_, err := m.SessionInfo("alpha")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	m, _, creds, _, _ := connectedSession(t, "alpha")

	require.NoError(t, m.DeleteSession(context.Background(), "alpha"))
	require.NoError(t, m.DeleteSession(context.Background(), "alpha"))
	assert.Equal(t, 2, creds.deleteCount("alpha"))
}

func TestDeleteSessionCredentialFailure(t *testing.T) {
	m, _, creds, _, _ := connectedSession(t, "alpha")

	creds.mu.Lock()
	creds.deleteErr = errors.New("database unavailable")
	creds.mu.Unlock()

	err := m.DeleteSession(context.Background(), "alpha")
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, "delete credentials", terr.Op)

	// The in-memory record is gone regardless.
	assert.Equal(t, 0, m.Registry().Len())
}

func TestNormalizeDestination(t *testing.T) {
	cases := map[string]string{
		"5511999999999":       "5511999999999@s.whatsapp.net",
		"+5511999999999":      "5511999999999@s.whatsapp.net",
		" 5511999999999 ":     "5511999999999@s.whatsapp.net",
		"123456789-987@g.us":  "123456789-987@g.us",
		"5511@s.whatsapp.net": "5511@s.whatsapp.net",
	}
	for in, want := range cases {
		assert.Equal(t, want, NormalizeDestination(in), "input %q", in)
	}
}
