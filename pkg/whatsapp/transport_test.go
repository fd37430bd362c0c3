package whatsapp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcfaria/go-whatsapp-session-api/internal/session"
)

func streamTransport(buffer int) *transport {
	return &transport{
		sessionID: "alpha",
		events:    make(chan session.Event, buffer),
	}
}

func TestEmitWaitsForConsumerInsteadOfDropping(t *testing.T) {
	tr := streamTransport(1)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 3; i++ {
			tr.emit(session.QREvent{Code: string(rune('a' + i))})
		}
		tr.finishWith(session.ClosedEvent{LoggedOut: true, Reason: "logged out"})
	}()

	var got []session.Event
	for evt := range tr.events {
		got = append(got, evt)
		time.Sleep(time.Millisecond)
	}
	<-done

	require.Len(t, got, 4)
	assert.Equal(t, session.QREvent{Code: "a"}, got[0])
	assert.Equal(t, session.QREvent{Code: "b"}, got[1])
	assert.Equal(t, session.QREvent{Code: "c"}, got[2])
	assert.Equal(t, session.ClosedEvent{LoggedOut: true, Reason: "logged out"}, got[3])
}

func TestEmitAfterStreamEndIsNoop(t *testing.T) {
	tr := streamTransport(1)
	tr.closeStream()

	assert.NotPanics(t, func() {
		tr.emit(session.OpenedEvent{PhoneNumber: "5511999999999"})
		tr.finishWith(session.ClosedEvent{LoggedOut: false, Reason: "connection closed"})
	})

	_, open := <-tr.events
	assert.False(t, open)
}
