package events

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/ragchat/pkg/helpers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventRouter_DeliversSessionEvents(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	received := make(chan *SessionEvent, 4)
	sessionIDs := make(chan string, 4)
	router.AddHandler("collect", DefaultTopic, func(msg *message.Message) error {
		sessionIDs <- msg.Metadata.Get(helpers.SessionIDMetadataKey)
		ev, err := NewSessionEventFromJson(msg.Payload)
		if err != nil {
			return err
		}
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	ev := NewSessionEvent(EventTypeSettled, "sess-1")
	ev.HistoryLen = 2
	ev.OK = true
	require.NoError(t, sink.PublishEvent(ev))

	select {
	case got := <-received:
		assert.Equal(t, EventTypeSettled, got.Type)
		assert.Equal(t, "sess-1", got.SessionID)
		assert.Equal(t, 2, got.HistoryLen)
		assert.True(t, got.OK)
		assert.Equal(t, "sess-1", <-sessionIDs)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestNewSessionEventFromJson_Errors(t *testing.T) {
	_, err := NewSessionEventFromJson([]byte("nope"))
	require.Error(t, err)

	_, err = NewSessionEventFromJson([]byte(`{"session_id":"x"}`))
	require.Error(t, err)
}

func TestEventRouter_PreservesPublicationOrder(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)
	defer func() { _ = router.Close() }()

	const n = 20
	var mu sync.Mutex
	var seen []int
	done := make(chan struct{})
	router.AddSessionHandler("collect", DefaultTopic, func(ctx context.Context, e *SessionEvent) error {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, e.HistoryLen)
		if len(seen) == n {
			close(done)
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		_ = router.Run(ctx)
	}()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	expected := make([]int, 0, n)
	for i := 0; i < n; i++ {
		ev := NewSessionEvent(EventTypeDraft, "sess-order")
		ev.HistoryLen = i
		require.NoError(t, sink.PublishEvent(ev))
		expected = append(expected, i)
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("events were not delivered")
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, expected, seen)
}

func TestEventRouter_DumpRawEvents(t *testing.T) {
	var buf bytes.Buffer
	router, err := NewEventRouter()
	require.NoError(t, err)

	ev := NewSessionEvent(EventTypeSettled, "sess-dump")
	ev.OK = true
	payload, err := ev.Payload()
	require.NoError(t, err)

	msg := message.NewMessage("msg-1", payload)
	require.NoError(t, router.DumpRawEvents(&buf)(msg))

	out := buf.String()
	assert.Contains(t, out, `"type": "session.settled"`)
	assert.Contains(t, out, `"session_id": "sess-dump"`)
	assert.NotContains(t, out, `"time"`)

	verbose, err := NewEventRouter(WithVerbose(true))
	require.NoError(t, err)
	buf.Reset()
	require.NoError(t, verbose.DumpRawEvents(&buf)(message.NewMessage("msg-2", payload)))
	assert.Contains(t, buf.String(), `"time"`)
}
