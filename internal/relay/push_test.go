package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"meetscribe/internal/config"
	"meetscribe/internal/orchestrator"
	"meetscribe/internal/transcript"
)

// wsCapture is a websocket endpoint that records every received frame.
type wsCapture struct {
	upgrader websocket.Upgrader
	frames   chan pushEvent
}

func newWSCapture() *wsCapture {
	return &wsCapture{frames: make(chan pushEvent, 64)}
}

func (c *wsCapture) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer func() { _ = conn.Close() }()
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var ev pushEvent
		if json.Unmarshal(raw, &ev) == nil {
			c.frames <- ev
		}
	}
}

func (c *wsCapture) next(t *testing.T) pushEvent {
	t.Helper()
	select {
	case ev := <-c.frames:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no push frame received")
		return pushEvent{}
	}
}

func newTestRelay(t *testing.T) (*Relay, *wsCapture) {
	t.Helper()
	capture := newWSCapture()
	server := httptest.NewServer(capture)
	t.Cleanup(server.Close)

	cfg := config.DefaultBackendConfig()
	cfg.WebsocketURL = "ws" + strings.TrimPrefix(server.URL, "http")
	cfg.PushReconnectBackoff = "10ms"

	relay := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	relay.Start(ctx)
	t.Cleanup(func() {
		relay.Close()
		cancel()
	})
	return relay, capture
}

func TestPushStatusChange(t *testing.T) {
	relay, capture := newTestRelay(t)

	relay.NotifyStatus(orchestrator.Session{
		SessionID: "s1",
		MeetingID: "meet-1",
		Status:    orchestrator.StatusRecording,
	})

	ev := capture.next(t)
	assert.Equal(t, eventBotStatusChange, ev.Type)
	assert.Equal(t, "meet-1", ev.MeetingID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestPushCaptionAdded(t *testing.T) {
	relay, capture := newTestRelay(t)

	relay.NotifyCaption("meet-1", transcript.Segment{Speaker: "Alice", Text: "hello"})

	ev := capture.next(t)
	assert.Equal(t, eventCaptionAdded, ev.Type)

	raw, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	var seg transcript.Segment
	require.NoError(t, json.Unmarshal(raw, &seg))
	assert.Equal(t, "Alice", seg.Speaker)
	assert.Equal(t, "hello", seg.Text)
}

func TestPushMeetingEnded(t *testing.T) {
	relay, capture := newTestRelay(t)

	now := time.Now()
	done := now.Add(90 * time.Second)
	relay.NotifyEnded(orchestrator.Session{
		SessionID:   "s1",
		MeetingID:   "meet-1",
		Status:      orchestrator.StatusCompleted,
		StartedAt:   now,
		CompletedAt: &done,
		Segments:    []transcript.Segment{{Speaker: "Alice", Text: "bye"}},
	}, "meeting ended")

	ev := capture.next(t)
	assert.Equal(t, eventBotMeetingEnded, ev.Type)

	raw, err := json.Marshal(ev.Payload)
	require.NoError(t, err)
	var payload endedPayload
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, "meeting ended", payload.Reason)
	assert.Equal(t, 1, payload.Segments)
	assert.InDelta(t, 90.0, payload.Duration, 0.1)
}

func TestSendNeverBlocksWhenUnreachable(t *testing.T) {
	cfg := config.DefaultBackendConfig()
	cfg.WebsocketURL = "ws://127.0.0.1:1/ws/bots"
	cfg.PushReconnectAttempts = 1
	cfg.PushReconnectBackoff = "1ms"

	relay := New(cfg)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	relay.Start(ctx)
	defer relay.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			relay.NotifyCaption("meet-1", transcript.Segment{Text: "x"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send blocked with no backend available")
	}
}
