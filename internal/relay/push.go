package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"meetscribe/internal/config"
	"meetscribe/internal/logging"
)

// pushEvent is one live notification frame. The push channel is
// best-effort: frames lost to a dead connection are never replayed,
// the durable HTTP path carries every segment regardless.
type pushEvent struct {
	Type      string    `json:"type"`
	MeetingID string    `json:"meeting_id"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

const (
	eventBotStatusChange = "bot_status_change"
	eventCaptionAdded    = "caption_added"
	eventBotMeetingEnded = "bot_meeting_ended"
)

// Pusher maintains one websocket to the backend and writes notification
// frames to it. Reconnection uses a fixed backoff and a bounded attempt
// budget; once the budget is spent the pusher goes quiet until restarted.
type Pusher struct {
	cfg config.BackendConfig
	log *zap.SugaredLogger

	out      chan pushEvent
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPusher builds a pusher; Start actually connects.
func NewPusher(cfg config.BackendConfig) *Pusher {
	return &Pusher{
		cfg:  cfg,
		log:  logging.Get(logging.CategoryRelay),
		out:  make(chan pushEvent, 256),
		stop: make(chan struct{}),
	}
}

// Start runs the connection loop until Close or context cancellation.
func (p *Pusher) Start(ctx context.Context) {
	p.wg.Add(1)
	go p.run(ctx)
}

// Close shuts the pusher down and waits for the writer to exit.
func (p *Pusher) Close() {
	p.stopOnce.Do(func() { close(p.stop) })
	p.wg.Wait()
}

// Send queues one frame. It never blocks: when the queue is full the
// frame is dropped, which is acceptable for live notifications.
func (p *Pusher) Send(ev pushEvent) {
	ev.Timestamp = time.Now()
	select {
	case p.out <- ev:
	default:
		p.log.Debugw("push queue full, frame dropped", "type", ev.Type, "meeting", ev.MeetingID)
	}
}

func (p *Pusher) run(ctx context.Context) {
	defer p.wg.Done()

	attempts := p.cfg.PushReconnectAttempts
	if attempts < 1 {
		attempts = 1
	}

	remaining := attempts
	for remaining > 0 {
		conn, err := p.dial(ctx)
		if err != nil {
			remaining--
			p.log.Warnw("push connect failed", "url", p.cfg.WebsocketURL, "remaining", remaining, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-p.stop:
				return
			case <-time.After(p.cfg.PushReconnectBackoffDuration()):
			}
			continue
		}

		// A successful connection refills the reconnect budget.
		remaining = attempts
		p.log.Infow("push channel connected", "url", p.cfg.WebsocketURL)

		if done := p.writeLoop(ctx, conn); done {
			return
		}
		remaining--
	}
	p.log.Warnw("push reconnect budget spent, going quiet", "url", p.cfg.WebsocketURL)
}

func (p *Pusher) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if p.cfg.APIKey != "" {
		header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}
	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeoutDuration())
	defer cancel()
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, p.cfg.WebsocketURL, header)
	return conn, err
}

// writeLoop drains the queue onto one connection. Returns true when the
// pusher should exit, false when the connection died and a reconnect is
// due.
func (p *Pusher) writeLoop(ctx context.Context, conn *websocket.Conn) bool {
	defer func() { _ = conn.Close() }()

	for {
		select {
		case <-ctx.Done():
			return true
		case <-p.stop:
			_ = conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return true
		case ev := <-p.out:
			raw, err := json.Marshal(ev)
			if err != nil {
				p.log.Warnw("push frame encode failed", "type", ev.Type, "error", err)
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				p.log.Warnw("push write failed, reconnecting", "error", err)
				return false
			}
		}
	}
}
