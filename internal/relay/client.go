package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/transcript"
)

// Client is the durable delivery path: batched segment appends and the
// final transcript, over HTTP JSON with bounded retries. Every request
// carries an idempotency key so the backend can drop network-level
// replays.
type Client struct {
	cfg  config.BackendConfig
	http *http.Client
	log  *zap.SugaredLogger
}

// NewClient builds the HTTP delivery client.
func NewClient(cfg config.BackendConfig) *Client {
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.RequestTimeoutDuration()},
		log:  logging.Get(logging.CategoryRelay),
	}
}

type appendRequest struct {
	MeetingID string               `json:"meeting_id"`
	Segments  []transcript.Segment `json:"segments"`
}

type finalizeRequest struct {
	MeetingID string               `json:"meeting_id"`
	Segments  []transcript.Segment `json:"segments"`
	Duration  float64              `json:"duration"`
	Final     bool                 `json:"final"`
}

// AppendSegments delivers one flush batch.
func (c *Client) AppendSegments(ctx context.Context, meetingID string, segments []transcript.Segment) error {
	if len(segments) == 0 {
		return nil
	}
	key := fmt.Sprintf("%s:%d:%d", meetingID, segments[0].Index, len(segments))
	body := appendRequest{MeetingID: meetingID, Segments: segments}
	return c.post(ctx, fmt.Sprintf("/api/meetings/%s/segments", meetingID), key, body)
}

// Finalize delivers the complete transcript. The backend treats the
// meeting as ended once this lands.
func (c *Client) Finalize(ctx context.Context, meetingID string, segments []transcript.Segment, duration float64) error {
	key := meetingID + ":final"
	body := finalizeRequest{MeetingID: meetingID, Segments: segments, Duration: duration, Final: true}
	return c.post(ctx, fmt.Sprintf("/api/meetings/%s/finalize", meetingID), key, body)
}

type audioChunkRequest struct {
	MeetingID       string    `json:"meeting_id"`
	Seq             int       `json:"seq"`
	CapturedAt      time.Time `json:"captured_at"`
	DurationSeconds int       `json:"duration_seconds"`
	Data            []byte    `json:"data"`
}

// SendAudioChunk delivers one encoded audio chunk. Chunks share the
// retry policy but are inherently lossy; callers treat failures as
// dropped chunks, not errors to surface.
func (c *Client) SendAudioChunk(ctx context.Context, meetingID string, seq, durationSeconds int, capturedAt time.Time, data []byte) error {
	key := fmt.Sprintf("%s:audio:%d", meetingID, seq)
	body := audioChunkRequest{
		MeetingID:       meetingID,
		Seq:             seq,
		CapturedAt:      capturedAt,
		DurationSeconds: durationSeconds,
		Data:            data,
	}
	return c.post(ctx, fmt.Sprintf("/api/meetings/%s/audio", meetingID), key, body)
}

// post sends one JSON request with the configured retry policy: fixed
// backoff, bounded attempts, retry on network errors and 5xx/429.
func (c *Client) post(ctx context.Context, path, idempotencyKey string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	url := c.cfg.BaseURL + path

	attempts := c.cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.cfg.RetryBackoffDuration()):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Idempotency-Key", idempotencyKey)
		if c.cfg.APIKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			c.log.Warnw("delivery attempt failed", "url", url, "attempt", attempt, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("backend returned %s", resp.Status)
			c.log.Warnw("delivery rejected, will retry", "url", url, "attempt", attempt, "status", resp.Status)
		default:
			return fmt.Errorf("backend rejected request: %s", resp.Status)
		}
	}
	return fmt.Errorf("delivery failed after %d attempts: %w", attempts, lastErr)
}
