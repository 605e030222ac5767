// Package relay delivers session facts to the backend over two channels:
// a best-effort websocket push for live notifications, and durable HTTP
// batch delivery for the transcript itself.
package relay

import (
	"context"

	"meetscribe/internal/audio"
	"meetscribe/internal/config"
	"meetscribe/internal/orchestrator"
	"meetscribe/internal/transcript"
)

// Relay combines the push and batch channels behind the delivery surface
// the registry fans out to.
type Relay struct {
	client *Client
	pusher *Pusher
}

// New builds a relay from the backend configuration.
func New(cfg config.BackendConfig) *Relay {
	return &Relay{
		client: NewClient(cfg),
		pusher: NewPusher(cfg),
	}
}

// Start connects the push channel.
func (r *Relay) Start(ctx context.Context) {
	r.pusher.Start(ctx)
}

// Close tears the push channel down. In-flight HTTP deliveries finish on
// their own timeouts.
func (r *Relay) Close() {
	r.pusher.Close()
}

type statusPayload struct {
	SessionID string              `json:"session_id"`
	Status    orchestrator.Status `json:"status"`
	Error     string              `json:"error,omitempty"`
}

type endedPayload struct {
	SessionID string  `json:"session_id"`
	Reason    string  `json:"reason"`
	Segments  int     `json:"segments"`
	Duration  float64 `json:"duration"`
}

// NotifyStatus pushes a lifecycle change. Best-effort.
func (r *Relay) NotifyStatus(session orchestrator.Session) {
	r.pusher.Send(pushEvent{
		Type:      eventBotStatusChange,
		MeetingID: session.MeetingID,
		Payload: statusPayload{
			SessionID: session.SessionID,
			Status:    session.Status,
			Error:     session.Error,
		},
	})
}

// NotifyCaption pushes one live caption segment. Best-effort.
func (r *Relay) NotifyCaption(meetingID string, segment transcript.Segment) {
	r.pusher.Send(pushEvent{
		Type:      eventCaptionAdded,
		MeetingID: meetingID,
		Payload:   segment,
	})
}

// NotifyEnded pushes the meeting-ended notification. Best-effort.
func (r *Relay) NotifyEnded(session orchestrator.Session, reason string) {
	r.pusher.Send(pushEvent{
		Type:      eventBotMeetingEnded,
		MeetingID: session.MeetingID,
		Payload: endedPayload{
			SessionID: session.SessionID,
			Reason:    reason,
			Segments:  session.SegmentCount(),
			Duration:  session.Duration(),
		},
	})
}

// AppendSegments delivers one flush batch on the durable path.
func (r *Relay) AppendSegments(ctx context.Context, meetingID string, segments []transcript.Segment) error {
	return r.client.AppendSegments(ctx, meetingID, segments)
}

// Finalize delivers the complete transcript on the durable path.
func (r *Relay) Finalize(ctx context.Context, meetingID string, segments []transcript.Segment, duration float64) error {
	return r.client.Finalize(ctx, meetingID, segments, duration)
}

// SendAudioChunk ships one encoded audio chunk.
func (r *Relay) SendAudioChunk(ctx context.Context, chunk audio.Chunk) error {
	return r.client.SendAudioChunk(ctx, chunk.MeetingID, chunk.Seq, chunk.DurationSeconds, chunk.CapturedAt, chunk.Data)
}
