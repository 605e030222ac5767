package orchestrator

import (
	"time"

	"meetscribe/internal/transcript"
)

// Session is the read-only snapshot of one orchestrated meeting session.
// The orchestrator owns the live state exclusively; the registry and the
// relay only ever see copies.
type Session struct {
	SessionID   string                `json:"session_id"`
	MeetingID   string                `json:"meeting_id"`
	URL         string                `json:"url"`
	Status      Status                `json:"status"`
	Segments    []transcript.Segment  `json:"segments,omitempty"`
	StartedAt   time.Time             `json:"started_at"`
	CompletedAt *time.Time            `json:"completed_at,omitempty"`
	Error       string                `json:"error,omitempty"`
}

// Duration returns the elapsed session time in seconds: wall clock while
// running, frozen once completed.
func (s Session) Duration() float64 {
	if s.CompletedAt != nil {
		return s.CompletedAt.Sub(s.StartedAt).Seconds()
	}
	if s.StartedAt.IsZero() {
		return 0
	}
	return time.Since(s.StartedAt).Seconds()
}

// SegmentCount returns the number of finalized segments.
func (s Session) SegmentCount() int {
	return len(s.Segments)
}

// Transcript returns the flattened "speaker: text" rendering.
func (s Session) Transcript() string {
	return transcript.Flatten(s.Segments)
}
