package agent

import (
	"time"

	"meetscribe/internal/transcript"
)

// EventType tags the structured messages the agent pushes to its
// orchestrator.
type EventType string

const (
	EventLoaded    EventType = "loaded"
	EventStatus    EventType = "status"
	EventCaption   EventType = "caption"
	EventFlush     EventType = "flush"
	EventCompleted EventType = "completed"
)

// StatusKind names the lifecycle facts a status event can carry.
type StatusKind string

const (
	StatusJoining      StatusKind = "joining"
	StatusWaiting      StatusKind = "waiting"
	StatusJoined       StatusKind = "joined"
	StatusRecording    StatusKind = "recording"
	StatusMeetingEnded StatusKind = "meeting_ended"
	StatusJoinFailed   StatusKind = "join_failed"
)

// Event is the tagged union crossing the agent/orchestrator boundary.
// Delivery is at-least-once and may duplicate facts also visible on the
// diagnostic console channel; receivers must apply events idempotently.
type Event struct {
	Type      EventType `json:"type"`
	Timestamp time.Time `json:"timestamp"`

	// loaded
	URL string `json:"url,omitempty"`

	// status
	Status StatusKind `json:"status,omitempty"`
	Detail string     `json:"detail,omitempty"`

	// caption
	Segment *transcript.Segment `json:"segment,omitempty"`

	// flush / completed
	Segments []transcript.Segment `json:"segments,omitempty"`
	Duration float64              `json:"duration,omitempty"`
	Reason   string               `json:"reason,omitempty"`
}
