// Package orchestrator manages one browser session's lifecycle: it owns
// the isolated browser process, drives the in-page agent, reconstructs
// agent state from structured events and the console channel, and
// guarantees exactly-once completion.
package orchestrator

// Status is the session lifecycle state. The machine is linear with one
// error exit and one normal exit.
type Status string

const (
	StatusPending          Status = "pending"
	StatusJoining          Status = "joining"
	StatusWaitingAdmission Status = "waiting_admission"
	StatusInMeeting        Status = "in_meeting"
	StatusRecording        Status = "recording"
	StatusLeaving          Status = "leaving"
	StatusCompleted        Status = "completed"
	StatusFailed           Status = "failed"
)

// transitions lists the legal next states. Applying an illegal or
// already-applied transition is a no-op, which is what makes duplicated
// and reordered signals across the two event channels safe.
var transitions = map[Status][]Status{
	StatusPending:          {StatusJoining, StatusFailed},
	StatusJoining:          {StatusWaitingAdmission, StatusLeaving, StatusFailed},
	StatusWaitingAdmission: {StatusInMeeting, StatusLeaving, StatusFailed},
	StatusInMeeting:        {StatusRecording, StatusLeaving, StatusFailed},
	StatusRecording:        {StatusLeaving, StatusCompleted, StatusFailed},
	StatusLeaving:          {StatusCompleted, StatusFailed},
	StatusCompleted:        {},
	StatusFailed:           {},
}

// CanTransition reports whether from → to is a legal single step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status has no outgoing transitions.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}
