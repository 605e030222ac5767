// Package agent drives the meeting page for one session: it infers page
// state from observable indicators, performs the join/mute/captions/leave
// actions, and runs the live caption capture loop.
package agent

// MeetingState is the agent's best inference of where the session stands.
// The page never signals state directly; it can only be inferred from
// polled indicators.
type MeetingState int

const (
	// StateNotJoined is the conservative default: nothing observed yet,
	// or an ambiguous mix of indicators.
	StateNotJoined MeetingState = iota
	StateWaitingAdmission
	StateInMeeting
	StateEnded
	StateDenied
)

func (s MeetingState) String() string {
	switch s {
	case StateWaitingAdmission:
		return "waiting_admission"
	case StateInMeeting:
		return "in_meeting"
	case StateEnded:
		return "ended"
	case StateDenied:
		return "denied"
	default:
		return "not_joined"
	}
}

// Signals are the raw indicators collected from one poll of the page.
type Signals struct {
	// HasInMeetingControl is the positive indicator: a control that only
	// exists once the user is actually admitted.
	HasInMeetingControl bool

	// WaitingTextVisible, EndedTextVisible and DeniedTextVisible are the
	// negative indicators scraped from visible page text.
	WaitingTextVisible bool
	EndedTextVisible   bool
	DeniedTextVisible  bool
}

// InferMeetingState reduces one poll's indicators to a state. Positive
// signals win over negative ones; an ambiguous page (no indicator either
// way) is "not yet in meeting" rather than a guess, because starting the
// capture loop before the meeting UI is stable produces garbage segments.
func InferMeetingState(s Signals) MeetingState {
	if s.HasInMeetingControl {
		return StateInMeeting
	}
	if s.DeniedTextVisible {
		return StateDenied
	}
	if s.EndedTextVisible {
		return StateEnded
	}
	if s.WaitingTextVisible {
		return StateWaitingAdmission
	}
	return StateNotJoined
}
