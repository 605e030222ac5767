package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from Status
		to   Status
		want bool
	}{
		{"pending to joining", StatusPending, StatusJoining, true},
		{"joining to waiting", StatusJoining, StatusWaitingAdmission, true},
		{"waiting to in meeting", StatusWaitingAdmission, StatusInMeeting, true},
		{"in meeting to recording", StatusInMeeting, StatusRecording, true},
		{"recording to leaving", StatusRecording, StatusLeaving, true},
		{"leaving to completed", StatusLeaving, StatusCompleted, true},
		{"any state to failed", StatusWaitingAdmission, StatusFailed, true},
		{"early operator stop", StatusJoining, StatusLeaving, true},
		{"no skipping admission", StatusJoining, StatusInMeeting, false},
		{"no going backwards", StatusRecording, StatusJoining, false},
		{"completed is final", StatusCompleted, StatusFailed, false},
		{"failed is final", StatusFailed, StatusJoining, false},
		{"self transition is not a step", StatusRecording, StatusRecording, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.Terminal())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRecording.Terminal())
	assert.False(t, StatusLeaving.Terminal())
}
