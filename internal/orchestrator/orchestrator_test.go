package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"meetscribe/internal/agent"
	"meetscribe/internal/config"
	"meetscribe/internal/transcript"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// recordingSink captures everything an orchestrator reports.
type recordingSink struct {
	mu        sync.Mutex
	statuses  []Status
	captions  []transcript.Segment
	flushes   [][]transcript.Segment
	flushErr  error
	completed []Session
	reasons   []string
}

func (s *recordingSink) OnStatusChange(session Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, session.Status)
}

func (s *recordingSink) OnCaption(_ string, segment transcript.Segment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.captions = append(s.captions, segment)
}

func (s *recordingSink) OnFlush(_ context.Context, _ string, segments []transcript.Segment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.flushErr != nil {
		return s.flushErr
	}
	s.flushes = append(s.flushes, segments)
	return nil
}

func (s *recordingSink) OnCompleted(_ context.Context, session Session, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, session)
	s.reasons = append(s.reasons, reason)
}

func (s *recordingSink) completedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.completed)
}

func (s *recordingSink) statusHistory() []Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Status, len(s.statuses))
	copy(out, s.statuses)
	return out
}

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Browser.LeaveGrace = "20ms"
	return cfg
}

func newTestOrchestrator(t *testing.T) (*Orchestrator, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	o := New(testConfig(), "meeting-1", "https://meet.google.com/abc-defg-hij", sink)
	return o, sink
}

func TestStatusEventsAreIdempotent(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	o.applyStatus(StatusJoining, "")
	o.handleEvent(ctx, agent.Event{Type: agent.EventStatus, Status: agent.StatusWaiting})
	o.handleEvent(ctx, agent.Event{Type: agent.EventStatus, Status: agent.StatusJoined})
	// The console channel replays the same fact.
	o.handleEvent(ctx, agent.Event{Type: agent.EventStatus, Status: agent.StatusJoined})
	o.handleEvent(ctx, agent.Event{Type: agent.EventStatus, Status: agent.StatusRecording})

	assert.Equal(t,
		[]Status{StatusJoining, StatusWaitingAdmission, StatusInMeeting, StatusRecording},
		sink.statusHistory())
	assert.Equal(t, StatusRecording, o.Snapshot().Status)
}

func TestOutOfOrderStatusIsIgnored(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	o.applyStatus(StatusJoining, "")
	// "joined" before "join requested" would skip the admission state.
	o.handleEvent(ctx, agent.Event{Type: agent.EventStatus, Status: agent.StatusJoined})

	assert.Equal(t, []Status{StatusJoining}, sink.statusHistory())
	assert.Equal(t, StatusJoining, o.Snapshot().Status)
}

func TestCompletionIsExactlyOnce(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	segs := []transcript.Segment{{Speaker: "Alice", Text: "wrap up", Index: 0}}
	done := agent.Event{Type: agent.EventCompleted, Reason: "meeting ended", Segments: segs, Duration: 12.5}

	o.handleEvent(ctx, done)
	o.handleEvent(ctx, done)
	o.handleEvent(ctx, done)

	require.Equal(t, 1, sink.completedCount())
	assert.Equal(t, "meeting ended", sink.reasons[0])
	snap := o.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	assert.Equal(t, segs, snap.Segments)
	require.NotNil(t, snap.CompletedAt)
}

func TestFailAfterCompletionIsIgnored(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	o.handleEvent(ctx, agent.Event{Type: agent.EventCompleted, Reason: "meeting ended"})
	o.fail("late browser error")

	assert.Equal(t, StatusCompleted, o.Snapshot().Status)
	assert.Empty(t, o.Snapshot().Error)
	assert.Equal(t, 1, sink.completedCount())
}

func TestFailIsTerminalAndSingle(t *testing.T) {
	o, sink := newTestOrchestrator(t)

	o.fail("could not join: admission denied")
	o.fail("second failure")

	snap := o.Snapshot()
	assert.Equal(t, StatusFailed, snap.Status)
	assert.Equal(t, "could not join: admission denied", snap.Error)
	assert.Equal(t, []Status{StatusFailed}, sink.statusHistory())
	assert.Zero(t, sink.completedCount())
}

func TestConsoleCaptionDeduplication(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	ev, ok := ParseConsoleLine("[MeetScribe][Caption] Alice: hello everyone")
	require.True(t, ok)

	o.onConsoleCaption(ctx, ev)
	o.onConsoleCaption(ctx, ev)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Len(t, sink.captions, 1)
	assert.Equal(t, "Alice", sink.captions[0].Speaker)
}

func TestConsoleCaptionFiltersChrome(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	// Captions recovered from the console log can carry UI chrome text
	// the in-page script would normally filter out.
	for _, line := range []string{
		"[MeetScribe][Caption] Alice: Leave call",
		"[MeetScribe][Caption] Alice: Turn off microphone",
		"[MeetScribe][Caption] Alice: 10:42 PM",
	} {
		ev, ok := ParseConsoleLine(line)
		require.True(t, ok, line)
		o.onConsoleCaption(ctx, ev)
	}

	sink.mu.Lock()
	assert.Empty(t, sink.captions)
	sink.mu.Unlock()
	assert.Equal(t, 0, o.agg.ActiveCount())
}

func TestStructuredCaptionFansOut(t *testing.T) {
	o, sink := newTestOrchestrator(t)
	ctx := context.Background()

	seg := &transcript.Segment{Speaker: "Bob", Text: "sounds good"}
	o.handleEvent(ctx, agent.Event{Type: agent.EventCaption, Segment: seg})

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.captions, 1)
	assert.Equal(t, "Bob", sink.captions[0].Speaker)
}

func TestFlushBoundaryAdvancesOnlyOnAck(t *testing.T) {
	o, sink := newTestOrchestrator(t)

	// Two utterances from one speaker: the second finalizes the first.
	o.agg.Observe("Alice", "first thought about the roadmap")
	o.agg.Observe("Alice", "second thought entirely different")

	sink.flushErr = errors.New("backend unavailable")
	o.flushNow()
	sink.flushErr = nil

	o.flushNow()
	sink.mu.Lock()
	require.Len(t, sink.flushes, 1)
	// Finalized first utterance plus the still-active second.
	assert.Len(t, sink.flushes[0], 2)
	sink.mu.Unlock()

	// The finalized segment was marked flushed; only the active one
	// remains in the next snapshot.
	remaining := o.agg.SnapshotForFlush()
	require.Len(t, remaining, 1)
	assert.Equal(t, "second thought entirely different", remaining[0].Text)
}

func TestStopSynthesizesCompletionWithoutAgent(t *testing.T) {
	o, sink := newTestOrchestrator(t)

	o.applyStatus(StatusJoining, "")
	o.agg.Observe("Alice", "partial words before the stop")
	o.Stop(context.Background(), "operator stop")

	require.Equal(t, 1, sink.completedCount())
	assert.Equal(t, "operator stop", sink.reasons[0])
	snap := o.Snapshot()
	assert.Equal(t, StatusCompleted, snap.Status)
	require.Len(t, snap.Segments, 1)
	assert.Equal(t, "partial words before the stop", snap.Segments[0].Text)
}

func TestStopIsIdempotent(t *testing.T) {
	o, sink := newTestOrchestrator(t)

	o.applyStatus(StatusJoining, "")
	o.Stop(context.Background(), "first stop")
	o.Stop(context.Background(), "second stop")

	assert.Equal(t, 1, sink.completedCount())
	assert.Equal(t, "first stop", sink.reasons[0])
}

func TestSessionTranscriptRendering(t *testing.T) {
	s := Session{
		Segments: []transcript.Segment{
			{Speaker: "Alice", Text: "hello"},
			{Speaker: "Bob", Text: "hi there"},
		},
	}
	assert.Equal(t, "Alice: hello\nBob: hi there", s.Transcript())
	assert.Equal(t, 2, s.SegmentCount())
}
