package orchestrator

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"meetscribe/internal/agent"
	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/transcript"
)

// Sink receives session facts from an orchestrator. The registry
// implements it and fans out to the backend relay. OnFlush returning an
// error means the snapshot was not delivered and must not be marked
// flushed.
type Sink interface {
	OnStatusChange(session Session)
	OnCaption(meetingID string, segment transcript.Segment)
	OnFlush(ctx context.Context, meetingID string, segments []transcript.Segment) error
	OnCompleted(ctx context.Context, session Session, reason string)
}

// Orchestrator owns one session: one browser process, one page, one
// agent. It is created in pending state; Run drives it to completed or
// failed.
type Orchestrator struct {
	cfg  *config.Config
	log  *zap.SugaredLogger
	sink Sink

	sessionID string
	meetingID string
	url       string

	mu          sync.Mutex
	status      Status
	errReason   string
	segments    []transcript.Segment
	startedAt   time.Time
	completedAt *time.Time

	agg      *transcript.Aggregator
	agent    *agent.Agent
	browser  *browserHandle
	dispatch map[agent.EventType]func(context.Context, agent.Event)

	completed atomic.Bool
	stopOnce  sync.Once
	terminal  chan struct{}
	termOnce  sync.Once
	runCtx    context.Context
	runCancel context.CancelFunc
	done      chan struct{}

	maxTimer  *time.Timer
	flushStop chan struct{}
	flushOnce sync.Once
	flushWG   sync.WaitGroup
}

// New creates a pending orchestrator for one meeting.
func New(cfg *config.Config, meetingID, url string, sink Sink) *Orchestrator {
	startedAt := time.Now()
	o := &Orchestrator{
		cfg:       cfg,
		log:       logging.Get(logging.CategorySession),
		sink:      sink,
		sessionID: uuid.NewString(),
		meetingID: meetingID,
		url:       url,
		status:    StatusPending,
		startedAt: startedAt,
		agg: transcript.New(transcript.Config{
			PrefixLen:        cfg.Capture.ContinuationPrefixLen,
			MinUnresolvedLen: cfg.Capture.MinUnresolvedLen,
			UnknownSpeaker:   cfg.Capture.UnknownSpeaker,
			Now:              func() float64 { return time.Since(startedAt).Seconds() },
		}),
		terminal:  make(chan struct{}),
		done:      make(chan struct{}),
		flushStop: make(chan struct{}),
	}
	o.dispatch = map[agent.EventType]func(context.Context, agent.Event){
		agent.EventLoaded:    o.onLoaded,
		agent.EventStatus:    o.onStatus,
		agent.EventCaption:   o.onCaption,
		agent.EventFlush:     o.onFlush,
		agent.EventCompleted: o.onCompleted,
	}
	return o
}

// SessionID returns the opaque session identifier.
func (o *Orchestrator) SessionID() string { return o.sessionID }

// MeetingID returns the external meeting key.
func (o *Orchestrator) MeetingID() string { return o.meetingID }

// Snapshot returns a read-only copy of the session state.
func (o *Orchestrator) Snapshot() Session {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() Session {
	segs := make([]transcript.Segment, len(o.segments))
	copy(segs, o.segments)
	return Session{
		SessionID:   o.sessionID,
		MeetingID:   o.meetingID,
		URL:         o.url,
		Status:      o.status,
		Segments:    segs,
		StartedAt:   o.startedAt,
		CompletedAt: o.completedAt,
		Error:       o.errReason,
	}
}

// Done is closed once Run has finished teardown.
func (o *Orchestrator) Done() <-chan struct{} { return o.done }

func (o *Orchestrator) markTerminal() {
	o.termOnce.Do(func() { close(o.terminal) })
}

// Run drives the session to a terminal state. It blocks until completion,
// failure or context cancellation, and never returns an error upward:
// every failure becomes a failed status with a reason.
func (o *Orchestrator) Run(ctx context.Context) {
	defer close(o.done)

	o.runCtx, o.runCancel = context.WithCancel(ctx)
	defer o.runCancel()

	o.applyStatus(StatusJoining, "")

	handle, err := o.launchBrowser(o.runCtx)
	if err != nil {
		o.fail("could not start browser: " + err.Error())
		return
	}
	o.browser = handle
	defer o.teardownBrowser()

	o.agent = agent.New(handle.page, o.cfg, o.agg, o.startedAt)
	go o.eventLoop(o.runCtx, o.agent.Events())
	o.subscribeConsole(o.runCtx, handle.page)

	if err := o.agent.Join(o.runCtx, o.cfg.Name); err != nil {
		o.fail("could not join: " + err.Error())
		return
	}
	o.applyStatus(StatusWaitingAdmission, "")

	admission, _ := o.cfg.Capture.AdmissionTimeoutDuration()
	if err := o.agent.WaitUntilAdmitted(o.runCtx, admission); err != nil {
		o.fail("could not join: " + err.Error())
		return
	}
	o.applyStatus(StatusInMeeting, "")

	if err := o.agent.EnableCaptions(o.runCtx); err != nil {
		o.fail(err.Error())
		return
	}
	o.agent.Announce(o.runCtx, o.cfg.Capture.Announcement)

	if err := o.agent.StartCapture(o.runCtx); err != nil {
		o.fail("could not start capture: " + err.Error())
		return
	}
	o.applyStatus(StatusRecording, "")

	o.startTimers()

	select {
	case <-o.runCtx.Done():
		// Hosting process is going away; give the agent its grace
		// window, then synthesize completion from captured state.
		o.Stop(context.Background(), "orchestrator cancelled")
	case <-o.terminal:
	}
}

// Stop requests a cooperative shutdown. The agent gets a chance to run
// its leave sequence; if it does not complete within the grace period the
// orchestrator synthesizes the completion from the aggregator state.
// Stop blocks until the session is terminal.
func (o *Orchestrator) Stop(ctx context.Context, reason string) {
	o.stopOnce.Do(func() {
		o.log.Infow("stop requested", "meeting", o.meetingID, "reason", reason)
		o.applyStatus(StatusLeaving, reason)

		if o.agent != nil {
			go o.agent.Leave(reason)
		}

		select {
		case <-o.terminal:
		case <-time.After(o.cfg.Browser.LeaveGraceDuration()):
			// Agent never reported; synthesize.
			o.agg.FinalizeAll()
			o.applyCompletion(ctx, reason, o.agg.Segments(), time.Since(o.startedAt).Seconds())
		}
	})
	<-o.terminal
}

// eventLoop consumes the structured channel through the dispatch table.
func (o *Orchestrator) eventLoop(ctx context.Context, events <-chan agent.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			o.handleEvent(ctx, ev)
		}
	}
}

// handleEvent routes one event, from either channel, through the
// dispatch table. Handlers are idempotent: duplicated facts are no-ops.
func (o *Orchestrator) handleEvent(ctx context.Context, ev agent.Event) {
	handler, ok := o.dispatch[ev.Type]
	if !ok {
		o.log.Debugw("unknown event kind", "type", ev.Type)
		return
	}
	handler(ctx, ev)
}

func (o *Orchestrator) onLoaded(_ context.Context, ev agent.Event) {
	o.log.Debugw("page loaded", "meeting", o.meetingID, "url", ev.URL)
}

func (o *Orchestrator) onStatus(_ context.Context, ev agent.Event) {
	switch ev.Status {
	case agent.StatusWaiting:
		o.applyStatus(StatusWaitingAdmission, ev.Detail)
	case agent.StatusJoined:
		o.applyStatus(StatusInMeeting, ev.Detail)
	case agent.StatusRecording:
		o.applyStatus(StatusRecording, ev.Detail)
	case agent.StatusMeetingEnded:
		o.applyStatus(StatusLeaving, ev.Detail)
	case agent.StatusJoinFailed:
		o.fail(ev.Detail)
	}
}

// onCaption handles captions from the structured channel. The agent has
// already merged these into the aggregator; this only fans them out.
func (o *Orchestrator) onCaption(_ context.Context, ev agent.Event) {
	if ev.Segment == nil {
		return
	}
	o.sink.OnCaption(o.meetingID, *ev.Segment)
}

// onConsoleCaption handles captions recovered from the console channel.
// These bypass the agent, so the same noise filter applies here. They
// may also duplicate fragments the structured channel already carried,
// so they are re-observed: the aggregator accepts only ones not yet
// merged, and only those are announced downstream.
func (o *Orchestrator) onConsoleCaption(_ context.Context, ev agent.Event) {
	if ev.Segment == nil {
		return
	}
	if agent.IsNoise(ev.Segment.Text) {
		return
	}
	if !o.agg.Observe(ev.Segment.Speaker, ev.Segment.Text) {
		return
	}
	o.sink.OnCaption(o.meetingID, *ev.Segment)
}

func (o *Orchestrator) onFlush(ctx context.Context, ev agent.Event) {
	if len(ev.Segments) == 0 {
		return
	}
	if err := o.sink.OnFlush(ctx, o.meetingID, ev.Segments); err != nil {
		o.log.Warnw("agent flush delivery failed", "meeting", o.meetingID, "error", err)
	}
}

func (o *Orchestrator) onCompleted(ctx context.Context, ev agent.Event) {
	o.applyCompletion(ctx, ev.Reason, ev.Segments, ev.Duration)
}

// applyCompletion is the single completion point. Whichever trigger path
// wins the race (agent meeting-end, max-duration timer, operator stop)
// emits exactly one completion; later callers are no-ops.
func (o *Orchestrator) applyCompletion(ctx context.Context, reason string, segments []transcript.Segment, duration float64) {
	if !o.completed.CompareAndSwap(false, true) {
		o.log.Debugw("duplicate completion ignored", "meeting", o.meetingID, "reason", reason)
		return
	}
	o.stopTimers()

	now := time.Now()
	o.mu.Lock()
	// Completion is authoritative; it overrides the transition table.
	o.status = StatusCompleted
	o.segments = segments
	o.completedAt = &now
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Infow("session completed",
		"meeting", o.meetingID, "reason", reason,
		"segments", len(segments), "duration", duration)
	o.sink.OnStatusChange(snap)
	o.sink.OnCompleted(ctx, snap, reason)
	o.markTerminal()
}

// fail is the single error exit: any failure before completion becomes
// one terminal failed status with a human-readable reason.
func (o *Orchestrator) fail(reason string) {
	if o.completed.Load() {
		return
	}
	o.stopTimers()

	o.mu.Lock()
	if o.status.Terminal() {
		o.mu.Unlock()
		return
	}
	o.status = StatusFailed
	o.errReason = reason
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Warnw("session failed", "meeting", o.meetingID, "reason", reason)
	o.sink.OnStatusChange(snap)
	o.markTerminal()
}

// applyStatus applies a transition if it is legal from the current state;
// anything else is an idempotent no-op.
func (o *Orchestrator) applyStatus(to Status, detail string) bool {
	o.mu.Lock()
	if !CanTransition(o.status, to) {
		o.mu.Unlock()
		return false
	}
	o.status = to
	snap := o.snapshotLocked()
	o.mu.Unlock()

	o.log.Infow("status", "meeting", o.meetingID, "status", to, "detail", detail)
	o.sink.OnStatusChange(snap)
	return true
}

// startTimers arms the periodic flush timer and the max-duration ceiling.
func (o *Orchestrator) startTimers() {
	maxDur, _ := o.cfg.Capture.MaxDurationDuration()
	o.maxTimer = time.AfterFunc(maxDur, func() {
		o.Stop(context.Background(), "maximum meeting duration reached")
	})

	flushEvery, _ := o.cfg.Capture.FlushIntervalDuration()
	o.flushWG.Add(1)
	go func() {
		defer o.flushWG.Done()
		tick := time.NewTicker(flushEvery)
		defer tick.Stop()
		for {
			select {
			case <-o.flushStop:
				return
			case <-tick.C:
				o.flushNow()
			}
		}
	}()
}

// flushNow delivers the current snapshot; the flushed boundary only
// advances after the sink acknowledged delivery.
func (o *Orchestrator) flushNow() {
	segs := o.agg.SnapshotForFlush()
	if len(segs) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), o.cfg.Backend.RequestTimeoutDuration())
	defer cancel()
	if err := o.sink.OnFlush(ctx, o.meetingID, segs); err != nil {
		o.log.Warnw("flush delivery failed, will retry next interval", "meeting", o.meetingID, "error", err)
		return
	}
	o.agg.MarkFlushed(false)
}

func (o *Orchestrator) stopTimers() {
	if o.maxTimer != nil {
		o.maxTimer.Stop()
	}
	o.flushOnce.Do(func() { close(o.flushStop) })
	o.flushWG.Wait()
}
