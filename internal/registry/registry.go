// Package registry tracks every live meeting session, fans session facts
// out to the backend relay, and guarantees at-most-once finalization per
// meeting.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/orchestrator"
	"meetscribe/internal/transcript"
)

var (
	// ErrSessionNotFound is returned for meeting ids with no live session.
	ErrSessionNotFound = errors.New("session not found")
)

// Backend is the delivery surface the registry fans out to. Notify
// methods are best-effort live push; AppendSegments and Finalize are the
// durable path and their errors matter.
type Backend interface {
	NotifyStatus(session orchestrator.Session)
	NotifyCaption(meetingID string, segment transcript.Segment)
	NotifyEnded(session orchestrator.Session, reason string)
	AppendSegments(ctx context.Context, meetingID string, segments []transcript.Segment) error
	Finalize(ctx context.Context, meetingID string, segments []transcript.Segment, duration float64) error
}

// Archiver persists completed sessions locally. Optional.
type Archiver interface {
	SaveFinal(ctx context.Context, session orchestrator.Session, reason string) error
}

// Runner is the per-session lifecycle the registry drives. The concrete
// implementation is *orchestrator.Orchestrator; tests substitute fakes.
type Runner interface {
	Run(ctx context.Context)
	Stop(ctx context.Context, reason string)
	Snapshot() orchestrator.Session
	Done() <-chan struct{}
}

// Factory builds a runner for one meeting. The sink receives every fact
// the runner produces.
type Factory func(cfg *config.Config, meetingID, url string, sink orchestrator.Sink) Runner

// DefaultFactory builds real orchestrators.
func DefaultFactory(cfg *config.Config, meetingID, url string, sink orchestrator.Sink) Runner {
	return orchestrator.New(cfg, meetingID, url, sink)
}

// Registry owns the session table. All map mutation happens inside
// Registry methods under one mutex, never across a blocking call.
type Registry struct {
	cfg     *config.Config
	log     *zap.SugaredLogger
	backend Backend
	archive Archiver
	factory Factory

	mu        sync.Mutex
	sessions  map[string]Runner
	finalized map[string]struct{}

	baseCtx    context.Context
	baseCancel context.CancelFunc
}

// New creates an empty registry.
func New(cfg *config.Config, backend Backend, archive Archiver, factory Factory) *Registry {
	if factory == nil {
		factory = DefaultFactory
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Registry{
		cfg:        cfg,
		log:        logging.Get(logging.CategorySession),
		backend:    backend,
		archive:    archive,
		factory:    factory,
		sessions:   make(map[string]Runner),
		finalized:  make(map[string]struct{}),
		baseCtx:    ctx,
		baseCancel: cancel,
	}
}

// StartSession launches a session for the meeting, or returns the one
// already running. Starting an active meeting twice never opens a second
// browser.
func (r *Registry) StartSession(_ context.Context, meetingID, url string) (orchestrator.Session, error) {
	if meetingID == "" {
		return orchestrator.Session{}, fmt.Errorf("meeting id is required")
	}

	r.mu.Lock()
	if existing, ok := r.sessions[meetingID]; ok {
		snap := existing.Snapshot()
		if !snap.Status.Terminal() {
			r.mu.Unlock()
			r.log.Infow("session already active", "meeting", meetingID, "status", snap.Status)
			return snap, nil
		}
		// A finished session does not block a new capture of the same
		// meeting id.
	}

	runner := r.factory(r.cfg, meetingID, url, &sessionSink{registry: r})
	r.sessions[meetingID] = runner
	delete(r.finalized, meetingID)
	r.mu.Unlock()

	go runner.Run(r.baseCtx)

	r.log.Infow("session started", "meeting", meetingID, "url", url)
	return runner.Snapshot(), nil
}

// StopSession asks a session to leave and waits for it to reach a
// terminal state.
func (r *Registry) StopSession(ctx context.Context, meetingID, reason string) (orchestrator.Session, error) {
	r.mu.Lock()
	runner, ok := r.sessions[meetingID]
	r.mu.Unlock()
	if !ok {
		return orchestrator.Session{}, fmt.Errorf("stop %q: %w", meetingID, ErrSessionNotFound)
	}
	if reason == "" {
		reason = "operator stop"
	}

	runner.Stop(ctx, reason)

	select {
	case <-runner.Done():
	case <-ctx.Done():
	case <-time.After(r.cfg.Browser.LeaveGraceDuration() * 2):
	}
	return runner.Snapshot(), nil
}

// GetSession returns the current snapshot for a meeting.
func (r *Registry) GetSession(meetingID string) (orchestrator.Session, error) {
	r.mu.Lock()
	runner, ok := r.sessions[meetingID]
	r.mu.Unlock()
	if !ok {
		return orchestrator.Session{}, fmt.Errorf("get %q: %w", meetingID, ErrSessionNotFound)
	}
	return runner.Snapshot(), nil
}

// ListSessions returns snapshots of every tracked session.
func (r *Registry) ListSessions() []orchestrator.Session {
	r.mu.Lock()
	runners := make([]Runner, 0, len(r.sessions))
	for _, runner := range r.sessions {
		runners = append(runners, runner)
	}
	r.mu.Unlock()

	out := make([]orchestrator.Session, 0, len(runners))
	for _, runner := range runners {
		out = append(out, runner.Snapshot())
	}
	return out
}

// Shutdown stops every session concurrently and waits for all of them.
// Sessions that never stopped cleanly are abandoned after the group
// returns; the base context cancel tears their browsers down.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	runners := make([]Runner, 0, len(r.sessions))
	for _, runner := range r.sessions {
		runners = append(runners, runner)
	}
	r.mu.Unlock()

	r.log.Infow("shutting down", "sessions", len(runners))

	g, gctx := errgroup.WithContext(ctx)
	for _, runner := range runners {
		runner := runner
		g.Go(func() error {
			runner.Stop(gctx, "shutting down")
			select {
			case <-runner.Done():
			case <-gctx.Done():
			}
			return nil
		})
	}
	err := g.Wait()
	r.baseCancel()

	r.mu.Lock()
	r.sessions = make(map[string]Runner)
	r.mu.Unlock()
	return err
}

// finalize delivers the completed transcript exactly once per meeting.
// The dedup mark is taken before the relay call and released again on
// failure so a duplicated completion signal can retry the delivery.
func (r *Registry) finalize(ctx context.Context, session orchestrator.Session, reason string) {
	meetingID := session.MeetingID

	r.mu.Lock()
	if _, done := r.finalized[meetingID]; done {
		r.mu.Unlock()
		r.log.Debugw("already finalized", "meeting", meetingID)
		return
	}
	r.finalized[meetingID] = struct{}{}
	r.mu.Unlock()

	if err := r.backend.Finalize(ctx, meetingID, session.Segments, session.Duration()); err != nil {
		r.log.Errorw("finalize delivery failed", "meeting", meetingID, "error", err)
		r.mu.Lock()
		delete(r.finalized, meetingID)
		r.mu.Unlock()
		return
	}

	if r.archive != nil {
		if err := r.archive.SaveFinal(ctx, session, reason); err != nil {
			r.log.Warnw("archive write failed", "meeting", meetingID, "error", err)
		}
	}

	r.backend.NotifyEnded(session, reason)
	r.log.Infow("session finalized",
		"meeting", meetingID, "reason", reason, "segments", session.SegmentCount())
}

// sessionSink adapts the registry to the orchestrator's sink interface.
type sessionSink struct {
	registry *Registry
}

func (s *sessionSink) OnStatusChange(session orchestrator.Session) {
	s.registry.backend.NotifyStatus(session)
}

func (s *sessionSink) OnCaption(meetingID string, segment transcript.Segment) {
	s.registry.backend.NotifyCaption(meetingID, segment)
}

func (s *sessionSink) OnFlush(ctx context.Context, meetingID string, segments []transcript.Segment) error {
	return s.registry.backend.AppendSegments(ctx, meetingID, segments)
}

func (s *sessionSink) OnCompleted(ctx context.Context, session orchestrator.Session, reason string) {
	s.registry.finalize(ctx, session, reason)
}
