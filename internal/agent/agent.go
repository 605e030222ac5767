package agent

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"go.uber.org/zap"

	"meetscribe/internal/config"
	"meetscribe/internal/logging"
	"meetscribe/internal/transcript"
)

const eventBuffer = 256

// Agent drives one meeting page. All methods act on a single page in a
// single browser process; the orchestrator owns both.
type Agent struct {
	page    *rod.Page
	sel     config.SelectorsConfig
	capture config.CaptureConfig
	nav     time.Duration
	log     *zap.SugaredLogger

	agg     *transcript.Aggregator
	events  chan Event
	started time.Time

	leaving atomic.Bool
	stopFn  context.CancelFunc
	wg      sync.WaitGroup
}

// New binds an agent to a page. The aggregator's clock and the agent's
// elapsed-time base must share the same session start.
func New(page *rod.Page, cfg *config.Config, agg *transcript.Aggregator, started time.Time) *Agent {
	return &Agent{
		page:    page,
		sel:     cfg.Selectors,
		capture: cfg.Capture,
		nav:     cfg.Browser.NavigationTimeoutDuration(),
		log:     logging.Get(logging.CategoryCapture),
		agg:     agg,
		events:  make(chan Event, eventBuffer),
		started: started,
	}
}

// Events returns the structured message channel. Messages are dropped if
// nobody is draining; the diagnostic console channel carries the same
// facts for retroactive recovery.
func (a *Agent) Events() <-chan Event {
	return a.events
}

func (a *Agent) emit(ev Event) {
	ev.Timestamp = time.Now()
	select {
	case a.events <- ev:
	default:
		// The host is not listening at this moment. The fact is still
		// recoverable from the console channel.
		a.log.Debugw("event dropped, channel full", "type", ev.Type)
	}
}

// diag mirrors a fact onto the page console so the orchestrator's passive
// console subscription can reconstruct it even when the structured
// channel was not drained.
func (a *Agent) diag(format string, args ...interface{}) {
	if a.page == nil {
		return
	}
	msg := fmt.Sprintf("[MeetScribe] "+format, args...)
	_, err := a.page.Evaluate(rod.Eval(`msg => console.log(msg)`, msg))
	if err != nil {
		a.log.Debugw("console diagnostic failed", "error", err)
	}
}

func (a *Agent) elapsed() float64 {
	return time.Since(a.started).Seconds()
}

// Join performs the pre-meeting flow: wait for the lobby to render, set
// the display name, request to join.
func (a *Agent) Join(ctx context.Context, displayName string) error {
	a.emit(Event{Type: EventStatus, Status: StatusJoining})

	if err := a.page.Context(ctx).Timeout(a.nav).WaitLoad(); err != nil {
		return fmt.Errorf("page load after %s: %w", a.nav, err)
	}
	a.emit(Event{Type: EventLoaded, URL: a.page.MustInfo().URL})
	a.diag("loaded: %s", a.page.MustInfo().URL)

	humanPause()

	if displayName != "" && a.sel.NameInput != "" {
		if el, err := a.page.Context(ctx).Timeout(5 * time.Second).Element(a.sel.NameInput); err == nil {
			if err := el.Input(displayName); err != nil {
				a.log.Warnw("could not set display name", "error", err)
			}
			humanPause()
		}
	}

	// Media off before joining keeps the bot unobtrusive; failure is
	// degraded-but-non-fatal.
	a.Mute(ctx)

	var joinErr error
	for _, selector := range a.sel.JoinButtons {
		if joinErr = a.clickWithRetry(ctx, selector, 3); joinErr == nil {
			a.diag("status: join requested")
			a.emit(Event{Type: EventStatus, Status: StatusWaiting})
			return nil
		}
	}
	return fmt.Errorf("no join control found: %w", joinErr)
}

// WaitUntilAdmitted polls the page until the in-meeting indicator appears
// or the admission timeout elapses. An ambiguous page keeps waiting; the
// timeout is the only escalation.
func (a *Agent) WaitUntilAdmitted(ctx context.Context, timeout time.Duration) error {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(a.capture.PollIntervalDuration())
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			a.diag("status: could not join: admission timeout after %s", timeout)
			return fmt.Errorf("timeout waiting for admission after %s", timeout)
		case <-tick.C:
			switch InferMeetingState(a.CollectSignals(ctx)) {
			case StateInMeeting:
				a.diag("status: joined")
				a.emit(Event{Type: EventStatus, Status: StatusJoined})
				return nil
			case StateDenied:
				a.diag("status: could not join: request denied")
				return fmt.Errorf("join request denied")
			case StateEnded:
				a.diag("status: could not join: meeting already over")
				return fmt.Errorf("meeting already over")
			}
		}
	}
}

// CollectSignals performs one observational poll of the page. It never
// clicks or mutates anything.
func (a *Agent) CollectSignals(ctx context.Context) Signals {
	var s Signals

	if a.sel.InMeetingIndicator != "" {
		has, _, err := a.page.Context(ctx).Has(a.sel.InMeetingIndicator)
		if err == nil && has {
			s.HasInMeetingControl = true
		}
	}

	text := a.visibleText(ctx)
	s.WaitingTextVisible = containsAny(text, a.sel.WaitingTexts)
	s.EndedTextVisible = containsAny(text, a.sel.EndedTexts)
	s.DeniedTextVisible = containsAny(text, a.sel.DeniedTexts)
	return s
}

func (a *Agent) visibleText(ctx context.Context) string {
	res, err := a.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      `() => (document.body && document.body.innerText || "").toLowerCase()`,
		ByValue: true,
	})
	if err != nil || res == nil {
		return ""
	}
	return res.Value.String()
}

func containsAny(haystack string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(haystack, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

// humanPause sleeps a short jittered interval between UI actions.
func humanPause() {
	time.Sleep(time.Duration(400+rand.Intn(800)) * time.Millisecond)
}
