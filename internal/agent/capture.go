package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-rod/rod"

	"meetscribe/internal/transcript"
)

// captureScript installs a MutationObserver over the caption region and
// buffers raw fragments on the window object. Each fragment is also
// mirrored to the console so the fact survives even if the Go side never
// drains the buffer. Re-running the script is a no-op.
const captureScript = `
(regionSelector) => {
	const w = window;
	if (w.__meetscribeHooked) return true;
	w.__meetscribeHooked = true;
	w.__meetscribeBuf = [];

	const record = (speaker, text) => {
		try {
			speaker = (speaker || '').trim();
			text = (text || '').trim();
			if (!text) return;
			w.__meetscribeBuf.push({ speaker, text, ts: Date.now() });
			console.log('[MeetScribe][Caption] ' + (speaker || 'Unknown') + ': ' + text);
		} catch (e) {}
	};

	const extract = () => {
		const region = document.querySelector(regionSelector);
		if (!region) return;
		for (const entry of Array.from(region.children)) {
			const raw = (entry.innerText || '').trim();
			if (!raw) continue;
			const lines = raw.split('\n').map(s => s.trim()).filter(Boolean);
			if (lines.length >= 2) {
				record(lines[0], lines.slice(1).join(' '));
			} else if (lines.length === 1) {
				record('', lines[0]);
			}
		}
	};

	const obs = new MutationObserver(() => extract());
	obs.observe(document.body, { childList: true, subtree: true, characterData: true });
	w.__meetscribeObserver = obs;
	return true;
}
`

const drainScript = `
() => {
	const buf = Array.isArray(window.__meetscribeBuf) ? window.__meetscribeBuf : [];
	window.__meetscribeBuf = [];
	return buf;
}
`

type rawFragment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	TS      float64 `json:"ts"`
}

// StartCapture installs the in-page observer and starts the drain loop.
// The loop runs until Leave or context cancellation.
func (a *Agent) StartCapture(ctx context.Context) error {
	// The caption region selector may hold comma alternatives; the first
	// alternative that matches wins inside the script.
	_, err := a.page.Context(ctx).Evaluate(rod.Eval(captureScript, a.sel.CaptionsRegion))
	if err != nil {
		return fmt.Errorf("install caption observer: %w", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	a.stopFn = cancel

	a.diag("status: recording")
	a.emit(Event{Type: EventStatus, Status: StatusRecording})

	a.wg.Add(1)
	go a.drainLoop(captureCtx)
	return nil
}

// drainLoop pulls buffered fragments on a fixed cadence, filters UI
// noise, feeds the aggregator and watches for the end of the meeting.
func (a *Agent) drainLoop(ctx context.Context) {
	defer a.wg.Done()

	tick := time.NewTicker(a.capture.PollIntervalDuration())
	defer tick.Stop()

	// Re-evaluate the meeting-state predicate on a slower cadence than
	// the caption drain.
	const stateEvery = 6
	ticks := 0

	for {
		select {
		case <-ctx.Done():
			return
		case <-tick.C:
			for _, frag := range a.drainFragments(ctx) {
				a.observeFragment(frag)
			}
			ticks++
			if ticks%stateEvery == 0 {
				if InferMeetingState(a.CollectSignals(ctx)) == StateEnded {
					a.diag("status: meeting ended")
					go a.Leave("meeting ended")
					return
				}
			}
		}
	}
}

func (a *Agent) drainFragments(ctx context.Context) []rawFragment {
	res, err := a.page.Context(ctx).Evaluate(&rod.EvalOptions{
		JS:      drainScript,
		ByValue: true,
	})
	if err != nil || res == nil || res.Value.Nil() {
		return nil
	}
	raw, err := res.Value.MarshalJSON()
	if err != nil {
		return nil
	}
	var frags []rawFragment
	if err := json.Unmarshal(raw, &frags); err != nil {
		return nil
	}
	return frags
}

// observeFragment runs one raw fragment through the noise filter, the
// exit-phrase detector and the aggregator.
func (a *Agent) observeFragment(frag rawFragment) {
	if IsNoise(frag.Text) {
		return
	}

	speaker := frag.Speaker
	if speaker == "" {
		speaker = a.capture.UnknownSpeaker
	}

	// The phrase check runs on every non-noise fragment, not only the
	// ones the aggregator accepts: the console channel may have fed the
	// same text into the aggregator first, and a suppressed duplicate
	// must still trigger the leave. Leave's guard absorbs repeats.
	if ContainsExitPhrase(frag.Text, a.capture.ExitPhrases) {
		a.log.Infow("exit phrase heard", "speaker", speaker)
		go a.Leave("exit phrase")
	}

	if !a.agg.Observe(frag.Speaker, frag.Text) {
		return
	}
	a.emit(Event{Type: EventCaption, Segment: &transcript.Segment{
		Speaker: speaker,
		Text:    frag.Text,
		Start:   a.elapsed(),
		End:     a.elapsed(),
	}})
}

// Leave runs the leave sequence exactly once per session no matter how
// many trigger paths fire: stop capture, terminal flush, best-effort UI
// leave, completion event. Safe to call concurrently.
func (a *Agent) Leave(reason string) {
	if !a.leaving.CompareAndSwap(false, true) {
		return
	}
	a.log.Infow("leaving meeting", "reason", reason)

	if a.stopFn != nil {
		a.stopFn()
	}
	a.wg.Wait()

	// Terminal flush: everything finalized plus everything in progress.
	snapshot := a.agg.SnapshotForFlush()
	duration := a.elapsed()
	if len(snapshot) > 0 {
		a.emit(Event{Type: EventFlush, Segments: snapshot, Duration: duration})
	}
	a.agg.MarkFlushed(true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if a.sel.LeaveButton != "" {
		if err := a.clickWithRetry(ctx, a.sel.LeaveButton, 2); err != nil {
			a.log.Warnw("UI leave failed, page will be closed by the orchestrator", "error", err)
		}
	}

	final := a.agg.Segments()
	a.diag("status: meeting ended")
	a.emit(Event{
		Type:     EventCompleted,
		Reason:   reason,
		Segments: final,
		Duration: duration,
	})
}

// Leaving reports whether the leave sequence has started.
func (a *Agent) Leaving() bool {
	return a.leaving.Load()
}
