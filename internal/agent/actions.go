package agent

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

const actionTimeout = 5 * time.Second

// clickWithRetry locates and clicks an element, retrying transient
// failures with jittered delay. An expected control that never appears is
// the caller's problem to classify (fatal vs degraded).
func (a *Agent) clickWithRetry(ctx context.Context, selector string, attempts int) error {
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			jitterSleep(500*time.Millisecond, 1500*time.Millisecond)
		}
		el, err := a.page.Context(ctx).Timeout(actionTimeout).Element(selector)
		if err != nil {
			lastErr = fmt.Errorf("element not found: %w", err)
			continue
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			lastErr = fmt.Errorf("click failed: %w", err)
			continue
		}
		return nil
	}
	return fmt.Errorf("%s after %d attempts: %w", selector, attempts, lastErr)
}

// Mute turns microphone and camera off. Both are best-effort: an unmuted
// bot is undesirable, not fatal.
func (a *Agent) Mute(ctx context.Context) {
	for _, selector := range []string{a.sel.MuteButton, a.sel.CameraButton} {
		if selector == "" {
			continue
		}
		if err := a.clickWithRetry(ctx, selector, 2); err != nil {
			a.log.Warnw("media control not muted", "selector", selector, "error", err)
		}
		humanPause()
	}
}

// EnableCaptions switches the provider's live captions on. Captions are
// the capture source, so failure here is fatal for the session.
func (a *Agent) EnableCaptions(ctx context.Context) error {
	if a.sel.CaptionsToggle == "" {
		return fmt.Errorf("no captions toggle configured")
	}
	if err := a.clickWithRetry(ctx, a.sel.CaptionsToggle, 4); err != nil {
		return fmt.Errorf("enable captions: %w", err)
	}
	a.diag("status: captions enabled")
	return nil
}

// Announce posts a message to the meeting chat so participants know a
// recording bot is present. Best-effort.
func (a *Agent) Announce(ctx context.Context, text string) {
	if text == "" || a.sel.ChatOpenButton == "" || a.sel.ChatInput == "" {
		return
	}
	if err := a.clickWithRetry(ctx, a.sel.ChatOpenButton, 2); err != nil {
		a.log.Warnw("could not open chat", "error", err)
		return
	}
	humanPause()
	el, err := a.page.Context(ctx).Timeout(actionTimeout).Element(a.sel.ChatInput)
	if err != nil {
		a.log.Warnw("chat input not found", "error", err)
		return
	}
	if err := el.Input(text); err != nil {
		a.log.Warnw("could not type announcement", "error", err)
		return
	}
	_ = a.page.Keyboard.Press(input.Enter)
	humanPause()
	// Close the chat panel again so it does not cover indicators.
	_ = a.clickWithRetry(ctx, a.sel.ChatOpenButton, 1)
}

func jitterSleep(min, max time.Duration) {
	time.Sleep(min + time.Duration(rand.Int63n(int64(max-min))))
}
