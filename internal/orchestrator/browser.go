package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"

	"meetscribe/internal/agent"
	"meetscribe/internal/logging"
)

// browserHandle bundles the per-session browser process with its single
// page. Each orchestrator launches its own process so sessions cannot
// interfere with each other and a crash takes down nothing else.
type browserHandle struct {
	launch  *launcher.Launcher
	browser *rod.Browser
	page    *rod.Page
}

// launchBrowser starts an isolated browser process and opens the meeting
// URL in its one page.
func (o *Orchestrator) launchBrowser(ctx context.Context) (*browserHandle, error) {
	log := logging.Get(logging.CategoryBrowser)

	launch := launcher.New().Headless(o.cfg.Browser.Headless)
	if o.cfg.Browser.Bin != "" {
		launch = launch.Bin(o.cfg.Browser.Bin)
	}
	// Meeting pages want a media stream; fake devices keep the getUserMedia
	// prompts from blocking the join flow.
	launch = launch.
		Set(flags.Flag("use-fake-ui-for-media-stream")).
		Set(flags.Flag("use-fake-device-for-media-stream")).
		Set(flags.Flag("autoplay-policy"), "no-user-gesture-required")
	if o.cfg.Browser.UserAgent != "" {
		launch = launch.Set(flags.Flag("user-agent"), o.cfg.Browser.UserAgent)
	}

	controlURL, err := launch.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch chrome: %w", err)
	}

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		launch.Cleanup()
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{URL: o.url})
	if err != nil {
		_ = browser.Close()
		launch.Cleanup()
		return nil, fmt.Errorf("create page: %w", err)
	}

	if err := (proto.EmulationSetDeviceMetricsOverride{
		Width:             o.cfg.Browser.ViewportWidth,
		Height:            o.cfg.Browser.ViewportHeight,
		DeviceScaleFactor: 1.0,
		Mobile:            false,
	}).Call(page); err != nil {
		log.Warnw("failed to set viewport", "error", err)
	}

	log.Infow("browser ready", "meeting", o.meetingID, "url", o.url, "headless", o.cfg.Browser.Headless)
	return &browserHandle{launch: launch, browser: browser, page: page}, nil
}

// subscribeConsole wires the page's console output into the dispatch
// table. The in-page agent mirrors captions and status changes as tagged
// console lines; anything that parses is handled like a structured event,
// relying on handler idempotency to absorb the duplication.
func (o *Orchestrator) subscribeConsole(ctx context.Context, page *rod.Page) {
	go page.Context(ctx).EachEvent(func(ev *proto.RuntimeConsoleAPICalled) {
		line := stringifyConsoleArgs(ev.Args)
		if line == "" {
			return
		}
		parsed, ok := ParseConsoleLine(line)
		if !ok {
			return
		}
		if parsed.Type == agent.EventCaption {
			o.onConsoleCaption(ctx, parsed)
			return
		}
		o.handleEvent(ctx, parsed)
	})()
}

func (o *Orchestrator) teardownBrowser() {
	if o.browser == nil {
		return
	}
	if o.browser.page != nil {
		_ = o.browser.page.Close()
	}
	_ = o.browser.browser.Close()
	o.browser.launch.Cleanup()
}

func stringifyConsoleArgs(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.Str())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}
