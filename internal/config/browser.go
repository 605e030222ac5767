package config

import "time"

// BrowserConfig configures the per-session browser process.
type BrowserConfig struct {
	Bin               string `yaml:"bin"`      // empty = rod's managed download
	Headless          bool   `yaml:"headless"`
	ViewportWidth     int    `yaml:"viewport_width"`
	ViewportHeight    int    `yaml:"viewport_height"`
	UserAgent         string `yaml:"user_agent"`
	NavigationTimeout string `yaml:"navigation_timeout"`
	LeaveGrace        string `yaml:"leave_grace"` // wait for agent-reported leave before force close
}

// DefaultBrowserConfig returns browser defaults.
func DefaultBrowserConfig() BrowserConfig {
	return BrowserConfig{
		Headless:          true,
		ViewportWidth:     1280,
		ViewportHeight:    720,
		NavigationTimeout: "45s",
		LeaveGrace:        "15s",
	}
}

// NavigationTimeoutDuration returns the parsed navigation timeout.
func (c BrowserConfig) NavigationTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.NavigationTimeout, 45*time.Second)
	return d
}

// LeaveGraceDuration returns how long a cooperative stop waits before the
// browser process is force-closed.
func (c BrowserConfig) LeaveGraceDuration() time.Duration {
	d, _ := parseDuration(c.LeaveGrace, 15*time.Second)
	return d
}
