// Package config holds all meetscribe configuration. One struct per
// concern per file; values load from YAML with environment overrides for
// deployment secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all meetscribe configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// Browser process settings (one isolated process per session)
	Browser BrowserConfig `yaml:"browser"`

	// Capture loop and segment aggregation settings
	Capture CaptureConfig `yaml:"capture"`

	// Backend relay (push channel + batched delivery)
	Backend BackendConfig `yaml:"backend"`

	// Operator-facing HTTP API
	API APIConfig `yaml:"api"`

	// Local transcript archive
	Archive ArchiveConfig `yaml:"archive"`

	// Provider UI selector heuristics
	Selectors SelectorsConfig `yaml:"selectors"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DefaultConfig returns the configuration defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:      "meetscribe",
		Version:   "1.0.0",
		Browser:   DefaultBrowserConfig(),
		Capture:   DefaultCaptureConfig(),
		Backend:   DefaultBackendConfig(),
		API:       DefaultAPIConfig(),
		Archive:   DefaultArchiveConfig(),
		Selectors: DefaultSelectorsConfig(),
		Logging:   DefaultLoggingConfig(),
	}
}

// Load reads configuration from path, overlaying defaults. A missing
// file is not an error; defaults are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides lets deployment environments override secrets and
// endpoints without editing the config file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MEETSCRIBE_BACKEND_URL"); v != "" {
		c.Backend.BaseURL = v
	}
	if v := os.Getenv("MEETSCRIBE_BACKEND_WS_URL"); v != "" {
		c.Backend.WebsocketURL = v
	}
	if v := os.Getenv("MEETSCRIBE_API_KEY"); v != "" {
		c.Backend.APIKey = v
	}
	if v := os.Getenv("MEETSCRIBE_LISTEN_ADDR"); v != "" {
		c.API.ListenAddr = v
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	if c.API.ListenAddr == "" {
		return fmt.Errorf("api.listen_addr is required")
	}
	if len(c.API.AllowedMeetingHosts) == 0 {
		return fmt.Errorf("api.allowed_meeting_hosts must name at least one provider host")
	}
	if _, err := c.Capture.FlushIntervalDuration(); err != nil {
		return fmt.Errorf("capture.flush_interval: %w", err)
	}
	if _, err := c.Capture.MaxDurationDuration(); err != nil {
		return fmt.Errorf("capture.max_duration: %w", err)
	}
	if _, err := c.Capture.AdmissionTimeoutDuration(); err != nil {
		return fmt.Errorf("capture.admission_timeout: %w", err)
	}
	return nil
}

// parseDuration parses a duration string, falling back when empty or invalid
// input should not be fatal at the call site.
func parseDuration(s string, fallback time.Duration) (time.Duration, error) {
	if s == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback, err
	}
	return d, nil
}
