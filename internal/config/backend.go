package config

import "time"

// BackendConfig configures the backend relay.
type BackendConfig struct {
	BaseURL      string `yaml:"base_url"`
	WebsocketURL string `yaml:"websocket_url"`
	APIKey       string `yaml:"api_key"`

	// Batched delivery retry policy (the durability path).
	RequestTimeout string `yaml:"request_timeout"`
	RetryAttempts  int    `yaml:"retry_attempts"`
	RetryBackoff   string `yaml:"retry_backoff"`

	// Push channel reconnect policy (best-effort path).
	PushReconnectAttempts int    `yaml:"push_reconnect_attempts"`
	PushReconnectBackoff  string `yaml:"push_reconnect_backoff"`
}

// DefaultBackendConfig returns backend defaults.
func DefaultBackendConfig() BackendConfig {
	return BackendConfig{
		BaseURL:               "http://localhost:8080",
		WebsocketURL:          "ws://localhost:8080/ws/bots",
		RequestTimeout:        "15s",
		RetryAttempts:         5,
		RetryBackoff:          "2s",
		PushReconnectAttempts: 10,
		PushReconnectBackoff:  "3s",
	}
}

// RequestTimeoutDuration returns the parsed per-request timeout.
func (c BackendConfig) RequestTimeoutDuration() time.Duration {
	d, _ := parseDuration(c.RequestTimeout, 15*time.Second)
	return d
}

// RetryBackoffDuration returns the parsed delay between delivery retries.
func (c BackendConfig) RetryBackoffDuration() time.Duration {
	d, _ := parseDuration(c.RetryBackoff, 2*time.Second)
	return d
}

// PushReconnectBackoffDuration returns the parsed fixed backoff between
// push reconnect attempts.
func (c BackendConfig) PushReconnectBackoffDuration() time.Duration {
	d, _ := parseDuration(c.PushReconnectBackoff, 3*time.Second)
	return d
}
