package config

// APIConfig configures the operator-facing HTTP API.
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`

	// AllowedMeetingHosts restricts join requests to the supported
	// provider. A join for any other host is rejected up front.
	AllowedMeetingHosts []string `yaml:"allowed_meeting_hosts"`
}

// DefaultAPIConfig returns API defaults.
func DefaultAPIConfig() APIConfig {
	return APIConfig{
		ListenAddr:          ":7090",
		AllowedMeetingHosts: []string{"meet.google.com"},
	}
}
