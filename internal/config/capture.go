package config

import "time"

// CaptureConfig configures the capture loop and segment aggregation.
type CaptureConfig struct {
	// PollInterval is the cadence for draining the in-page caption buffer
	// and re-evaluating the meeting-state predicate.
	PollInterval string `yaml:"poll_interval"`

	// FlushInterval is the periodic non-terminal delivery cadence.
	FlushInterval string `yaml:"flush_interval"`

	// MaxDuration is the hard ceiling on a session before a synthesized
	// completion.
	MaxDuration string `yaml:"max_duration"`

	// AdmissionTimeout bounds the waiting-room wait; exceeding it fails
	// the session.
	AdmissionTimeout string `yaml:"admission_timeout"`

	// ExitPhrases trigger the leave sequence when spoken in a caption.
	ExitPhrases []string `yaml:"exit_phrases"`

	// Announcement is sent to the meeting chat once admitted. Empty
	// disables it.
	Announcement string `yaml:"announcement"`

	// ContinuationPrefixLen is the fixed prefix length for the
	// continuation heuristic.
	ContinuationPrefixLen int `yaml:"continuation_prefix_len"`

	// MinUnresolvedLen rejects shorter fragments while the speaker is
	// unresolved.
	MinUnresolvedLen int `yaml:"min_unresolved_len"`

	// UnknownSpeaker is the placeholder speaker identity.
	UnknownSpeaker string `yaml:"unknown_speaker"`

	// AudioChunkSeconds is the fixed length of relayed audio chunks.
	AudioChunkSeconds int `yaml:"audio_chunk_seconds"`
}

// DefaultCaptureConfig returns capture defaults.
func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		PollInterval:          "500ms",
		FlushInterval:         "30s",
		MaxDuration:           "2h",
		AdmissionTimeout:      "5m",
		ExitPhrases:           []string{"bot, please leave", "scribe, please leave"},
		Announcement:          "MeetScribe has joined to take notes for this meeting.",
		ContinuationPrefixLen: 20,
		MinUnresolvedLen:      8,
		UnknownSpeaker:        "Unknown",
		AudioChunkSeconds:     10,
	}
}

// PollIntervalDuration returns the parsed drain cadence.
func (c CaptureConfig) PollIntervalDuration() time.Duration {
	d, _ := parseDuration(c.PollInterval, 500*time.Millisecond)
	return d
}

// FlushIntervalDuration returns the parsed flush cadence.
func (c CaptureConfig) FlushIntervalDuration() (time.Duration, error) {
	return parseDuration(c.FlushInterval, 30*time.Second)
}

// MaxDurationDuration returns the parsed session ceiling.
func (c CaptureConfig) MaxDurationDuration() (time.Duration, error) {
	return parseDuration(c.MaxDuration, 2*time.Hour)
}

// AdmissionTimeoutDuration returns the parsed waiting-room bound.
func (c CaptureConfig) AdmissionTimeoutDuration() (time.Duration, error) {
	return parseDuration(c.AdmissionTimeout, 5*time.Minute)
}
