package config

// SelectorsConfig names the UI elements and indicator texts the agent
// uses to drive and observe the meeting page. These are heuristics for
// one provider's interface and change from release to release, so they
// are configuration rather than code constants.
type SelectorsConfig struct {
	// Pre-join controls.
	NameInput   string   `yaml:"name_input"`
	JoinButtons []string `yaml:"join_buttons"` // tried in order

	// In-meeting controls.
	LeaveButton    string `yaml:"leave_button"`
	MuteButton     string `yaml:"mute_button"`
	CameraButton   string `yaml:"camera_button"`
	CaptionsToggle string `yaml:"captions_toggle"`
	CaptionsRegion string `yaml:"captions_region"`
	ChatOpenButton string `yaml:"chat_open_button"`
	ChatInput      string `yaml:"chat_input"`

	// Positive indicator: exists only once actually admitted.
	InMeetingIndicator string `yaml:"in_meeting_indicator"`

	// Negative indicators: page texts inspected case-insensitively.
	WaitingTexts []string `yaml:"waiting_texts"`
	EndedTexts   []string `yaml:"ended_texts"`
	DeniedTexts  []string `yaml:"denied_texts"`
}

// DefaultSelectorsConfig returns selector defaults for the supported
// provider.
func DefaultSelectorsConfig() SelectorsConfig {
	return SelectorsConfig{
		NameInput: `input[placeholder="Your name"]`,
		JoinButtons: []string{
			`button[aria-label="Ask to join"]`,
			`button[aria-label="Join now"]`,
		},
		LeaveButton:        `button[aria-label="Leave call"]`,
		MuteButton:         `button[aria-label*="Turn off microphone"]`,
		CameraButton:       `button[aria-label*="Turn off camera"]`,
		CaptionsToggle:     `button[aria-label*="captions"]`,
		CaptionsRegion:     `div[aria-label="Captions"], div[jsname="dsyhDe"]`,
		ChatOpenButton:     `button[aria-label="Chat with everyone"]`,
		ChatInput:          `textarea[aria-label="Send a message"]`,
		InMeetingIndicator: `button[aria-label="Leave call"]`,
		WaitingTexts: []string{
			"asking to be let in",
			"waiting for the host",
			"someone will let you in",
		},
		EndedTexts: []string{
			"you've been removed from the meeting",
			"the call has ended",
			"return to home screen",
			"no one else is here",
		},
		DeniedTexts: []string{
			"you can't join this video call",
			"your request to join was denied",
		},
	}
}
