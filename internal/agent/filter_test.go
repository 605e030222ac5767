package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsNoise(t *testing.T) {
	noisy := []string{
		"",
		"ab",
		"more_vert",
		"arrow_downward",
		"present_to_all",
		"Jump to bottom",
		"Leave call",
		"mic off",
		"Turn on captions",
		"10:42",
		"You",
	}
	for _, s := range noisy {
		assert.True(t, IsNoise(s), "expected noise: %q", s)
	}

	speech := []string{
		"Hi there, everyone",
		"yes absolutely",
		"I think we should postpone the launch",
		"The turn off date is next week", // control label shape only at start
	}
	for _, s := range speech {
		assert.False(t, IsNoise(s), "expected speech: %q", s)
	}
}

func TestContainsExitPhrase(t *testing.T) {
	phrases := []string{"bot, please leave", "scribe, please leave"}

	assert.True(t, ContainsExitPhrase("Okay BOT, please LEAVE now", phrases))
	assert.True(t, ContainsExitPhrase("scribe, please leave", phrases))
	assert.False(t, ContainsExitPhrase("please don't leave yet", phrases))
	assert.False(t, ContainsExitPhrase("bot, please stay", phrases))
	assert.False(t, ContainsExitPhrase("anything", nil))
}
