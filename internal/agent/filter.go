package agent

import (
	"regexp"
	"strings"
)

// The live caption region has no structural guarantee of carrying only
// caption text: button labels, icon ligature names and system banners
// leak into mutation records. The filter rejects the known shapes.

var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^[a-z]+_[a-z_]+$`),     // icon ligatures: more_vert, arrow_downward
	regexp.MustCompile(`^\d{1,2}:\d{2}`),       // clock overlay
	regexp.MustCompile(`(?i)^(mic|camera|cam)[ _]?(is )?(on|off)$`),
	regexp.MustCompile(`(?i)^turn (on|off) `),  // control labels
}

var noiseStrings = map[string]struct{}{
	"you":              {},
	"meeting details":  {},
	"people":           {},
	"chat":             {},
	"activities":       {},
	"captions":         {},
	"jump to bottom":   {},
	"present now":      {},
	"more options":     {},
	"leave call":       {},
	"call ended":       {},
}

// IsNoise reports whether a raw fragment is UI chrome rather than speech.
func IsNoise(text string) bool {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) < 3 {
		return true
	}
	lower := strings.ToLower(trimmed)
	if _, ok := noiseStrings[lower]; ok {
		return true
	}
	for _, p := range noisePatterns {
		if p.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// ContainsExitPhrase reports whether an accepted fragment asks the bot to
// leave. Matching is a case-insensitive substring check; the caller's
// leave guard handles the same phrase arriving in overlapping mutation
// events.
func ContainsExitPhrase(text string, phrases []string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}
	return false
}
