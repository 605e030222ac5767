// Package transcript implements live caption segment aggregation.
// Raw caption fragments from the meeting UI are repeatedly rewritten in
// place until a speaker pauses; the aggregator merges that stream into
// stable, speaker-attributed, time-bounded segments exactly once.
package transcript

import (
	"fmt"
	"strings"
)

// Segment is one continuous utterance by one speaker.
// Mutable while active (more text may still arrive), immutable once
// finalized and appended to the ordered sequence.
type Segment struct {
	Speaker string  `json:"speaker"`
	Text    string  `json:"text"`
	Start   float64 `json:"start"` // elapsed seconds since session start
	End     float64 `json:"end"`
	Index   int     `json:"index"`
	Words   int     `json:"words,omitempty"`
}

// WordCount returns the number of whitespace-separated words in the text.
func (s Segment) WordCount() int {
	return len(strings.Fields(s.Text))
}

// Duration returns the elapsed span of the segment in seconds.
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// Flatten renders segments as one "speaker: text" line each, in order.
func Flatten(segments []Segment) string {
	var b strings.Builder
	for i, seg := range segments {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%s: %s", seg.Speaker, seg.Text)
	}
	return b.String()
}

// TotalDuration returns the largest End across segments.
func TotalDuration(segments []Segment) float64 {
	var max float64
	for _, seg := range segments {
		if seg.End > max {
			max = seg.End
		}
	}
	return max
}
