package orchestrator

import (
	"regexp"
	"strings"

	"meetscribe/internal/agent"
	"meetscribe/internal/transcript"
)

// The agent mirrors its facts as human-readable console lines. The
// structured channel can be lost when nobody is draining it at the right
// moment; the console stream is captured passively and parsed here as an
// alternate, possibly duplicate source of the same facts.

var (
	captionLineRe = regexp.MustCompile(`\[MeetScribe\]\[Caption\]\s+([^:]+):\s*(.+)`)
	statusLineRe  = regexp.MustCompile(`\[MeetScribe\]\s+status:\s*(.+)`)
	loadedLineRe  = regexp.MustCompile(`\[MeetScribe\]\s+loaded:\s*(\S+)`)
)

// ParseConsoleLine recognizes one diagnostic line. Lines that carry no
// known fact return ok=false and are ignored.
func ParseConsoleLine(line string) (agent.Event, bool) {
	if m := captionLineRe.FindStringSubmatch(line); m != nil {
		return agent.Event{
			Type: agent.EventCaption,
			Segment: &transcript.Segment{
				Speaker: strings.TrimSpace(m[1]),
				Text:    strings.TrimSpace(m[2]),
			},
		}, true
	}

	if m := loadedLineRe.FindStringSubmatch(line); m != nil {
		return agent.Event{Type: agent.EventLoaded, URL: m[1]}, true
	}

	if m := statusLineRe.FindStringSubmatch(line); m != nil {
		detail := strings.TrimSpace(m[1])
		lower := strings.ToLower(detail)
		switch {
		case strings.HasPrefix(lower, "could not join"):
			return agent.Event{Type: agent.EventStatus, Status: agent.StatusJoinFailed, Detail: detail}, true
		case strings.HasPrefix(lower, "join requested"):
			return agent.Event{Type: agent.EventStatus, Status: agent.StatusWaiting, Detail: detail}, true
		case strings.HasPrefix(lower, "joined"):
			return agent.Event{Type: agent.EventStatus, Status: agent.StatusJoined, Detail: detail}, true
		case strings.HasPrefix(lower, "recording"):
			return agent.Event{Type: agent.EventStatus, Status: agent.StatusRecording, Detail: detail}, true
		case strings.HasPrefix(lower, "meeting ended"):
			return agent.Event{Type: agent.EventStatus, Status: agent.StatusMeetingEnded, Detail: detail}, true
		}
	}

	return agent.Event{}, false
}
