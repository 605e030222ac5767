package transcript

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Config holds aggregation tuning knobs.
type Config struct {
	// PrefixLen is the fixed prefix length used for the continuation
	// heuristic: a new fragment extends the active segment iff it begins
	// with this many characters of the active text.
	PrefixLen int

	// MinUnresolvedLen rejects fragments shorter than this while the
	// speaker identity is still the unresolved placeholder. The raw UI
	// signal has no structural guarantee of being caption-only text.
	MinUnresolvedLen int

	// UnknownSpeaker is the placeholder identity for fragments whose
	// speaker badge could not be read.
	UnknownSpeaker string

	// Now reports elapsed seconds since session start. Injected so tests
	// control the clock.
	Now func() float64
}

// DefaultConfig returns the aggregation defaults.
func DefaultConfig() Config {
	start := time.Now()
	return Config{
		PrefixLen:        20,
		MinUnresolvedLen: 8,
		UnknownSpeaker:   "Unknown",
		Now:              func() float64 { return time.Since(start).Seconds() },
	}
}

// Aggregator merges raw caption fragments into finalized segments.
//
// Invariants: a speaker has at most one active segment at any time; a
// finalized segment is appended to the ordered sequence exactly once; a
// segment already reported as flushed is never reported again.
type Aggregator struct {
	mu        sync.Mutex
	cfg       Config
	active    map[string]*Segment
	lastSeen  map[string]string
	finalized []Segment
	flushed   int // boundary into finalized: everything before it was acked
	snapshot  int // boundary into finalized at the last SnapshotForFlush
	nextIndex int
}

// New creates an aggregator. Zero-value config fields fall back to defaults.
func New(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.PrefixLen <= 0 {
		cfg.PrefixLen = def.PrefixLen
	}
	if cfg.MinUnresolvedLen <= 0 {
		cfg.MinUnresolvedLen = def.MinUnresolvedLen
	}
	if cfg.UnknownSpeaker == "" {
		cfg.UnknownSpeaker = def.UnknownSpeaker
	}
	if cfg.Now == nil {
		cfg.Now = def.Now
	}
	return &Aggregator{
		cfg:      cfg,
		active:   make(map[string]*Segment),
		lastSeen: make(map[string]string),
	}
}

// Observe merges one raw fragment. It returns true when the fragment was
// accepted (extended or opened a segment) and false when rejected as
// noise or suppressed as an exact duplicate of the previous fragment.
func (a *Aggregator) Observe(speaker, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}
	speaker = strings.TrimSpace(speaker)
	if speaker == "" {
		speaker = a.cfg.UnknownSpeaker
	}
	// A speaker badge misread as caption body.
	if strings.EqualFold(text, speaker) {
		return false
	}
	if speaker == a.cfg.UnknownSpeaker && len(text) < a.cfg.MinUnresolvedLen {
		return false
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lastSeen[speaker] == text {
		return false
	}
	a.lastSeen[speaker] = text

	now := a.cfg.Now()
	if cur, ok := a.active[speaker]; ok {
		if strings.HasPrefix(text, prefixOf(cur.Text, a.cfg.PrefixLen)) {
			// Continuation: the live UI rewrote the caption in place.
			cur.Text = text
			cur.End = now
			return true
		}
		a.finalizeLocked(speaker)
	}

	a.active[speaker] = &Segment{
		Speaker: speaker,
		Text:    text,
		Start:   now,
		End:     now,
		Index:   a.nextIndex,
	}
	a.nextIndex++
	return true
}

// Finalize commits the speaker's active segment, if any, to the ordered
// sequence and returns a copy of it.
func (a *Aggregator) Finalize(speaker string) *Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.finalizeLocked(speaker)
}

func (a *Aggregator) finalizeLocked(speaker string) *Segment {
	cur, ok := a.active[speaker]
	if !ok {
		return nil
	}
	delete(a.active, speaker)
	cur.Words = cur.WordCount()
	a.finalized = append(a.finalized, *cur)
	out := *cur
	return &out
}

// FinalizeAll commits every active segment in the order it was opened.
func (a *Aggregator) FinalizeAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finalizeAllLocked()
}

func (a *Aggregator) finalizeAllLocked() {
	speakers := make([]string, 0, len(a.active))
	for sp := range a.active {
		speakers = append(speakers, sp)
	}
	sort.Slice(speakers, func(i, j int) bool {
		return a.active[speakers[i]].Index < a.active[speakers[j]].Index
	})
	for _, sp := range speakers {
		a.finalizeLocked(sp)
	}
}

// SnapshotForFlush returns every finalized-but-not-yet-flushed segment
// plus point-in-time copies of all active segments. Active segments are
// not removed; they may still grow. Safe to call repeatedly without an
// intervening MarkFlushed.
func (a *Aggregator) SnapshotForFlush() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.snapshot = len(a.finalized)
	out := make([]Segment, 0, len(a.finalized)-a.flushed+len(a.active))
	out = append(out, a.finalized[a.flushed:]...)

	actives := make([]Segment, 0, len(a.active))
	for _, seg := range a.active {
		cp := *seg
		cp.Words = cp.WordCount()
		actives = append(actives, cp)
	}
	sort.Slice(actives, func(i, j int) bool { return actives[i].Index < actives[j].Index })
	return append(out, actives...)
}

// MarkFlushed advances the already-flushed boundary. Call only after the
// consumer acknowledged the previous snapshot. The boundary moves to
// where the finalized sequence stood when that snapshot was taken, so a
// segment finalized while the delivery was in flight stays eligible for
// the next snapshot. A terminal flush also moves all active segments
// into the finalized sequence so nothing in progress is silently
// dropped.
func (a *Aggregator) MarkFlushed(terminal bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if terminal {
		a.finalizeAllLocked()
		a.flushed = len(a.finalized)
		a.snapshot = a.flushed
		return
	}
	if a.snapshot > a.flushed {
		a.flushed = a.snapshot
	}
}

// Segments returns a copy of the full finalized sequence.
func (a *Aggregator) Segments() []Segment {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Segment, len(a.finalized))
	copy(out, a.finalized)
	return out
}

// ActiveCount reports how many speakers have an in-progress segment.
func (a *Aggregator) ActiveCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.active)
}

func prefixOf(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
