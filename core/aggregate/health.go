package aggregate

import (
	"sort"
	"sync"
	"time"

	"TrackHound/core/source"
	"TrackHound/model"
)

const (
	initialScore = 1.0
	// healthFloor is the eligibility threshold. Sources below it are
	// skipped until probes or later successes lift them back over.
	healthFloor = 0.3

	successGain = 0.3
	slowGain    = 0.1
	failDecay   = 0.6
	authDecay   = 0.3

	// slowFraction of the per-source timeout marks a success as slow.
	slowFraction = 0.8
)

// HealthSnapshot is a read-only view of one source's tracked state.
type HealthSnapshot struct {
	Source      model.TrackSource `json:"source"`
	Score       float64           `json:"score"`
	Eligible    bool              `json:"eligible"`
	Successes   uint64            `json:"successes"`
	Failures    uint64            `json:"failures"`
	LastLatency time.Duration     `json:"lastLatencyMs"`
	LastError   string            `json:"lastError,omitempty"`
	UpdatedAt   time.Time         `json:"updatedAt"`
}

type sourceHealth struct {
	mu          sync.Mutex
	score       float64
	successes   uint64
	failures    uint64
	lastLatency time.Duration
	lastError   string
	updatedAt   time.Time
}

// HealthTracker keeps a reliability score per source. Scores live in
// [0, 1], start at 1.0 and move on every recorded outcome: successes
// close a fraction of the gap to 1.0, failures decay multiplicatively.
// Each source carries its own lock so a slow update on one source never
// blocks reads or writes on another.
type HealthTracker struct {
	mu      sync.RWMutex
	sources map[model.TrackSource]*sourceHealth
}

func NewHealthTracker() *HealthTracker {
	return &HealthTracker{sources: make(map[model.TrackSource]*sourceHealth)}
}

func (t *HealthTracker) entry(src model.TrackSource) *sourceHealth {
	t.mu.RLock()
	h, ok := t.sources[src]
	t.mu.RUnlock()
	if ok {
		return h
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if h, ok = t.sources[src]; ok {
		return h
	}
	h = &sourceHealth{score: initialScore}
	t.sources[src] = h
	return h
}

// Score returns the current score for a source. Untracked sources start
// at the initial score.
func (t *HealthTracker) Score(src model.TrackSource) float64 {
	h := t.entry(src)
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.score
}

// Eligible reports whether a source is healthy enough to be called.
func (t *HealthTracker) Eligible(src model.TrackSource) bool {
	return t.Score(src) >= healthFloor
}

// RecordSuccess moves the score toward 1.0. A success that took more
// than slowFraction of the source's timeout earns a smaller gain, so a
// source that barely answers in time drifts down relative to fast ones.
func (t *HealthTracker) RecordSuccess(src model.TrackSource, latency, timeout time.Duration) {
	gain := successGain
	if timeout > 0 && latency > time.Duration(slowFraction*float64(timeout)) {
		gain = slowGain
	}
	h := t.entry(src)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.score = clampScore(h.score + gain*(1-h.score))
	h.successes++
	h.lastLatency = latency
	h.lastError = ""
	h.updatedAt = time.Now()
}

// RecordFailure decays the score. Authentication failures decay harder:
// they do not heal on their own and every retry against them is wasted.
func (t *HealthTracker) RecordFailure(src model.TrackSource, err error) {
	decay := failDecay
	if source.IsAuthFailed(err) {
		decay = authDecay
	}
	h := t.entry(src)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.score = clampScore(h.score * decay)
	h.failures++
	if err != nil {
		h.lastError = err.Error()
	}
	h.updatedAt = time.Now()
}

// Snapshot returns the tracked state of every source seen so far.
func (t *HealthTracker) Snapshot() []HealthSnapshot {
	t.mu.RLock()
	srcs := make([]model.TrackSource, 0, len(t.sources))
	for src := range t.sources {
		srcs = append(srcs, src)
	}
	t.mu.RUnlock()

	out := make([]HealthSnapshot, 0, len(srcs))
	for _, src := range srcs {
		h := t.entry(src)
		h.mu.Lock()
		out = append(out, HealthSnapshot{
			Source:      src,
			Score:       h.score,
			Eligible:    h.score >= healthFloor,
			Successes:   h.successes,
			Failures:    h.failures,
			LastLatency: h.lastLatency,
			LastError:   h.lastError,
			UpdatedAt:   h.updatedAt,
		})
		h.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Source < out[j].Source })
	return out
}

func clampScore(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}
