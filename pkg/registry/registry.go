// Package registry holds the known backend candidates with their live
// performance statistics and ranks them for routing requests. It is the
// single writer of candidate state; everything it hands out is a copy.
package registry

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/quorum/pkg/schema"
)

const (
	// emaAlpha is the smoothing factor for the latency moving average.
	emaAlpha = 0.1
	// successWindowSize bounds the trailing success-rate window.
	successWindowSize = 100
)

// BreakerConfig controls automatic availability flips. DisableAfter
// consecutive failures mark a candidate unavailable; after ReviveAfter
// it becomes eligible again. A zero DisableAfter turns the breaker off.
type BreakerConfig struct {
	DisableAfter int
	ReviveAfter  time.Duration
}

// entry pairs a candidate's tunable attributes with its live statistics.
// The entry mutex serializes the read-modify-write of the statistics.
type entry struct {
	mu sync.Mutex

	provider     schema.Provider
	model        string
	weight       float64
	maxTokens    int
	temperature  float64
	costPerToken float64

	available     bool
	disabledUntil time.Time

	avgLatencyMs float64
	hasLatency   bool

	window    [successWindowSize]bool
	windowLen int
	windowIdx int
	successes int

	consecutiveFailures int
}

// Registry is the model registry and selector.
type Registry struct {
	mu      sync.RWMutex
	entries map[schema.Key]*entry

	breaker BreakerConfig
	logger  *zap.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithBreaker enables the consecutive-failure availability breaker.
func WithBreaker(cfg BreakerConfig) Option {
	return func(r *Registry) {
		r.breaker = cfg
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		entries: make(map[schema.Key]*entry),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds or replaces a candidate by composite key. Live
// statistics restart from scratch when a key is replaced.
func (r *Registry) Register(c Candidate) {
	e := &entry{
		provider:     c.Provider,
		model:        c.Model,
		weight:       c.Weight,
		maxTokens:    c.MaxTokens,
		temperature:  c.Temperature,
		costPerToken: c.CostPerToken,
		available:    c.Available,
	}

	r.mu.Lock()
	r.entries[c.Key()] = e
	r.mu.Unlock()

	r.logger.Debug("candidate registered",
		zap.String("key", string(c.Key())),
		zap.Float64("weight", c.Weight),
		zap.Bool("available", c.Available))
}

// Lookup returns a snapshot of the candidate for key.
func (r *Registry) Lookup(key schema.Key) (Candidate, bool) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return Candidate{}, false
	}
	return e.snapshot(time.Now()), true
}

// List returns snapshots of every candidate, sorted by key.
func (r *Registry) List() []Candidate {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := time.Now()
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.snapshot(now))
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key() < out[j].Key()
	})
	return out
}

// Len returns the number of registered candidates.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Select returns the candidates to dispatch for a request.
//
// With an explicit model list the named candidates are returned as
// given (minus excluded and unknown keys) and no scoring runs; the
// router decides whether too few resolved. Otherwise the available
// candidates are scored and sorted descending with lexicographic key
// tie-breaks. Both paths cap the result at the request's MaxResponses.
// Select never fails on an empty result.
func (r *Registry) Select(req schema.RoutingRequest, excluded map[schema.Key]bool) []Candidate {
	skip := make(map[schema.Key]bool, len(excluded)+len(req.Exclude))
	for key, v := range excluded {
		if v {
			skip[key] = true
		}
	}
	for _, key := range req.Exclude {
		skip[key] = true
	}

	now := time.Now()

	if len(req.ExplicitModels) > 0 {
		out := make([]Candidate, 0, len(req.ExplicitModels))
		r.mu.RLock()
		defer r.mu.RUnlock()
		for _, key := range req.ExplicitModels {
			if req.MaxResponses > 0 && len(out) == req.MaxResponses {
				break
			}
			if skip[key] {
				continue
			}
			e, ok := r.entries[key]
			if !ok {
				continue
			}
			out = append(out, e.snapshot(now))
		}
		return out
	}

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.entries))
	for key, e := range r.entries {
		if skip[key] {
			continue
		}
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	type scored struct {
		cand  Candidate
		score float64
	}
	eligible := make([]scored, 0, len(entries))
	for _, e := range entries {
		if e.reviveIfDue(now) {
			r.logger.Info("candidate revived", zap.String("key", string(schema.NewKey(e.provider, e.model))))
		}
		cand := e.snapshot(now)
		if !cand.Available {
			continue
		}
		eligible = append(eligible, scored{cand: cand, score: Score(cand)})
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].score == eligible[j].score {
			return eligible[i].cand.Key() < eligible[j].cand.Key()
		}
		return eligible[i].score > eligible[j].score
	})

	limit := len(eligible)
	if req.MaxResponses > 0 && req.MaxResponses < limit {
		limit = req.MaxResponses
	}
	out := make([]Candidate, 0, limit)
	for _, s := range eligible[:limit] {
		out = append(out, s.cand)
	}
	return out
}

// UpdatePerformance records one call outcome for key: the latency moving
// average (first observation taken as-is, then EMA with alpha 0.1) and
// the trailing success window. Unknown keys are ignored.
func (r *Registry) UpdatePerformance(key schema.Key, latency time.Duration, success bool) {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		r.logger.Debug("performance update for unknown candidate", zap.String("key", string(key)))
		return
	}

	tripped := e.record(latencyMillis(latency), success, r.breaker, time.Now())
	if tripped {
		r.logger.Info("candidate disabled by breaker",
			zap.String("key", string(key)),
			zap.Int("consecutive_failures", r.breaker.DisableAfter),
			zap.Duration("revive_after", r.breaker.ReviveAfter))
	}
}

// SetAvailable flips a candidate's availability by hand. Manual disables
// are not revived by the breaker clock.
func (r *Registry) SetAvailable(key schema.Key, available bool) bool {
	r.mu.RLock()
	e, ok := r.entries[key]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	e.available = available
	e.disabledUntil = time.Time{}
	if available {
		e.consecutiveFailures = 0
	}
	e.mu.Unlock()
	return true
}

// ExportStats snapshots every candidate's live statistics for persistence.
func (r *Registry) ExportStats() []CandidateStats {
	r.mu.RLock()
	keys := make([]schema.Key, 0, len(r.entries))
	entries := make([]*entry, 0, len(r.entries))
	for key, e := range r.entries {
		keys = append(keys, key)
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	now := time.Now()
	out := make([]CandidateStats, 0, len(entries))
	for i, e := range entries {
		e.mu.Lock()
		stats := CandidateStats{
			Key:          keys[i],
			AvgLatencyMs: e.avgLatencyMs,
			HasLatency:   e.hasLatency,
			Window:       e.windowOldestFirst(),
			Available:    e.available,
			UpdatedAt:    now,
		}
		e.mu.Unlock()
		out = append(out, stats)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// RestoreStats seeds live statistics from a previous export. Keys that
// are no longer registered are dropped. Intended for startup, before
// traffic flows.
func (r *Registry) RestoreStats(stats []CandidateStats) {
	for _, s := range stats {
		r.mu.RLock()
		e, ok := r.entries[s.Key]
		r.mu.RUnlock()
		if !ok {
			continue
		}

		e.mu.Lock()
		e.avgLatencyMs = s.AvgLatencyMs
		e.hasLatency = s.HasLatency
		e.available = s.Available
		e.windowLen = 0
		e.windowIdx = 0
		e.successes = 0
		for _, success := range s.Window {
			e.pushOutcome(success)
		}
		e.mu.Unlock()
	}
}

// snapshot copies the entry into a Candidate with derived live fields.
func (e *entry) snapshot(now time.Time) Candidate {
	e.mu.Lock()
	defer e.mu.Unlock()

	available := e.available
	if !available && !e.disabledUntil.IsZero() && now.After(e.disabledUntil) {
		available = true
	}

	return Candidate{
		Provider:     e.provider,
		Model:        e.model,
		Weight:       e.weight,
		MaxTokens:    e.maxTokens,
		Temperature:  e.temperature,
		Available:    available,
		AvgLatencyMs: e.avgLatencyMs,
		SuccessRate:  e.successRate(),
		CostPerToken: e.costPerToken,
	}
}

// reviveIfDue re-enables a breaker-disabled entry whose cool-down has
// elapsed. Returns true when a revival happened.
func (e *entry) reviveIfDue(now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.available || e.disabledUntil.IsZero() || now.Before(e.disabledUntil) {
		return false
	}
	e.available = true
	e.disabledUntil = time.Time{}
	e.consecutiveFailures = 0
	return true
}

// record applies one outcome. Returns true when the breaker tripped.
func (e *entry) record(latencyMs float64, success bool, breaker BreakerConfig, now time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.hasLatency {
		e.avgLatencyMs = latencyMs
		e.hasLatency = true
	} else {
		e.avgLatencyMs = emaAlpha*latencyMs + (1-emaAlpha)*e.avgLatencyMs
	}

	e.pushOutcome(success)

	if success {
		e.consecutiveFailures = 0
		if !e.disabledUntil.IsZero() {
			e.available = true
			e.disabledUntil = time.Time{}
		}
		return false
	}

	e.consecutiveFailures++
	if breaker.DisableAfter > 0 && e.available && e.consecutiveFailures >= breaker.DisableAfter {
		e.available = false
		e.disabledUntil = now.Add(breaker.ReviveAfter)
		return true
	}
	return false
}

// pushOutcome appends to the ring, dropping the oldest once full.
// Callers hold e.mu.
func (e *entry) pushOutcome(success bool) {
	if e.windowLen == successWindowSize {
		if e.window[e.windowIdx] {
			e.successes--
		}
	} else {
		e.windowLen++
	}
	e.window[e.windowIdx] = success
	if success {
		e.successes++
	}
	e.windowIdx = (e.windowIdx + 1) % successWindowSize
}

// successRate derives the trailing ratio; 1.0 before any observation so
// fresh candidates are not scored out of contention. Callers hold e.mu.
func (e *entry) successRate() float64 {
	if e.windowLen == 0 {
		return 1.0
	}
	return float64(e.successes) / float64(e.windowLen)
}

// windowOldestFirst linearizes the ring. Callers hold e.mu.
func (e *entry) windowOldestFirst() []bool {
	out := make([]bool, 0, e.windowLen)
	start := e.windowIdx - e.windowLen
	for i := 0; i < e.windowLen; i++ {
		idx := (start + i + successWindowSize) % successWindowSize
		out = append(out, e.window[idx])
	}
	return out
}

// latencyMillis keeps sub-millisecond precision.
func latencyMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
