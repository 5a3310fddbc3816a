package registry

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zen-systems/quorum/pkg/schema"
)

func testCandidate(provider schema.Provider, model string, weight float64) Candidate {
	return Candidate{
		Provider:  provider,
		Model:     model,
		Weight:    weight,
		MaxTokens: 1024,
		Available: true,
	}
}

func keysOf(candidates []Candidate) []schema.Key {
	keys := make([]schema.Key, 0, len(candidates))
	for _, c := range candidates {
		keys = append(keys, c.Key())
	}
	return keys
}

func TestRegisterAndLookup(t *testing.T) {
	r := New()
	r.Register(testCandidate(schema.ProviderAnthropic, "claude-sonnet-4-20250514", 1.5))

	c, ok := r.Lookup(schema.Key("anthropic/claude-sonnet-4-20250514"))
	require.True(t, ok)
	assert.Equal(t, 1.5, c.Weight)
	assert.True(t, c.Available)
	assert.Equal(t, 1.0, c.SuccessRate, "fresh candidates start with a neutral success rate")
	assert.Zero(t, c.AvgLatencyMs)

	_, ok = r.Lookup(schema.Key("openai/unknown"))
	assert.False(t, ok)
}

func TestRegisterReplaceResetsStats(t *testing.T) {
	r := New()
	cand := testCandidate(schema.ProviderMock, "mock-1", 1.0)
	r.Register(cand)
	r.UpdatePerformance(cand.Key(), 200*time.Millisecond, false)

	c, _ := r.Lookup(cand.Key())
	require.Equal(t, 0.0, c.SuccessRate)

	r.Register(cand)
	c, _ = r.Lookup(cand.Key())
	assert.Equal(t, 1.0, c.SuccessRate)
	assert.Zero(t, c.AvgLatencyMs)
}

func TestScoreFormula(t *testing.T) {
	tests := []struct {
		name string
		cand Candidate
		want float64
	}{
		{
			name: "fresh candidate scores its weight",
			cand: Candidate{Weight: 2.0, SuccessRate: 1.0},
			want: 2.0,
		},
		{
			name: "latency divides",
			cand: Candidate{Weight: 1.0, SuccessRate: 1.0, AvgLatencyMs: 1000},
			want: 0.5,
		},
		{
			name: "cost divides",
			cand: Candidate{Weight: 1.0, SuccessRate: 1.0, CostPerToken: 1.0},
			want: 0.5,
		},
		{
			name: "all terms",
			cand: Candidate{Weight: 2.0, SuccessRate: 0.5, AvgLatencyMs: 1000, CostPerToken: 1.0},
			want: 0.25,
		},
		{
			name: "zero success rate zeroes the score",
			cand: Candidate{Weight: 3.0, SuccessRate: 0},
			want: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Score(tt.cand), 1e-12)
		})
	}
}

func TestSelectOrdersByScoreWithLexicographicTies(t *testing.T) {
	r := New()
	r.Register(testCandidate(schema.ProviderOpenAI, "gpt-5.2-instant", 1.0))
	r.Register(testCandidate(schema.ProviderAnthropic, "claude-sonnet-4-20250514", 1.0))
	r.Register(testCandidate(schema.ProviderGoogle, "gemini-2.0-pro", 2.0))

	got := r.Select(schema.RoutingRequest{MinResponses: 1, MaxResponses: 5}, nil)
	require.Len(t, got, 3)

	// Highest weight first, then equal scores in key order.
	assert.Equal(t, []schema.Key{
		"google/gemini-2.0-pro",
		"anthropic/claude-sonnet-4-20250514",
		"openai/gpt-5.2-instant",
	}, keysOf(got))
}

func TestSelectCapsAtMaxResponses(t *testing.T) {
	r := New()
	for i := 0; i < 5; i++ {
		r.Register(testCandidate(schema.ProviderMock, fmt.Sprintf("mock-%d", i), float64(5-i)))
	}

	got := r.Select(schema.RoutingRequest{MinResponses: 1, MaxResponses: 2}, nil)
	require.Len(t, got, 2)
	assert.Equal(t, []schema.Key{"mock/mock-0", "mock/mock-1"}, keysOf(got))
}

func TestSelectFiltersUnavailableAndExcluded(t *testing.T) {
	r := New()
	r.Register(testCandidate(schema.ProviderMock, "up", 1.0))
	r.Register(testCandidate(schema.ProviderMock, "down", 1.0))
	r.Register(testCandidate(schema.ProviderMock, "skipped", 1.0))
	r.Register(testCandidate(schema.ProviderMock, "denied", 1.0))
	require.True(t, r.SetAvailable(schema.Key("mock/down"), false))

	req := schema.RoutingRequest{
		MinResponses: 1,
		MaxResponses: 10,
		Exclude:      []schema.Key{"mock/denied"},
	}
	got := r.Select(req, map[schema.Key]bool{"mock/skipped": true})
	assert.Equal(t, []schema.Key{"mock/up"}, keysOf(got))
}

func TestSelectExplicitModels(t *testing.T) {
	r := New()
	r.Register(testCandidate(schema.ProviderAnthropic, "claude-sonnet-4-20250514", 1.0))
	r.Register(testCandidate(schema.ProviderOpenAI, "gpt-5.2-instant", 5.0))
	r.Register(testCandidate(schema.ProviderGoogle, "gemini-2.0-flash", 3.0))
	r.Register(testCandidate(schema.ProviderMock, "offline", 1.0))
	r.SetAvailable(schema.Key("mock/offline"), false)

	req := schema.RoutingRequest{
		MinResponses: 1,
		MaxResponses: 2,
		ExplicitModels: []schema.Key{
			"mock/offline",
			"anthropic/claude-sonnet-4-20250514",
			"mock/not-registered", // unknown keys drop silently
			"google/gemini-2.0-flash",
			"openai/gpt-5.2-instant",
		},
		Exclude: []schema.Key{"openai/gpt-5.2-instant"},
	}

	got := r.Select(req, nil)
	// Explicit keys keep their order, bypass scoring and availability,
	// and still cap at MaxResponses.
	assert.Equal(t, []schema.Key{
		"mock/offline",
		"anthropic/claude-sonnet-4-20250514",
	}, keysOf(got))
}

func TestUpdatePerformanceEMA(t *testing.T) {
	r := New()
	cand := testCandidate(schema.ProviderMock, "mock-1", 1.0)
	r.Register(cand)

	r.UpdatePerformance(cand.Key(), 200*time.Millisecond, true)
	c, _ := r.Lookup(cand.Key())
	assert.InDelta(t, 200, c.AvgLatencyMs, 1e-9, "first observation is taken as-is")

	r.UpdatePerformance(cand.Key(), 100*time.Millisecond, true)
	c, _ = r.Lookup(cand.Key())
	assert.InDelta(t, 0.1*100+0.9*200, c.AvgLatencyMs, 1e-9)
}

func TestSuccessRateWindowRollsOff(t *testing.T) {
	r := New()
	cand := testCandidate(schema.ProviderMock, "mock-1", 1.0)
	r.Register(cand)

	for i := 0; i < successWindowSize; i++ {
		r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	}
	c, _ := r.Lookup(cand.Key())
	require.Equal(t, 0.0, c.SuccessRate)

	// Half a window of successes pushes out half the failures.
	for i := 0; i < successWindowSize/2; i++ {
		r.UpdatePerformance(cand.Key(), time.Millisecond, true)
	}
	c, _ = r.Lookup(cand.Key())
	assert.InDelta(t, 0.5, c.SuccessRate, 1e-9)
}

func TestUpdatePerformanceConcurrentConvergence(t *testing.T) {
	r := New()
	cand := testCandidate(schema.ProviderMock, "mock-1", 1.0)
	r.Register(cand)

	const calls = 100
	var wg sync.WaitGroup
	wg.Add(calls)
	for i := 0; i < calls; i++ {
		go func(success bool) {
			defer wg.Done()
			r.UpdatePerformance(cand.Key(), 50*time.Millisecond, success)
		}(i%2 == 0)
	}
	wg.Wait()

	c, _ := r.Lookup(cand.Key())
	assert.InDelta(t, 0.5, c.SuccessRate, 1e-9,
		"success rate must converge to the exact success fraction regardless of completion order")
	assert.InDelta(t, 50, c.AvgLatencyMs, 1e-9,
		"identical observations keep the EMA fixed regardless of order")
}

func TestSelectScoringMonotonicInSuccessRate(t *testing.T) {
	r := New()
	anchor := testCandidate(schema.ProviderMock, "anchor", 1.0)
	riser := testCandidate(schema.ProviderMock, "riser", 1.0)
	floor := testCandidate(schema.ProviderMock, "floor", 1.0)
	r.Register(anchor)
	r.Register(riser)
	r.Register(floor)

	// Constant latency keeps the EMA fixed so only the success window moves.
	const lat = 100 * time.Millisecond
	for i := 0; i < 10; i++ {
		r.UpdatePerformance(anchor.Key(), lat, true)
		r.UpdatePerformance(riser.Key(), lat, i%2 == 0)
		r.UpdatePerformance(floor.Key(), lat, false)
	}

	req := schema.RoutingRequest{MinResponses: 1, MaxResponses: 10}
	before := keysOf(r.Select(req, nil))
	require.Equal(t, []schema.Key{"mock/anchor", "mock/riser", "mock/floor"}, before)

	beforeScore := scoreOf(t, r, riser.Key())
	for i := 0; i < 40; i++ {
		r.UpdatePerformance(riser.Key(), lat, true)
	}
	afterScore := scoreOf(t, r, riser.Key())
	assert.GreaterOrEqual(t, afterScore, beforeScore)

	after := keysOf(r.Select(req, nil))
	assert.LessOrEqual(t, rankOf(after, riser.Key()), rankOf(before, riser.Key()),
		"raising the success rate must never lower the rank against unchanged candidates")
	assert.Less(t, rankOf(after, riser.Key()), rankOf(after, floor.Key()))
}

func scoreOf(t *testing.T, r *Registry, key schema.Key) float64 {
	t.Helper()
	c, ok := r.Lookup(key)
	require.True(t, ok)
	return Score(c)
}

func rankOf(keys []schema.Key, key schema.Key) int {
	for i, k := range keys {
		if k == key {
			return i
		}
	}
	return len(keys)
}

func TestBreakerDisablesAndRevives(t *testing.T) {
	r := New(WithBreaker(BreakerConfig{DisableAfter: 3, ReviveAfter: 30 * time.Millisecond}))
	cand := testCandidate(schema.ProviderMock, "flaky", 1.0)
	r.Register(cand)

	req := schema.RoutingRequest{MinResponses: 1, MaxResponses: 5}

	r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	require.Len(t, r.Select(req, nil), 1, "below the threshold the candidate stays up")

	r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	assert.Empty(t, r.Select(req, nil), "third consecutive failure trips the breaker")

	time.Sleep(40 * time.Millisecond)
	assert.Len(t, r.Select(req, nil), 1, "cool-down elapsed, candidate revived")
}

func TestBreakerResetOnSuccess(t *testing.T) {
	r := New(WithBreaker(BreakerConfig{DisableAfter: 3, ReviveAfter: time.Minute}))
	cand := testCandidate(schema.ProviderMock, "flaky", 1.0)
	r.Register(cand)

	r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	r.UpdatePerformance(cand.Key(), time.Millisecond, true)
	r.UpdatePerformance(cand.Key(), time.Millisecond, false)
	r.UpdatePerformance(cand.Key(), time.Millisecond, false)

	c, _ := r.Lookup(cand.Key())
	assert.True(t, c.Available, "a success in between resets the consecutive counter")
}

func TestManualDisableIsNotRevived(t *testing.T) {
	r := New(WithBreaker(BreakerConfig{DisableAfter: 3, ReviveAfter: time.Millisecond}))
	cand := testCandidate(schema.ProviderMock, "parked", 1.0)
	r.Register(cand)
	r.SetAvailable(cand.Key(), false)

	time.Sleep(5 * time.Millisecond)
	assert.Empty(t, r.Select(schema.RoutingRequest{MinResponses: 1, MaxResponses: 5}, nil))
}

func TestExportRestoreRoundTrip(t *testing.T) {
	src := New()
	a := testCandidate(schema.ProviderAnthropic, "claude-sonnet-4-20250514", 1.0)
	b := testCandidate(schema.ProviderOpenAI, "gpt-5.2-instant", 1.0)
	src.Register(a)
	src.Register(b)

	for i := 0; i < 7; i++ {
		src.UpdatePerformance(a.Key(), 120*time.Millisecond, i != 3)
		src.UpdatePerformance(b.Key(), 340*time.Millisecond, i%2 == 0)
	}

	dst := New()
	dst.Register(a)
	dst.Register(b)
	dst.RestoreStats(src.ExportStats())

	for _, key := range []schema.Key{a.Key(), b.Key()} {
		want, _ := src.Lookup(key)
		got, ok := dst.Lookup(key)
		require.True(t, ok)
		assert.InDelta(t, want.SuccessRate, got.SuccessRate, 1e-12, "key %s", key)
		assert.InDelta(t, want.AvgLatencyMs, got.AvgLatencyMs, 1e-12, "key %s", key)
		assert.InDelta(t, Score(want), Score(got), 1e-12, "key %s", key)
	}
}

func TestRestoreStatsIgnoresUnknownKeys(t *testing.T) {
	r := New()
	r.Register(testCandidate(schema.ProviderMock, "known", 1.0))

	r.RestoreStats([]CandidateStats{
		{Key: "mock/long-gone", AvgLatencyMs: 9999, HasLatency: true, Window: []bool{false}},
	})
	assert.Equal(t, 1, r.Len())
}
