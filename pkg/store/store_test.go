package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/quorum/pkg/registry"
	"github.com/zen-systems/quorum/pkg/schema"
)

func openTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "stats.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := openTestStore(t)

	saved := []registry.CandidateStats{
		{
			Key:          schema.Key("anthropic/claude-sonnet-4-20250514"),
			AvgLatencyMs: 412.5,
			HasLatency:   true,
			Window:       []bool{true, false, true, true},
			Available:    true,
			UpdatedAt:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		},
		{
			Key:       schema.Key("openai/gpt-5.2-instant"),
			Window:    []bool{false},
			Available: false,
		},
	}
	require.NoError(t, s.Save(saved))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 2)

	// Load orders by key.
	first := loaded[0]
	assert.Equal(t, schema.Key("anthropic/claude-sonnet-4-20250514"), first.Key)
	assert.Equal(t, 412.5, first.AvgLatencyMs)
	assert.True(t, first.HasLatency)
	assert.Equal(t, []bool{true, false, true, true}, first.Window)
	assert.True(t, first.Available)
	assert.Equal(t, saved[0].UpdatedAt, first.UpdatedAt)

	second := loaded[1]
	assert.Equal(t, schema.Key("openai/gpt-5.2-instant"), second.Key)
	assert.False(t, second.HasLatency)
	assert.Equal(t, []bool{false}, second.Window)
	assert.False(t, second.Available)
	assert.False(t, second.UpdatedAt.IsZero(), "zero timestamps are stamped at save time")
}

func TestSaveUpserts(t *testing.T) {
	s, _ := openTestStore(t)

	stats := []registry.CandidateStats{{
		Key:          schema.Key("mock/alpha"),
		AvgLatencyMs: 100,
		HasLatency:   true,
		Window:       []bool{true},
		Available:    true,
	}}
	require.NoError(t, s.Save(stats))

	stats[0].AvgLatencyMs = 250
	stats[0].Window = []bool{true, false}
	require.NoError(t, s.Save(stats))

	loaded, err := s.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, 250.0, loaded[0].AvgLatencyMs)
	assert.Equal(t, []bool{true, false}, loaded[0].Window)
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Save([]registry.CandidateStats{{
		Key:       schema.Key("google/gemini-2.0-flash"),
		Window:    []bool{true, true},
		Available: true,
	}}))
	require.NoError(t, s.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()

	loaded, err := reopened.Load()
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, schema.Key("google/gemini-2.0-flash"), loaded[0].Key)
	assert.Equal(t, []bool{true, true}, loaded[0].Window)
}

func TestLoadEmptyStore(t *testing.T) {
	s, _ := openTestStore(t)

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, loaded)
}

func TestRegistryRoundTripThroughStore(t *testing.T) {
	src := registry.New()
	cand := registry.Candidate{Provider: schema.ProviderMock, Model: "persisted", Weight: 1.0}
	src.Register(cand)
	src.UpdatePerformance(cand.Key(), 200*time.Millisecond, true)
	src.UpdatePerformance(cand.Key(), 400*time.Millisecond, false)
	src.UpdatePerformance(cand.Key(), 300*time.Millisecond, true)

	s, _ := openTestStore(t)
	require.NoError(t, s.Save(src.ExportStats()))

	loaded, err := s.Load()
	require.NoError(t, err)

	dst := registry.New()
	dst.Register(cand)
	dst.RestoreStats(loaded)

	want, _ := src.Lookup(cand.Key())
	got, ok := dst.Lookup(cand.Key())
	require.True(t, ok)
	assert.InDelta(t, want.AvgLatencyMs, got.AvgLatencyMs, 1e-9)
	assert.InDelta(t, want.SuccessRate, got.SuccessRate, 1e-9)
	assert.Equal(t, want.Available, got.Available)
}

func TestWindowEncoding(t *testing.T) {
	tests := []struct {
		window  []bool
		encoded string
	}{
		{nil, ""},
		{[]bool{true}, "1"},
		{[]bool{false}, "0"},
		{[]bool{true, false, true}, "101"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.encoded, encodeWindow(tt.window))
		assert.Equal(t, tt.window, decodeWindow(tt.encoded))
	}
}
