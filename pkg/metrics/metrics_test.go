package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zen-systems/quorum/pkg/dispatch"
	"github.com/zen-systems/quorum/pkg/router"
	"github.com/zen-systems/quorum/pkg/schema"
)

var (
	_ router.Observer   = (*Metrics)(nil)
	_ dispatch.Observer = (*Metrics)(nil)
)

func TestRouteCompleted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RouteCompleted(schema.StrategyMajority, "ok", 0.66)
	m.RouteCompleted(schema.StrategyMajority, "ok", 1.0)
	m.RouteCompleted(schema.StrategyWeighted, "insufficient_responses", 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.RouteRequests.WithLabelValues("majority", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RouteRequests.WithLabelValues("weighted", "insufficient_responses")))

	// Failed routes must not distort the agreement histogram.
	assert.Equal(t, 1, testutil.CollectAndCount(m.AgreementRatio), "only the majority series should exist")
}

func TestCallCompleted(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.CallCompleted(schema.ProviderAnthropic, "claude-sonnet-4-20250514", true, 120*time.Millisecond)
	m.CallCompleted(schema.ProviderAnthropic, "claude-sonnet-4-20250514", true, 300*time.Millisecond)
	m.CallCompleted(schema.ProviderOpenAI, "gpt-5.2-instant", false, 10*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.BackendCalls.WithLabelValues("anthropic", "claude-sonnet-4-20250514", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BackendCalls.WithLabelValues("openai", "gpt-5.2-instant", "failure")))
	assert.Equal(t, 2, testutil.CollectAndCount(m.BackendLatency), "one latency series per provider")
}

func TestNewRegistersWithProvidedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RouteCompleted(schema.StrategyHybrid, "ok", 0.5)

	families, err := reg.Gather()
	require.NoError(t, err)

	found := false
	for _, mf := range families {
		if mf.GetName() == "quorum_route_requests_total" {
			found = true
		}
	}
	assert.True(t, found, "quorum_route_requests_total should be registered")
}
