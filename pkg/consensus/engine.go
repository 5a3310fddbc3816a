// Package consensus reduces a set of model responses to one answer.
// Five strategies are supported, all pure functions of their input with
// deterministic tie-breaks over the original candidate selection order.
package consensus

import (
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/zen-systems/quorum/pkg/schema"
)

// Default tuning thresholds, overridable per engine.
const (
	defaultMajorityThreshold  = 0.7
	defaultUnanimousThreshold = 0.8
	defaultHybridCutoff       = 0.7
)

// ErrNoResponses is returned when Evaluate receives an empty response set.
var ErrNoResponses = errors.New("consensus requires at least one response")

// Engine evaluates response sets. It carries only tuning thresholds and
// a logger; strategies themselves hold no state.
type Engine struct {
	majorityThreshold  float64
	unanimousThreshold float64
	hybridCutoff       float64
	logger             *zap.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMajorityThreshold overrides the similarity needed to join a
// majority group. Values outside (0,1] are ignored.
func WithMajorityThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.majorityThreshold = threshold
		}
	}
}

// WithUnanimousThreshold overrides the pairwise similarity required for
// a unanimous verdict. Values outside (0,1] are ignored.
func WithUnanimousThreshold(threshold float64) Option {
	return func(e *Engine) {
		if threshold > 0 && threshold <= 1 {
			e.unanimousThreshold = threshold
		}
	}
}

// WithHybridCutoff overrides the majority agreement ratio at which the
// hybrid strategy keeps the majority result. Values outside (0,1] are
// ignored.
func WithHybridCutoff(cutoff float64) Option {
	return func(e *Engine) {
		if cutoff > 0 && cutoff <= 1 {
			e.hybridCutoff = cutoff
		}
	}
}

// New creates an Engine with the default thresholds.
func New(opts ...Option) *Engine {
	e := &Engine{
		majorityThreshold:  defaultMajorityThreshold,
		unanimousThreshold: defaultUnanimousThreshold,
		hybridCutoff:       defaultHybridCutoff,
		logger:             zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate reduces the responses under the given strategy. The input
// may arrive in completion order; tie-breaks always follow the original
// candidate selection order.
func (e *Engine) Evaluate(responses []schema.AIResponse, strategy schema.ConsensusStrategy) (*schema.ConsensusResult, error) {
	if len(responses) == 0 {
		return nil, ErrNoResponses
	}

	ordered := orderByCandidate(responses)

	var result *schema.ConsensusResult
	switch strategy {
	case schema.StrategyMajority:
		result = e.majority(ordered)
	case schema.StrategyWeighted:
		result = e.weighted(ordered)
	case schema.StrategyUnanimous:
		result = e.unanimous(ordered)
	case schema.StrategyBestOfN:
		result = e.bestOfN(ordered)
	case schema.StrategyHybrid:
		result = e.hybrid(ordered)
	default:
		return nil, fmt.Errorf("unknown consensus strategy %q", strategy)
	}

	result.IndividualResponses = ordered
	result.ParticipatingModels = responseKeys(ordered)

	e.logger.Debug("consensus evaluated",
		zap.String("strategy", string(strategy)),
		zap.Int("responses", len(ordered)),
		zap.Float64("agreement_ratio", result.AgreementRatio),
		zap.Float64("confidence", result.Confidence))

	return result, nil
}

// orderByCandidate returns a copy sorted by original selection order.
func orderByCandidate(responses []schema.AIResponse) []schema.AIResponse {
	ordered := make([]schema.AIResponse, len(responses))
	copy(ordered, responses)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].CandidateIndex < ordered[j].CandidateIndex
	})
	return ordered
}

func responseKeys(responses []schema.AIResponse) []schema.Key {
	keys := make([]schema.Key, len(responses))
	for i := range responses {
		keys[i] = responses[i].Key()
	}
	return keys
}
