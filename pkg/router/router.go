// Package router composes selection, dispatch, and consensus into one
// Route call with structured failures.
package router

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/zen-systems/quorum/pkg/registry"
	"github.com/zen-systems/quorum/pkg/schema"
)

// Selector supplies ranked candidates for a request. The registry
// implements it.
type Selector interface {
	Select(req schema.RoutingRequest, excluded map[schema.Key]bool) []registry.Candidate
}

// Dispatcher fans a request out to its candidates and reports successes
// and per-candidate failures.
type Dispatcher interface {
	Dispatch(ctx context.Context, req schema.RoutingRequest, candidates []registry.Candidate) ([]schema.AIResponse, []schema.DispatchError)
}

// Evaluator reduces collected responses to one consensus result.
type Evaluator interface {
	Evaluate(responses []schema.AIResponse, strategy schema.ConsensusStrategy) (*schema.ConsensusResult, error)
}

// Observer receives route-level telemetry: one call per Route, with
// status "ok" or the failure kind.
type Observer interface {
	RouteCompleted(strategy schema.ConsensusStrategy, status string, agreementRatio float64)
}

// Defaults fill routing fields the caller left unset.
type Defaults struct {
	Strategy     schema.ConsensusStrategy
	MinResponses int
	MaxResponses int
	Timeout      time.Duration
}

// DefaultDefaults returns the stock request defaults.
func DefaultDefaults() Defaults {
	return Defaults{
		Strategy:     schema.StrategyMajority,
		MinResponses: 1,
		MaxResponses: 3,
		Timeout:      30 * time.Second,
	}
}

// Router orchestrates one routing call end to end. It never retries;
// retry policy belongs to the caller.
type Router struct {
	selector   Selector
	dispatcher Dispatcher
	engine     Evaluator
	defaults   Defaults
	observer   Observer
	logger     *zap.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Router) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithObserver attaches a route telemetry observer.
func WithObserver(observer Observer) Option {
	return func(r *Router) {
		r.observer = observer
	}
}

// WithDefaults overrides the stock request defaults field by field; zero
// fields keep the stock value.
func WithDefaults(d Defaults) Option {
	return func(r *Router) {
		if d.Strategy != "" {
			r.defaults.Strategy = d.Strategy
		}
		if d.MinResponses > 0 {
			r.defaults.MinResponses = d.MinResponses
		}
		if d.MaxResponses > 0 {
			r.defaults.MaxResponses = d.MaxResponses
		}
		if d.Timeout > 0 {
			r.defaults.Timeout = d.Timeout
		}
	}
}

// New creates a Router over the given stages.
func New(selector Selector, dispatcher Dispatcher, engine Evaluator, opts ...Option) *Router {
	r := &Router{
		selector:   selector,
		dispatcher: dispatcher,
		engine:     engine,
		defaults:   DefaultDefaults(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route validates the request, selects candidates, dispatches them, and
// reduces the responses. Failures are always a *RouteError.
func (r *Router) Route(ctx context.Context, req schema.RoutingRequest) (*schema.ConsensusResult, error) {
	req = r.normalize(req)
	requestID := uuid.NewString()
	logger := r.logger.With(zap.String("request_id", requestID))

	if err := req.Validate(); err != nil {
		return nil, r.fail(logger, req.Strategy, &RouteError{Kind: ErrInvalidRequest, Err: err})
	}

	candidates := r.selector.Select(req, nil)
	if len(candidates) < req.MinResponses {
		return nil, r.fail(logger, req.Strategy, &RouteError{
			Kind:   ErrInsufficientCandidates,
			Found:  len(candidates),
			Needed: req.MinResponses,
		})
	}
	logger.Debug("candidates selected",
		zap.Int("count", len(candidates)),
		zap.String("strategy", string(req.Strategy)))

	responses, failures := r.dispatcher.Dispatch(ctx, req, candidates)
	if len(responses) < req.MinResponses {
		return nil, r.fail(logger, req.Strategy, &RouteError{
			Kind:     ErrInsufficientResponses,
			Found:    len(responses),
			Needed:   req.MinResponses,
			Failures: failures,
			Err:      ctx.Err(),
		})
	}

	result, err := r.engine.Evaluate(responses, req.Strategy)
	if err != nil {
		return nil, r.fail(logger, req.Strategy, &RouteError{Kind: ErrConsensusFailure, Err: err})
	}

	result.ParticipatingModels = candidateKeys(candidates)
	if result.Metadata == nil {
		result.Metadata = make(map[string]any)
	}
	result.Metadata[schema.MetaRequestID] = requestID

	if r.observer != nil {
		r.observer.RouteCompleted(req.Strategy, "ok", result.AgreementRatio)
	}
	logger.Info("route complete",
		zap.String("strategy", string(result.StrategyUsed)),
		zap.Int("responses", len(result.IndividualResponses)),
		zap.Int("failures", len(failures)),
		zap.Float64("agreement_ratio", result.AgreementRatio),
		zap.Float64("confidence", result.Confidence))

	return result, nil
}

// normalize fills unset routing fields from the router defaults. An
// unset MaxResponses never undercuts an explicit MinResponses.
func (r *Router) normalize(req schema.RoutingRequest) schema.RoutingRequest {
	if req.Strategy == "" {
		req.Strategy = r.defaults.Strategy
	}
	if req.MinResponses == 0 {
		req.MinResponses = r.defaults.MinResponses
	}
	if req.MaxResponses == 0 {
		req.MaxResponses = r.defaults.MaxResponses
		if req.MaxResponses < req.MinResponses {
			req.MaxResponses = req.MinResponses
		}
	}
	if req.Timeout == 0 {
		req.Timeout = r.defaults.Timeout
	}
	return req
}

func (r *Router) fail(logger *zap.Logger, strategy schema.ConsensusStrategy, rerr *RouteError) error {
	if r.observer != nil {
		r.observer.RouteCompleted(strategy, string(rerr.Kind), 0)
	}
	logger.Warn("route failed",
		zap.String("kind", string(rerr.Kind)),
		zap.Int("found", rerr.Found),
		zap.Int("needed", rerr.Needed),
		zap.Int("failures", len(rerr.Failures)),
		zap.Error(rerr.Err))
	return rerr
}

func candidateKeys(candidates []registry.Candidate) []schema.Key {
	keys := make([]schema.Key, len(candidates))
	for i := range candidates {
		keys[i] = candidates[i].Key()
	}
	return keys
}
