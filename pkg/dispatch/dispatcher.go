// Package dispatch fans one routing request out to the selected backend
// candidates concurrently, under a shared deadline, and feeds every call
// outcome back into the registry statistics exactly once.
package dispatch

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/zen-systems/quorum/pkg/backend"
	"github.com/zen-systems/quorum/pkg/registry"
	"github.com/zen-systems/quorum/pkg/schema"
)

// defaultTimeout guards dispatches whose request carries no deadline.
const defaultTimeout = 30 * time.Second

// PerformanceUpdater receives one observation per completed or failed
// call. The registry implements it.
type PerformanceUpdater interface {
	UpdatePerformance(key schema.Key, latency time.Duration, success bool)
}

// Observer receives call-level telemetry. Implementations read state,
// never write it, and must return quickly.
type Observer interface {
	CallCompleted(provider schema.Provider, model string, success bool, latency time.Duration)
}

// Dispatcher executes selected candidates against their backend clients.
type Dispatcher struct {
	clients  map[schema.Provider]backend.Client
	recorder PerformanceUpdater
	observer Observer
	logger   *zap.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithObserver attaches a call telemetry observer.
func WithObserver(observer Observer) Option {
	return func(d *Dispatcher) {
		d.observer = observer
	}
}

// New creates a Dispatcher over the given backend clients. Every call
// outcome is reported to recorder exactly once.
func New(clients map[schema.Provider]backend.Client, recorder PerformanceUpdater, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		clients:  clients,
		recorder: recorder,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// callOutcome carries one worker's result to the collector.
type callOutcome struct {
	index int
	resp  *schema.AIResponse
	err   *schema.DispatchError
}

// Dispatch issues one concurrent call per candidate and collects results
// until MaxResponses successes arrive, the request deadline elapses, or
// every call has finished, whichever happens first. Calls still in
// flight at that point are cancelled; successes arriving afterwards are
// discarded. When the deadline (or the parent context) ends the
// dispatch, the cancelled calls' failures are kept for diagnostics.
//
// A join barrier guarantees no worker goroutine outlives the call.
func (d *Dispatcher) Dispatch(ctx context.Context, req schema.RoutingRequest, candidates []registry.Candidate) ([]schema.AIResponse, []schema.DispatchError) {
	if len(candidates) == 0 {
		return nil, nil
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	dispatchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	quota := req.MaxResponses
	if quota <= 0 || quota > len(candidates) {
		quota = len(candidates)
	}

	sem := semaphore.NewWeighted(int64(quota))
	outcomes := make(chan callOutcome, len(candidates))

	var wg sync.WaitGroup
	for i, cand := range candidates {
		wg.Add(1)
		go func(idx int, cand registry.Candidate) {
			defer wg.Done()
			outcomes <- d.call(dispatchCtx, sem, req, idx, cand)
		}(i, cand)
	}

	var (
		responses []schema.AIResponse
		failures  []schema.DispatchError
		received  int
		quotaMet  bool
		deadline  bool
	)

collect:
	for received < len(candidates) {
		select {
		case out := <-outcomes:
			received++
			if out.err != nil {
				failures = append(failures, *out.err)
				continue
			}
			responses = append(responses, *out.resp)
			if len(responses) >= quota {
				quotaMet = true
				break collect
			}
		case <-dispatchCtx.Done():
			deadline = true
			break collect
		}
	}

	// Aggregate decision made: stop the stragglers and drain them. Every
	// worker sends exactly one outcome, so the drain is bounded by the
	// backends' cancellation promptness.
	cancel()
	for received < len(candidates) {
		out := <-outcomes
		received++
		if out.err != nil {
			if deadline {
				failures = append(failures, *out.err)
			}
			continue
		}
		d.logger.Debug("late response discarded",
			zap.String("key", string(out.resp.Key())),
			zap.Duration("latency", out.resp.Latency))
	}
	wg.Wait()

	d.logger.Debug("dispatch complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("responses", len(responses)),
		zap.Int("failures", len(failures)),
		zap.Bool("quota_met", quotaMet),
		zap.Bool("deadline", deadline))

	return responses, failures
}

// call runs one candidate end to end: concurrency slot, backend call,
// performance feedback, and response assembly.
func (d *Dispatcher) call(ctx context.Context, sem *semaphore.Weighted, req schema.RoutingRequest, idx int, cand registry.Candidate) callOutcome {
	key := cand.Key()
	start := time.Now()

	fail := func(err error) callOutcome {
		latency := time.Since(start)
		d.recorder.UpdatePerformance(key, latency, false)
		if d.observer != nil {
			d.observer.CallCompleted(cand.Provider, cand.Model, false, latency)
		}
		d.logger.Debug("backend call failed",
			zap.String("key", string(key)),
			zap.Duration("latency", latency),
			zap.Error(err))
		return callOutcome{index: idx, err: &schema.DispatchError{
			Key:      key,
			Provider: cand.Provider,
			Model:    cand.Model,
			Reason:   err.Error(),
			Err:      err,
		}}
	}

	client, ok := d.clients[cand.Provider]
	if !ok {
		return fail(fmt.Errorf("no backend client for provider %q", cand.Provider))
	}

	if err := sem.Acquire(ctx, 1); err != nil {
		return fail(err)
	}
	defer sem.Release(1)

	callCtx, cancelCall := context.WithCancel(ctx)
	defer cancelCall()

	res, err := client.Generate(callCtx, backend.Request{
		Model:        cand.Model,
		Prompt:       req.Prompt,
		SystemPrompt: req.SystemPrompt,
		MaxTokens:    cand.MaxTokens,
		Temperature:  cand.Temperature,
	})
	latency := time.Since(start)
	if err != nil {
		return fail(err)
	}

	d.recorder.UpdatePerformance(key, latency, true)
	if d.observer != nil {
		d.observer.CallCompleted(cand.Provider, cand.Model, true, latency)
	}

	tokens := res.TotalTokens()
	resp := schema.AIResponse{
		Provider:       cand.Provider,
		Model:          cand.Model,
		Text:           res.Text,
		Latency:        latency,
		TokensUsed:     tokens,
		Cost:           estimateCost(cand, tokens),
		Confidence:     deriveConfidence(res.Text, res.FinishReason, latency),
		CandidateIndex: idx,
		Metadata: map[string]string{
			schema.MetaFinishReason: string(res.FinishReason),
			schema.MetaTokensIn:     strconv.Itoa(res.TokensIn),
			schema.MetaTokensOut:    strconv.Itoa(res.TokensOut),
		},
	}
	return callOutcome{index: idx, resp: &resp}
}

// estimateCost prices one call from the candidate's per-token rate.
// Unknown rates cost zero rather than penalizing the response.
func estimateCost(cand registry.Candidate, tokens int) float64 {
	if cand.CostPerToken <= 0 || tokens <= 0 {
		return 0
	}
	return cand.CostPerToken * float64(tokens)
}
