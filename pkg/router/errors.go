package router

import (
	"errors"
	"fmt"

	"github.com/zen-systems/quorum/pkg/schema"
)

// ErrorKind classifies a route failure.
type ErrorKind string

const (
	ErrInvalidRequest         ErrorKind = "invalid_request"
	ErrInsufficientCandidates ErrorKind = "insufficient_candidates"
	ErrInsufficientResponses  ErrorKind = "insufficient_responses"
	ErrConsensusFailure       ErrorKind = "consensus_failure"
)

// RouteError is the structured failure of one Route call. Per-candidate
// dispatch failures ride along for diagnostics; they are data, not the
// cause.
type RouteError struct {
	Kind     ErrorKind
	Found    int
	Needed   int
	Failures []schema.DispatchError
	Err      error
}

func (e *RouteError) Error() string {
	switch e.Kind {
	case ErrInsufficientCandidates:
		return fmt.Sprintf("insufficient candidates: found %d, need %d", e.Found, e.Needed)
	case ErrInsufficientResponses:
		return fmt.Sprintf("insufficient responses: got %d of %d required (%d failed)", e.Found, e.Needed, len(e.Failures))
	case ErrInvalidRequest:
		return fmt.Sprintf("invalid request: %v", e.Err)
	case ErrConsensusFailure:
		return fmt.Sprintf("consensus failure: %v", e.Err)
	default:
		return fmt.Sprintf("route error (%s): %v", e.Kind, e.Err)
	}
}

func (e *RouteError) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is a RouteError of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var rerr *RouteError
	return errors.As(err, &rerr) && rerr.Kind == kind
}
