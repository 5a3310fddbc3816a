package backend

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/zen-systems/quorum/pkg/schema"
)

// Error wraps provider failures with status metadata.
type Error struct {
	Provider  schema.Provider
	Status    int
	Temporary bool
	Err       error
}

func (e *Error) Error() string {
	if e == nil {
		return "backend error"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s", e.Provider, e.Err.Error())
	}
	return fmt.Sprintf("%s error (status=%d)", e.Provider, e.Status)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// temporaryStatus reports whether an HTTP status indicates a transient
// condition.
func temporaryStatus(status int) bool {
	return status == 429 || (status >= 500 && status <= 599)
}

// IsTransient reports whether an error is safe to retry on a later attempt.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var backendErr *Error
	if errors.As(err, &backendErr) {
		if backendErr.Temporary {
			return true
		}
		if temporaryStatus(backendErr.Status) {
			return true
		}
	}
	return false
}

// IsTimeout reports whether an error came from a deadline rather than a
// backend-reported failure.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
