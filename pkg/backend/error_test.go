package backend

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/zen-systems/quorum/pkg/schema"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: fmt.Errorf("call failed: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "temporary flag", err: &Error{Provider: schema.ProviderOpenAI, Temporary: true}, want: true},
		{name: "rate limited", err: &Error{Provider: schema.ProviderAnthropic, Status: 429}, want: true},
		{name: "server error", err: &Error{Provider: schema.ProviderGoogle, Status: 503}, want: true},
		{name: "client error", err: &Error{Provider: schema.ProviderDeepSeek, Status: 400}, want: false},
		{name: "plain error", err: errors.New("boom"), want: false},
		{name: "wrapped backend error", err: fmt.Errorf("dispatch: %w", &Error{Status: 500}), want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.want {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestIsTimeout(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "deadline exceeded", err: context.DeadlineExceeded, want: true},
		{name: "wrapped deadline", err: fmt.Errorf("x: %w", context.DeadlineExceeded), want: true},
		{name: "canceled", err: context.Canceled, want: false},
		{name: "backend status", err: &Error{Status: 400}, want: false},
		{name: "nil", err: nil, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTimeout(tt.err); got != tt.want {
				t.Errorf("IsTimeout(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := &Error{Provider: schema.ProviderDeepSeek, Status: 502, Err: cause}

	if !errors.Is(err, cause) {
		t.Error("expected Unwrap to expose the cause")
	}
	var backendErr *Error
	if !errors.As(fmt.Errorf("wrapped: %w", err), &backendErr) {
		t.Fatal("expected errors.As to find *Error")
	}
	if backendErr.Status != 502 {
		t.Errorf("Status = %d, want 502", backendErr.Status)
	}
}
