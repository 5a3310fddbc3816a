package backend

import (
	"context"

	"github.com/zen-systems/quorum/pkg/schema"
)

// Client is the contract every provider backend implements.
type Client interface {
	// Generate sends one prompt to the model and returns the raw result.
	// Implementations must respect context cancellation promptly and
	// return a distinguishable error for timeouts versus
	// backend-reported failures.
	Generate(ctx context.Context, req Request) (*Result, error)

	// Provider returns the backend's identifier.
	Provider() schema.Provider

	// Models returns the list of supported models.
	Models() []string
}
