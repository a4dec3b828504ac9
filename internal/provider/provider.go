// Package provider defines the minimal completion interface used for the
// local summary model, and a health guard that backs off an unreachable
// model so callers fall back quickly.
package provider

import "context"

// Provider is the interface for communicating with an LLM.
// Concrete implementations live in separate packages (e.g.,
// provider.openai_compatible) and also implement core.Module.
type Provider interface {
	// Complete sends a completion request and returns the full response.
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)

	// ModelName returns the identifier of the underlying model.
	ModelName() string
}

// HealthChecker is an optional interface that providers may implement
// to support active health probing.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
