package schemas

import (
	"context"
)

// -- Turn Collaborators --

// CaptureProvider grabs the current screen. An empty image is treated as a
// capture failure by callers.
type CaptureProvider interface {
	Capture(ctx context.Context) (Image, error)
}

// InputExecutor performs a single input action against the environment.
// Implementations apply their own pacing between actions.
type InputExecutor interface {
	Execute(ctx context.Context, action Action) error
}

// -- LLM Client Schemas & Interface --

// GenerationOptions controls sampling for a single call.
type GenerationOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	MaxTokens   int     `json:"max_tokens"`
}

// GenerationRequest carries the prompts and the annotated screenshot for one
// inference call.
type GenerationRequest struct {
	SystemPrompt string            `json:"system_prompt"`
	UserPrompt   string            `json:"user_prompt"`
	ImageB64     string            `json:"image_b64,omitempty"` // PNG, no data: prefix
	Options      GenerationOptions `json:"options"`
}

// LLMClient defines a standard interface for interacting with a vision
// language model, abstracting the specifics of the underlying provider.
type LLMClient interface {
	// Generate returns the raw text of the model's reply.
	Generate(ctx context.Context, req GenerationRequest) (string, error)
	// Close cleans up any resources held by the client.
	Close() error
}

// -- Events & Persistence --

// EventPublisher fans turn events out to interested subscribers.
type EventPublisher interface {
	Publish(ctx context.Context, event TurnEvent) error
}

// TurnRecorder persists turn artifacts. Recording failures never affect the
// turn loop.
type TurnRecorder interface {
	Record(ctx context.Context, event TurnEvent) error
	Close() error
}
