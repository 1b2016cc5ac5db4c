package core

import (
	"context"
	"io"
)

// Provider is an OpenAI-compatible chat completions upstream.
type Provider interface {
	// Name is the human-readable provider name used in error messages.
	Name() string

	// Complete executes a non-streaming completion and returns the content of
	// the first choice unmodified.
	Complete(ctx context.Context, req *ChatCompletionRequest) (string, error)

	// StreamComplete returns the raw SSE body of a streaming completion
	// (caller must close). Nothing has been read from it yet.
	StreamComplete(ctx context.Context, req *ChatCompletionRequest) (io.ReadCloser, error)
}
