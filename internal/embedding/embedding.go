// Package embedding turns text into vectors for properties tagged
// vectorize=<source>.
package embedding

import (
	"context"
	"errors"
)

// ErrProvider wraps every failure reported by an embedding backend.
var ErrProvider = errors.New("embedding provider error")

// Result is a single embedding with its token usage.
type Result struct {
	Embedding    []float32
	PromptTokens int
	TotalTokens  int
}

// Embedder vectorizes text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Result, error)
}

// Func adapts a function to Embedder.
type Func func(ctx context.Context, text string) (Result, error)

// Embed implements Embedder.
func (f Func) Embed(ctx context.Context, text string) (Result, error) {
	return f(ctx, text)
}
