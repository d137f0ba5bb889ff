// Package llm provides text generation backends for chat summarization.
package llm

import "context"

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	ModelName() string
	Close() error
}
