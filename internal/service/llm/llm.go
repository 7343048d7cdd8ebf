// Package llm defines the streaming language model contract used by the agent.
package llm

import (
	"context"
	"iter"
)

// Chunk is one incremental piece of a model response. Text may be empty.
type Chunk struct {
	Text string
}

// Model streams a response for one user utterance. Every call opens exactly
// one provider request; the sequence ends when the provider finishes.
type Model interface {
	Stream(ctx context.Context, text string) iter.Seq2[Chunk, error]
}
