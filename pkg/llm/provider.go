// Package llm provides abstractions for LLM provider integration.
//
// The plan synthesizer and bug reporter only depend on Provider, so any
// OpenAI-compatible service or a test double can stand behind them.
package llm

import (
	"context"

	"github.com/entrhq/webprobe/pkg/types"
)

// Provider defines the interface for LLM integrations.
type Provider interface {
	// StreamCompletion sends messages to the LLM and streams back response chunks.
	//
	// The channel is closed when streaming completes or an error occurs.
	// Returns an error only if streaming cannot be initiated; stream-time
	// errors arrive as chunks with Error set.
	StreamCompletion(ctx context.Context, messages []*types.Message) (<-chan *StreamChunk, error)

	// Complete sends messages to the LLM and returns the answer content.
	// Reasoning content is not included in the returned message.
	Complete(ctx context.Context, messages []*types.Message) (*types.Message, error)

	// GetModelInfo returns information about the LLM model being used.
	GetModelInfo() *types.ModelInfo

	// GetModel returns the model name being used.
	GetModel() string
}

// ModelCloner is implemented by providers that can direct calls to another
// model while sharing credentials and transport.
type ModelCloner interface {
	CloneWithModel(model string) Provider
}
