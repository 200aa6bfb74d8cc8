package llms

import "context"

// Stream is a lazily evaluated generation. The request is not issued until
// Chunks is iterated, and abandoning the iterator cancels the request.
type Stream interface {
	Chunks(ctx context.Context) func(func(StreamChunk, error) bool)
}

// StreamChunk is a single increment of a streamed generation. Concrete
// chunks additionally implement StreamContentChunk or StreamToolCallChunk.
type StreamChunk interface {
	// FinishReason reports why the generation ended, or nil while it is
	// still in progress.
	FinishReason() *string
}

// StreamContentChunk carries a fragment of generated text.
type StreamContentChunk interface {
	StreamChunk
	Content() string
}

// StreamToolCallChunk carries a complete tool invocation requested by the
// model.
type StreamToolCallChunk interface {
	StreamChunk
	ToolCall() ToolCall
}
