package papyrus

import "context"

// Generator abstracts the language-generation backend.
// Implementations must be safe for concurrent use by multiple requests.
type Generator interface {
	// Generate sends a prompt and returns the complete response text.
	Generate(ctx context.Context, prompt string) (string, error)
	// GenerateStream streams response fragments into ch in generation order
	// and closes ch when the stream ends. The returned error reports any
	// mid-stream failure after the channel is closed.
	GenerateStream(ctx context.Context, prompt string, ch chan<- string) error
	// Name returns the provider name (e.g. "openai").
	Name() string
}

// EmbeddingProvider abstracts text embedding. Embed is batchable and
// deterministic for a fixed model version; ingested content and query text
// must go through the same provider so distances are comparable.
type EmbeddingProvider interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector size.
	Dimensions() int
	// Name returns the provider name.
	Name() string
}
