package port

import "context"

// LLM represents a language model for text generation.
type LLM interface {
	// Generate generates text based on the prompt.
	Generate(ctx context.Context, prompt string) (string, error)

	// ModelName returns the name of the model.
	ModelName() string
}

// Analyzer explains a flagged record in natural language.
// Implementations never fail; degraded answers carry a recognizable prefix.
type Analyzer interface {
	Analyze(ctx context.Context, text string) string
}
