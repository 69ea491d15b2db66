package core

import "context"

// The model capabilities the pipeline depends on. Each is a black box with an
// explicit contract; the Gemini-backed LLMService implements all three, tests
// substitute fakes.

// LabelScore is one entry of a zero-shot classification ranking.
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Embedder turns text into a fixed-dimension vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ZeroShotClassifier scores text against a closed label set and returns the
// labels ranked by descending score.
type ZeroShotClassifier interface {
	ClassifyZeroShot(ctx context.Context, text string, labels []string) ([]LabelScore, error)
}

// Generator produces answer text constrained to the supplied grounding
// context.
type Generator interface {
	Generate(ctx context.Context, question, groundingContext string) (string, error)
}
