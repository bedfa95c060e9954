package embed

import "context"

// InputKind distinguishes indexed passages from search queries for models
// that expect an instruction prefix (e5 family).
type InputKind string

const (
	InputPassage InputKind = "passage"
	InputQuery   InputKind = "query"
)

// Embedder turns text into vectors. Implementations batch internally up
// to MaxBatchSize and must return one vector per input, in order.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string, kind InputKind) ([][]float32, error)
	ModelID() string
	MaxBatchSize() int

	// ProbeDimension embeds a trivial input and reports the vector width,
	// used to verify a profile's declared dimension against the provider.
	ProbeDimension(ctx context.Context) (int, error)
}

// ApplyPrefix prepends the e5-style instruction prefix when enabled.
func ApplyPrefix(texts []string, kind InputKind, enabled bool) []string {
	if !enabled {
		return texts
	}
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = string(kind) + ": " + t
	}
	return out
}
