package openai

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"docloom/internal/embed"
)

const (
	maxBatchSize  = 100
	retryAttempts = 3
)

// Embedder generates embeddings through the OpenAI embeddings API, or any
// OpenAI-compatible endpoint when a base URL is supplied.
type Embedder struct {
	client    openai.Client
	model     string
	dimension int
	e5Prefix  bool
}

type Option func(*Embedder)

func WithDimension(d int) Option {
	return func(e *Embedder) { e.dimension = d }
}

func WithE5Prefix(enabled bool) Option {
	return func(e *Embedder) { e.e5Prefix = enabled }
}

func NewEmbedder(apiKey, baseURL, model string, opts ...Option) *Embedder {
	clientOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(baseURL))
	}

	e := &Embedder{
		client: openai.NewClient(clientOpts...),
		model:  model,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Embedder) ModelID() string   { return e.model }
func (e *Embedder) MaxBatchSize() int { return maxBatchSize }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, kind embed.InputKind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	prefixed := embed.ApplyPrefix(texts, kind, e.e5Prefix)

	var vectors [][]float32
	for start := 0; start < len(prefixed); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(prefixed) {
			end = len(prefixed)
		}

		batch, err := e.embedBatch(ctx, prefixed[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vectors), len(texts))
	}
	return vectors, nil
}

func (e *Embedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
		Input: openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		},
	}
	if e.dimension > 0 {
		params.Dimensions = openai.Int(int64(e.dimension))
	}

	var resp *openai.CreateEmbeddingResponse
	var err error
	for attempt := 1; attempt <= retryAttempts; attempt++ {
		resp, err = e.client.Embeddings.New(ctx, params)
		if err == nil {
			break
		}
		if attempt < retryAttempts {
			slog.Warn("embedding request failed, retrying", "attempt", attempt, "model", e.model, "error", err)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return nil, fmt.Errorf("embed batch of %d: %w", len(texts), err)
	}

	vectors := make([][]float32, 0, len(resp.Data))
	for _, data := range resp.Data {
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

func (e *Embedder) ProbeDimension(ctx context.Context) (int, error) {
	vectors, err := e.EmbedTexts(ctx, []string{"dimension probe"}, embed.InputPassage)
	if err != nil {
		return 0, err
	}
	if len(vectors) == 0 {
		return 0, fmt.Errorf("no embedding returned for probe")
	}
	return len(vectors[0]), nil
}

var _ embed.Embedder = (*Embedder)(nil)
