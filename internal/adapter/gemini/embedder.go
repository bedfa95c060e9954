package gemini

import (
	"context"
	"fmt"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"docloom/internal/embed"
)

const maxBatchSize = 100

// Embedder generates embeddings through the Gemini API.
type Embedder struct {
	client *genai.Client
	model  string
}

func NewEmbedder(ctx context.Context, apiKey, model string, opts ...option.ClientOption) (*Embedder, error) {
	opts = append(opts, option.WithAPIKey(apiKey))
	client, err := genai.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Embedder{client: client, model: model}, nil
}

func (e *Embedder) Close() error   { return e.client.Close() }
func (e *Embedder) ModelID() string   { return e.model }
func (e *Embedder) MaxBatchSize() int { return maxBatchSize }

func (e *Embedder) EmbedTexts(ctx context.Context, texts []string, kind embed.InputKind) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	model := e.client.EmbeddingModel(e.model)

	var vectors [][]float32
	for start := 0; start < len(texts); start += maxBatchSize {
		end := start + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		res, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch of %d: %w", end-start, err)
		}

		for _, emb := range res.Embeddings {
			if len(emb.Values) == 0 {
				return nil, fmt.Errorf("empty embedding received")
			}
			vectors = append(vectors, emb.Values)
		}
	}

	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: got %d for %d texts", len(vectors), len(texts))
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
