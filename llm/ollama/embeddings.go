package ollama

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
)

// isRateLimited matches HTTP 429 responses, and gateways that only report
// a requests-per-second limit in the error text.
var isRateLimited = retry.AnyOf(
	llm.IsRateLimitError,
	retry.MessageContains("qps request limit reached"),
)

// Embeddings implements llm.Embeddings with Ollama's embed API.
type Embeddings struct {
	client   *api.Client
	model    string
	settings settings
	logger   zerolog.Logger
}

var _ llm.Embeddings = (*Embeddings)(nil)

// NewEmbeddings creates a new Embeddings client using cfg.EmbeddingModel.
func NewEmbeddings(cfg Config, logger zerolog.Logger, opts ...Option) (*Embeddings, error) {
	cfg = cfg.withDefaults()
	if cfg.EmbeddingModel == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	client, err := cfg.newClient()
	if err != nil {
		return nil, err
	}
	return &Embeddings{
		client:   client,
		model:    cfg.EmbeddingModel,
		settings: applyOptions(cfg, opts),
		logger:   logger.With().Str("component", "ollama_embeddings").Logger(),
	}, nil
}

// EmbedTexts implements llm.Embeddings.EmbedTexts. Empty vectors are skipped.
func (e *Embeddings) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vectors, err := e.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	return lo.Filter(vectors, func(v []float32, _ int) bool { return len(v) > 0 }), nil
}

// EmbedQuery implements llm.Embeddings.EmbedQuery.
// An empty provider result yields an empty vector.
func (e *Embeddings) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	vectors, err := e.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return []float32{}, nil
	}
	return vectors[len(vectors)-1], nil
}

func (e *Embeddings) embed(ctx context.Context, texts []string) ([][]float32, error) {
	logger := e.logger.With().Str("call_id", uuid.NewString()).Str("model", e.model).Logger()
	req := &api.EmbedRequest{Model: e.model, Input: texts}

	var vectors [][]float32
	err := e.settings.rateLimitPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		resp, err := e.client.Embed(ctx, req)
		if err != nil {
			return convertOllamaError(err)
		}
		vectors = resp.Embeddings
		return nil
	})
	if err != nil {
		return nil, err
	}
	logger.Debug().Int("inputs", len(texts)).Int("vectors", len(vectors)).Msg("Created embeddings")
	return vectors, nil
}
