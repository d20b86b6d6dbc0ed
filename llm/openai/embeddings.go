package openai

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
)

// isRateLimited matches requests-per-minute limits. A 429 for an exhausted quota
// does not clear by waiting and is not matched. Errors without a structured kind
// fall back to matching the provider's message.
var isRateLimited = retry.AnyOf(
	func(err error) bool {
		var llmErr *llm.Error
		return errors.As(err, &llmErr) &&
			llmErr.Type == llm.ErrorTypeRateLimit &&
			llmErr.Code != codeInsufficientQuota
	},
	func(err error) bool {
		return llm.TypeOf(err) == "" && retry.MessageContains("rate limit reached")(err)
	},
)

// Embeddings implements llm.Embeddings with the OpenAI embeddings endpoint.
type Embeddings struct {
	client   *openai.Client
	model    string
	settings settings
	logger   zerolog.Logger
}

var _ llm.Embeddings = (*Embeddings)(nil)

// NewEmbeddings creates a new Embeddings client using cfg.EmbeddingModel.
func NewEmbeddings(cfg Config, logger zerolog.Logger, opts ...Option) (*Embeddings, error) {
	cfg = cfg.withEnv()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	return &Embeddings{
		client:   cfg.newClient(cfg.APIKey),
		model:    cfg.EmbeddingModel,
		settings: applyOptions(cfg, opts),
		logger:   logger.With().Str("component", "openai_embeddings").Logger(),
	}, nil
}

// EmbedTexts implements llm.Embeddings.EmbedTexts.
// Vectors are returned in input order; empty vectors are skipped.
func (e *Embeddings) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	data, err := e.embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	vectors := lo.Map(data, func(d openai.Embedding, _ int) []float32 { return d.Embedding })
	return lo.Filter(vectors, func(v []float32, _ int) bool { return len(v) > 0 }), nil
}

// EmbedQuery implements llm.Embeddings.EmbedQuery.
// An empty provider result yields an empty vector.
func (e *Embeddings) EmbedQuery(ctx context.Context, query string) ([]float32, error) {
	data, err := e.embed(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return []float32{}, nil
	}
	return data[len(data)-1].Embedding, nil
}

func (e *Embeddings) embed(ctx context.Context, texts []string) ([]openai.Embedding, error) {
	logger := e.logger.With().Str("call_id", uuid.NewString()).Str("model", e.model).Logger()
	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(e.model),
	}

	var data []openai.Embedding
	err := e.settings.rateLimitPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return convertOpenAIError(err)
		}
		data = resp.Data
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
	logger.Debug().Int("inputs", len(texts)).Int("vectors", len(data)).Msg("Created embeddings")
	return data, nil
}
