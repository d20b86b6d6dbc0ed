package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
	"github.com/aschepis/backscratcher/llmchain/llm/tokens"
)

// codeInsufficientQuota marks a 429 that will not clear by waiting.
const codeInsufficientQuota = "insufficient_quota"

// Config configures the OpenAI executor and embeddings.
// Empty APIKey, Organization and BaseURL fall back to OPENAI_API_KEY, OPENAI_ORG_ID
// and OPENAI_BASE_URL, read once at construction.
type Config struct {
	APIKey         string
	BaseURL        string
	Organization   string
	Model          string
	EmbeddingModel string

	TransportBackoff time.Duration
	RateLimitBackoff time.Duration

	HTTPClient *http.Client
}

func (c Config) withEnv() Config {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if c.Organization == "" {
		c.Organization = os.Getenv("OPENAI_ORG_ID")
	}
	if c.BaseURL == "" {
		c.BaseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if c.Model == "" {
		c.Model = llm.DefaultOpenAIModel
	}
	if c.EmbeddingModel == "" {
		c.EmbeddingModel = llm.DefaultOpenAIEmbeddingModel
	}
	if c.TransportBackoff == 0 {
		c.TransportBackoff = retry.DefaultTransportBackoff
	}
	if c.RateLimitBackoff == 0 {
		c.RateLimitBackoff = retry.DefaultRateLimitBackoff
	}
	return c
}

func (c Config) newClient(apiKey string) *openai.Client {
	config := openai.DefaultConfig(apiKey)
	if c.BaseURL != "" {
		config.BaseURL = c.BaseURL
	}
	if c.Organization != "" {
		config.OrgID = c.Organization
	}
	if c.HTTPClient != nil {
		config.HTTPClient = c.HTTPClient
	}
	return openai.NewClientWithConfig(config)
}

// Option customizes an Executor or Embeddings.
type Option func(*settings)

type settings struct {
	chatPolicy      *retry.Policy
	streamPolicy    *retry.Policy
	rateLimitPolicy *retry.Policy
	metrics         *retry.Metrics
	calculator      *tokens.Calculator
	defaults        *llm.Options
}

// WithChatPolicy replaces the retry policy for non-streaming completions.
func WithChatPolicy(p retry.Policy) Option {
	return func(s *settings) { s.chatPolicy = &p }
}

// WithStreamPolicy replaces the retry policy for opening completion streams.
func WithStreamPolicy(p retry.Policy) Option {
	return func(s *settings) { s.streamPolicy = &p }
}

// WithRateLimitPolicy replaces the retry policy for embeddings calls.
func WithRateLimitPolicy(p retry.Policy) Option {
	return func(s *settings) { s.rateLimitPolicy = &p }
}

// WithMetrics records retry activity in m.
func WithMetrics(m *retry.Metrics) Option {
	return func(s *settings) { s.metrics = m }
}

// WithCalculator replaces the token calculator.
func WithCalculator(c *tokens.Calculator) Option {
	return func(s *settings) { s.calculator = c }
}

// WithDefaults sets executor-level options that per-call options override.
func WithDefaults(opts *llm.Options) Option {
	return func(s *settings) { s.defaults = opts }
}

func applyOptions(cfg Config, opts []Option) settings {
	s := settings{}
	for _, opt := range opts {
		opt(&s)
	}
	if s.chatPolicy == nil {
		p := retry.ChatPolicy(cfg.TransportBackoff)
		s.chatPolicy = &p
	}
	if s.streamPolicy == nil {
		p := retry.StreamPolicy(cfg.TransportBackoff)
		s.streamPolicy = &p
	}
	if s.rateLimitPolicy == nil {
		p := retry.RateLimitPolicy(cfg.RateLimitBackoff, isRateLimited)
		s.rateLimitPolicy = &p
	}
	if s.metrics != nil {
		s.chatPolicy.Metrics = s.metrics
		s.streamPolicy.Metrics = s.metrics
		s.rateLimitPolicy.Metrics = s.metrics
	}
	if s.calculator == nil {
		s.calculator = tokens.Default
	}
	return s
}

// Executor implements llm.Executor for OpenAI chat completions.
// The underlying client is created once and shared by all calls.
type Executor struct {
	client   *openai.Client
	cfg      Config
	settings settings
	logger   zerolog.Logger
}

var _ llm.Executor = (*Executor)(nil)

// NewExecutor creates a new Executor.
// If no API key is configured or set in the environment, it will return an error.
func NewExecutor(cfg Config, logger zerolog.Logger, opts ...Option) (*Executor, error) {
	cfg = cfg.withEnv()
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	return &Executor{
		client:   cfg.newClient(cfg.APIKey),
		cfg:      cfg,
		settings: applyOptions(cfg, opts),
		logger:   logger.With().Str("component", "openai").Logger(),
	}, nil
}

func (e *Executor) cascade(opts *llm.Options) llm.Cascade {
	return llm.NewCascade(e.settings.defaults, opts)
}

func (e *Executor) model(c llm.Cascade) string {
	return c.ModelOr(e.cfg.Model)
}

// clientFor returns the shared client, or a dedicated one when the call overrides the API key.
func (e *Executor) clientFor(c llm.Cascade) *openai.Client {
	if key, ok := c.APIKey(); ok && key != e.cfg.APIKey {
		return e.cfg.newClient(key)
	}
	return e.client
}

// Execute implements llm.Executor.Execute.
func (e *Executor) Execute(ctx context.Context, opts *llm.Options, prompt llm.Prompt) (*llm.Output, error) {
	c := e.cascade(opts)
	model := e.model(c)
	logger := e.logger.With().Str("call_id", uuid.NewString()).Str("model", model).Logger()

	req, err := NewChatCompletionRequest(prompt, model, c)
	if err != nil {
		return nil, err
	}
	client := e.clientFor(c)

	if req.Stream {
		return e.executeStream(ctx, logger, client, req)
	}

	logger.Debug().Int("messages", len(req.Messages)).Msg("Creating chat completion")
	var out *llm.Output
	err = e.settings.chatPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		resp, err := client.CreateChatCompletion(ctx, req)
		if err != nil {
			return convertOpenAIError(err)
		}
		out, err = FromChatCompletionResponse(resp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) executeStream(ctx context.Context, logger zerolog.Logger, client *openai.Client, req openai.ChatCompletionRequest) (*llm.Output, error) {
	logger.Debug().Int("messages", len(req.Messages)).Msg("Opening chat completion stream")
	var stream *openai.ChatCompletionStream
	err := e.settings.streamPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		s, err := client.CreateChatCompletionStream(ctx, req)
		if err != nil {
			return convertOpenAIError(err)
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return llm.NewStreamOutput(newOpenAIStream(stream)), nil
}

// TokensUsed implements llm.Executor.TokensUsed.
func (e *Executor) TokensUsed(opts *llm.Options, prompt llm.Prompt) (llm.TokenCount, error) {
	model := e.model(e.cascade(opts))
	msgs, err := ToOpenAIMessages(prompt)
	if err != nil {
		return llm.TokenCount{}, err
	}
	return e.settings.calculator.Budget(model, toTokenMessages(msgs))
}

// MaxTokensAllowed implements llm.Executor.MaxTokensAllowed.
func (e *Executor) MaxTokensAllowed(opts *llm.Options) int {
	return tokens.ContextSize(e.model(e.cascade(opts)))
}

// Tokenizer implements llm.Executor.Tokenizer.
func (e *Executor) Tokenizer(opts *llm.Options) (llm.Tokenizer, error) {
	tok, err := e.settings.calculator.Tokenizer(e.model(e.cascade(opts)))
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// AnswerPrefix implements llm.Executor.AnswerPrefix. OpenAI needs none.
func (e *Executor) AnswerPrefix(llm.Prompt) string {
	return ""
}

// convertOpenAIError converts OpenAI API errors to llm.Error types.
func convertOpenAIError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		code := errorCode(apiErr.Code)
		if apiErr.HTTPStatusCode == http.StatusTooManyRequests {
			return llm.NewRateLimitError(
				fmt.Sprintf("OpenAI rate limit: %s", apiErr.Message),
				apiErr.HTTPStatusCode,
				code,
				err,
			)
		}
		e := llm.NewTransportError(
			fmt.Sprintf("OpenAI API error: %s", apiErr.Message),
			apiErr.HTTPStatusCode,
			err,
		)
		e.Code = code
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		if reqErr.HTTPStatusCode == http.StatusTooManyRequests {
			return llm.NewRateLimitError("OpenAI rate limit", reqErr.HTTPStatusCode, "", err)
		}
		return llm.NewTransportError("OpenAI request failed", reqErr.HTTPStatusCode, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return llm.NewTransportError("OpenAI API error", 0, err)
}

// errorCode renders the code field of an OpenAI error, which may be a string or a number.
func errorCode(code any) string {
	switch c := code.(type) {
	case nil:
		return ""
	case string:
		return c
	default:
		return fmt.Sprint(c)
	}
}
