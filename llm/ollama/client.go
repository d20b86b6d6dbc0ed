package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ollama/ollama/api"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
	"github.com/aschepis/backscratcher/llmchain/llm/tokens"
)

// Config configures the Ollama executor and embeddings.
type Config struct {
	// Host is the Ollama server. Empty uses OLLAMA_HOST or http://localhost:11434.
	Host           string
	Model          string
	EmbeddingModel string

	TransportBackoff time.Duration
	RateLimitBackoff time.Duration

	HTTPClient *http.Client
}

func (c Config) withDefaults() Config {
	if c.TransportBackoff == 0 {
		c.TransportBackoff = retry.DefaultTransportBackoff
	}
	if c.RateLimitBackoff == 0 {
		c.RateLimitBackoff = retry.DefaultRateLimitBackoff
	}
	return c
}

// newClient creates the API client. An empty host is resolved from the environment.
func (c Config) newClient() (*api.Client, error) {
	if c.Host == "" {
		client, err := api.ClientFromEnvironment()
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama client: %w", err)
		}
		return client, nil
	}

	baseURL, err := parseHost(c.Host)
	if err != nil {
		return nil, fmt.Errorf("invalid host: %w", err)
	}
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return api.NewClient(baseURL, httpClient), nil
}

// parseHost parses a host string into a URL.
func parseHost(host string) (*url.URL, error) {
	// If host doesn't have a scheme, add http://
	if !strings.HasPrefix(host, "http://") && !strings.HasPrefix(host, "https://") {
		host = "http://" + host
	}
	return url.Parse(host)
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

// WithChatPolicy replaces the retry policy for non-streaming chat calls.
func WithChatPolicy(p retry.Policy) Option {
	return func(s *settings) { s.chatPolicy = &p }
}

// WithStreamPolicy replaces the retry policy for opening chat streams.
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

// Executor implements llm.Executor for Ollama's chat API.
type Executor struct {
	client   *api.Client
	cfg      Config
	settings settings
	logger   zerolog.Logger
}

var _ llm.Executor = (*Executor)(nil)

// NewExecutor creates a new Executor.
// The model may be left empty when every call names one in its options.
func NewExecutor(cfg Config, logger zerolog.Logger, opts ...Option) (*Executor, error) {
	cfg = cfg.withDefaults()
	client, err := cfg.newClient()
	if err != nil {
		return nil, err
	}
	return &Executor{
		client:   client,
		cfg:      cfg,
		settings: applyOptions(cfg, opts),
		logger:   logger.With().Str("component", "ollama").Logger(),
	}, nil
}

func (e *Executor) model(opts *llm.Options) (llm.Cascade, string) {
	c := llm.NewCascade(e.settings.defaults, opts)
	return c, c.ModelOr(e.cfg.Model)
}

// Execute implements llm.Executor.Execute.
func (e *Executor) Execute(ctx context.Context, opts *llm.Options, prompt llm.Prompt) (*llm.Output, error) {
	c, model := e.model(opts)
	if model == "" {
		return nil, &llm.Error{Type: llm.ErrorTypeInvalidRequest, Message: "model is required"}
	}
	logger := e.logger.With().Str("call_id", uuid.NewString()).Str("model", model).Logger()

	req, err := NewChatRequest(prompt, model, c)
	if err != nil {
		return nil, err
	}

	if *req.Stream {
		return e.executeStream(ctx, logger, req)
	}

	logger.Debug().Int("messages", len(req.Messages)).Msg("Sending chat request")
	var out *llm.Output
	err = e.settings.chatPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		var chatResp api.ChatResponse
		err := e.client.Chat(ctx, req, func(resp api.ChatResponse) error {
			chatResp = resp
			return nil
		})
		if err != nil {
			return convertOllamaError(err)
		}
		out, err = FromChatResponse(chatResp)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) executeStream(ctx context.Context, logger zerolog.Logger, req *api.ChatRequest) (*llm.Output, error) {
	logger.Debug().Int("messages", len(req.Messages)).Msg("Opening chat stream")
	var stream *ollamaStream
	err := e.settings.streamPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		s := startOllamaStream(ctx, e.client, req)
		if err := s.awaitFirst(); err != nil {
			_ = s.Close()
			return err
		}
		stream = s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return llm.NewStreamOutput(stream), nil
}

// TokensUsed implements llm.Executor.TokensUsed. Only models with a known
// tokenizer can be counted; others report a not-available error.
func (e *Executor) TokensUsed(opts *llm.Options, prompt llm.Prompt) (llm.TokenCount, error) {
	_, model := e.model(opts)
	msgs, err := ToOllamaMessages(prompt)
	if err != nil {
		return llm.TokenCount{}, err
	}
	tokenMsgs := make([]tokens.Message, 0, len(msgs))
	for _, m := range msgs {
		tokenMsgs = append(tokenMsgs, tokens.Message{Role: m.Role, Content: m.Content})
	}
	used, err := e.settings.calculator.TokensUsed(model, tokenMsgs)
	if err != nil {
		return llm.TokenCount{}, err
	}
	return llm.NewTokenCount(ContextSize(model), used), nil
}

// MaxTokensAllowed implements llm.Executor.MaxTokensAllowed.
func (e *Executor) MaxTokensAllowed(opts *llm.Options) int {
	_, model := e.model(opts)
	return ContextSize(model)
}

// Tokenizer implements llm.Executor.Tokenizer.
func (e *Executor) Tokenizer(opts *llm.Options) (llm.Tokenizer, error) {
	_, model := e.model(opts)
	tok, err := e.settings.calculator.Tokenizer(model)
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// AnswerPrefix implements llm.Executor.AnswerPrefix. Ollama needs none.
func (e *Executor) AnswerPrefix(llm.Prompt) string {
	return ""
}

// convertOllamaError converts Ollama API errors to llm.Error types.
func convertOllamaError(err error) error {
	if err == nil {
		return nil
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		msg := statusErr.ErrorMessage
		if msg == "" {
			msg = statusErr.Status
		}
		if statusErr.StatusCode == http.StatusTooManyRequests {
			return llm.NewRateLimitError(fmt.Sprintf("Ollama rate limit: %s", msg), statusErr.StatusCode, "", err)
		}
		return llm.NewTransportError(fmt.Sprintf("Ollama API error: %s", msg), statusErr.StatusCode, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return llm.NewTransportError("ollama chat request failed", 0, err)
}
