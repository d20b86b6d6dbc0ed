package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
	"github.com/aschepis/backscratcher/llmchain/llm/tokens"
)

const (
	// DefaultMaxTokens is the completion limit used when neither the config nor the call sets one.
	DefaultMaxTokens = 1024

	claudeContextSize = 200000
)

// Config configures the Anthropic executor.
// An empty APIKey falls back to ANTHROPIC_API_KEY, read once at construction.
type Config struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64

	TransportBackoff time.Duration

	HTTPClient *http.Client
}

// Option customizes an Executor.
type Option func(*settings)

type settings struct {
	chatPolicy   *retry.Policy
	streamPolicy *retry.Policy
	metrics      *retry.Metrics
	calculator   *tokens.Calculator
	defaults     *llm.Options
}

// WithChatPolicy replaces the retry policy for non-streaming messages.
func WithChatPolicy(p retry.Policy) Option {
	return func(s *settings) { s.chatPolicy = &p }
}

// WithStreamPolicy replaces the retry policy for opening message streams.
func WithStreamPolicy(p retry.Policy) Option {
	return func(s *settings) { s.streamPolicy = &p }
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

// Executor implements llm.Executor for Anthropic's Messages API.
type Executor struct {
	client   *anthropic.Client
	cfg      Config
	settings settings
	logger   zerolog.Logger
}

var _ llm.Executor = (*Executor)(nil)

// NewExecutor creates a new Executor.
// If no API key is configured or set in the environment, it will return an error.
func NewExecutor(cfg Config, logger zerolog.Logger, opts ...Option) (*Executor, error) {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = llm.DefaultAnthropicModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.TransportBackoff == 0 {
		cfg.TransportBackoff = retry.DefaultTransportBackoff
	}

	// Retries are handled by our own policies.
	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(0)}
	if cfg.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := anthropic.NewClient(clientOpts...)

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
	if s.metrics != nil {
		s.chatPolicy.Metrics = s.metrics
		s.streamPolicy.Metrics = s.metrics
	}
	if s.calculator == nil {
		s.calculator = tokens.Default
	}

	return &Executor{
		client:   &client,
		cfg:      cfg,
		settings: s,
		logger:   logger.With().Str("component", "anthropic").Logger(),
	}, nil
}

func (e *Executor) model(opts *llm.Options) (llm.Cascade, string) {
	c := llm.NewCascade(e.settings.defaults, opts)
	return c, c.ModelOr(e.cfg.Model)
}

// Execute implements llm.Executor.Execute.
func (e *Executor) Execute(ctx context.Context, opts *llm.Options, prompt llm.Prompt) (*llm.Output, error) {
	c, model := e.model(opts)
	logger := e.logger.With().Str("call_id", uuid.NewString()).Str("model", model).Logger()

	params, err := NewMessageParams(prompt, model, e.cfg.MaxTokens, c)
	if err != nil {
		return nil, err
	}

	if c.IsStreaming() {
		return e.executeStream(ctx, logger, params)
	}

	logger.Debug().Int("messages", len(params.Messages)).Msg("Creating message")
	var out *llm.Output
	err = e.settings.chatPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		message, err := e.client.Messages.New(ctx, params)
		if err != nil {
			return convertAnthropicError(err)
		}
		logger.Debug().
			Int64("input_tokens", message.Usage.InputTokens).
			Int64("output_tokens", message.Usage.OutputTokens).
			Str("stop_reason", string(message.StopReason)).
			Msg("Message created")
		out, err = FromMessage(message)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (e *Executor) executeStream(ctx context.Context, logger zerolog.Logger, params anthropic.MessageNewParams) (*llm.Output, error) {
	logger.Debug().Int("messages", len(params.Messages)).Msg("Opening message stream")
	var stream *anthropicStream
	err := e.settings.streamPolicy.WithLogger(logger).Do(ctx, func(ctx context.Context) error {
		s := newAnthropicStream(e.client.Messages.NewStreaming(ctx, params))
		if err := s.open(); err != nil {
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

// TokensUsed implements llm.Executor.TokensUsed. Claude tokenizers are not
// published, so this reports not-available for Claude models.
func (e *Executor) TokensUsed(opts *llm.Options, prompt llm.Prompt) (llm.TokenCount, error) {
	_, model := e.model(opts)
	msgs := prompt.ToChat()
	tokenMsgs := make([]tokens.Message, 0, len(msgs))
	for _, m := range msgs {
		body, err := m.Render()
		if err != nil {
			return llm.TokenCount{}, err
		}
		tokenMsgs = append(tokenMsgs, tokens.Message{Role: m.Role.String(), Content: body})
	}
	used, err := e.settings.calculator.TokensUsed(model, tokenMsgs)
	if err != nil {
		return llm.TokenCount{}, err
	}
	return llm.NewTokenCount(e.MaxTokensAllowed(opts), used), nil
}

// MaxTokensAllowed implements llm.Executor.MaxTokensAllowed.
func (e *Executor) MaxTokensAllowed(opts *llm.Options) int {
	_, model := e.model(opts)
	if strings.HasPrefix(strings.ToLower(model), "claude-") {
		return claudeContextSize
	}
	return tokens.DefaultContextSize
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

// AnswerPrefix implements llm.Executor.AnswerPrefix. Anthropic needs none.
func (e *Executor) AnswerPrefix(llm.Prompt) string {
	return ""
}

// convertAnthropicError converts Anthropic API errors to llm.Error types.
func convertAnthropicError(err error) error {
	if err == nil {
		return nil
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return llm.NewRateLimitError("Anthropic rate limit", apiErr.StatusCode, "rate_limit_error", err)
		}
		return llm.NewTransportError("Anthropic API error", apiErr.StatusCode, err)
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return llm.NewTransportError("Anthropic request failed", 0, err)
}
