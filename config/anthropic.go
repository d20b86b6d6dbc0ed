package config

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/llm"
	llmanthropic "github.com/aschepis/backscratcher/llmchain/llm/anthropic"
)

// LoadAnthropicConfig loads Anthropic configuration from cfg.
// ANTHROPIC_API_KEY and ANTHROPIC_MODEL take precedence over file values.
func LoadAnthropicConfig(cfg *Config) llmanthropic.Config {
	var out llmanthropic.Config
	if cfg != nil {
		out = llmanthropic.Config{
			APIKey:           cfg.Anthropic.APIKey,
			Model:            cfg.Anthropic.Model,
			MaxTokens:        cfg.Anthropic.MaxTokens,
			TransportBackoff: cfg.Retry.TransportBackoff(),
		}
	}
	if envAPIKey := os.Getenv("ANTHROPIC_API_KEY"); envAPIKey != "" {
		out.APIKey = envAPIKey
	}
	if envModel := os.Getenv("ANTHROPIC_MODEL"); envModel != "" {
		out.Model = envModel
	}
	return out
}

// NewAnthropicExecutor creates a new Anthropic chat executor from the configuration.
// Non-empty fields of key override the loaded values; key may be nil.
func NewAnthropicExecutor(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, opts ...llmanthropic.Option) (*llmanthropic.Executor, error) {
	c := LoadAnthropicConfig(cfg)
	if key != nil {
		if key.APIKey != "" {
			c.APIKey = key.APIKey
		}
		if key.Model != "" {
			c.Model = key.Model
		}
	}
	return llmanthropic.NewExecutor(c, logger, opts...)
}
