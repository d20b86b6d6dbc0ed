package config

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/llm"
	llmanthropic "github.com/aschepis/backscratcher/llmchain/llm/anthropic"
	llmollama "github.com/aschepis/backscratcher/llmchain/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/llmchain/llm/openai"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
)

// NewExecutor creates the chat executor described by key.
// Key fields override the matching file and environment values. metrics may be nil.
func NewExecutor(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, metrics *retry.Metrics) (llm.Executor, error) {
	if key == nil {
		return nil, fmt.Errorf("client key is required")
	}

	switch key.Provider {
	case llm.ProviderOpenAI:
		var opts []llmopenai.Option
		if metrics != nil {
			opts = append(opts, llmopenai.WithMetrics(metrics))
		}
		exec, err := NewOpenAIExecutor(cfg, key, logger, opts...)
		if err != nil {
			return nil, err
		}
		return exec, nil

	case llm.ProviderOllama:
		var opts []llmollama.Option
		if metrics != nil {
			opts = append(opts, llmollama.WithMetrics(metrics))
		}
		exec, err := NewOllamaExecutor(cfg, key, logger, opts...)
		if err != nil {
			return nil, err
		}
		return exec, nil

	case llm.ProviderAnthropic:
		var opts []llmanthropic.Option
		if metrics != nil {
			opts = append(opts, llmanthropic.WithMetrics(metrics))
		}
		exec, err := NewAnthropicExecutor(cfg, key, logger, opts...)
		if err != nil {
			return nil, err
		}
		return exec, nil

	default:
		return nil, fmt.Errorf("unknown provider: %s", key.Provider)
	}
}

// NewEmbeddings creates the embeddings client described by key.
func NewEmbeddings(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, metrics *retry.Metrics) (llm.Embeddings, error) {
	if key == nil {
		return nil, fmt.Errorf("client key is required")
	}

	switch key.Provider {
	case llm.ProviderOpenAI:
		var opts []llmopenai.Option
		if metrics != nil {
			opts = append(opts, llmopenai.WithMetrics(metrics))
		}
		emb, err := NewOpenAIEmbeddings(cfg, key, logger, opts...)
		if err != nil {
			return nil, err
		}
		return emb, nil

	case llm.ProviderOllama:
		var opts []llmollama.Option
		if metrics != nil {
			opts = append(opts, llmollama.WithMetrics(metrics))
		}
		emb, err := NewOllamaEmbeddings(cfg, key, logger, opts...)
		if err != nil {
			return nil, err
		}
		return emb, nil

	default:
		return nil, fmt.Errorf("provider %s does not offer embeddings", key.Provider)
	}
}
