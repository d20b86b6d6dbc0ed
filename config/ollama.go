package config

import (
	"net/http"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/llm"
	llmollama "github.com/aschepis/backscratcher/llmchain/llm/ollama"
)

// LoadOllamaConfig loads Ollama configuration from cfg.
// Environment variables take precedence over file values.
func LoadOllamaConfig(cfg *Config) llmollama.Config {
	var out llmollama.Config
	if cfg != nil {
		out = llmollama.Config{
			Host:             cfg.Ollama.Host,
			Model:            cfg.Ollama.Model,
			EmbeddingModel:   cfg.Ollama.EmbeddingModel,
			TransportBackoff: cfg.Retry.TransportBackoff(),
			RateLimitBackoff: cfg.Retry.RateLimitBackoff(),
		}
		if cfg.Ollama.Timeout > 0 {
			out.HTTPClient = headerTimeoutClient(time.Duration(cfg.Ollama.Timeout) * time.Second)
		}
	}

	// Apply environment variable overrides
	if envHost := getOllamaHostFromEnv(); envHost != "" {
		out.Host = envHost
	}
	if envModel := getOllamaModelFromEnv(); envModel != "" {
		out.Model = envModel
	}
	if envModel := os.Getenv("OLLAMA_EMBEDDING_MODEL"); envModel != "" {
		out.EmbeddingModel = envModel
	}

	// Set defaults if still empty
	if out.Host == "" {
		out.Host = llm.DefaultOllamaHost
	}

	return out
}

// NewOllamaExecutor creates a new Ollama chat executor from the configuration.
// Non-empty fields of key override the loaded values; key may be nil.
func NewOllamaExecutor(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, opts ...llmollama.Option) (*llmollama.Executor, error) {
	return llmollama.NewExecutor(applyOllamaKey(LoadOllamaConfig(cfg), key, false), logger, opts...)
}

// NewOllamaEmbeddings creates a new Ollama embeddings client from the configuration.
// A key model selects the embedding model.
func NewOllamaEmbeddings(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, opts ...llmollama.Option) (*llmollama.Embeddings, error) {
	return llmollama.NewEmbeddings(applyOllamaKey(LoadOllamaConfig(cfg), key, true), logger, opts...)
}

func applyOllamaKey(c llmollama.Config, key *llm.ClientKey, embeddings bool) llmollama.Config {
	if key == nil {
		return c
	}
	if key.Host != "" {
		c.Host = key.Host
	}
	if key.Model != "" {
		if embeddings {
			c.EmbeddingModel = key.Model
		} else {
			c.Model = key.Model
		}
	}
	return c
}

// getOllamaHostFromEnv gets the Ollama host from environment variable.
func getOllamaHostFromEnv() string {
	return os.Getenv("OLLAMA_HOST")
}

// getOllamaModelFromEnv gets the Ollama model from environment variable.
func getOllamaModelFromEnv() string {
	return os.Getenv("OLLAMA_MODEL")
}

// headerTimeoutClient bounds the wait for response headers only. Generation may
// stream for longer than timeout.
func headerTimeoutClient(timeout time.Duration) *http.Client {
	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Client{Transport: &http.Transport{ResponseHeaderTimeout: timeout}}
	}
	t := transport.Clone()
	t.ResponseHeaderTimeout = timeout
	return &http.Client{Transport: t}
}
