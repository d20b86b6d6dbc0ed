package config

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/aschepis/backscratcher/llmchain/llm"
	llmopenai "github.com/aschepis/backscratcher/llmchain/llm/openai"
)

// LoadOpenAIConfig loads OpenAI configuration from cfg.
// Environment variables take precedence over file values.
func LoadOpenAIConfig(cfg *Config) llmopenai.Config {
	var out llmopenai.Config
	if cfg != nil {
		out = llmopenai.Config{
			APIKey:           cfg.OpenAI.APIKey,
			BaseURL:          cfg.OpenAI.BaseURL,
			Organization:     cfg.OpenAI.Organization,
			Model:            cfg.OpenAI.Model,
			EmbeddingModel:   cfg.OpenAI.EmbeddingModel,
			TransportBackoff: cfg.Retry.TransportBackoff(),
			RateLimitBackoff: cfg.Retry.RateLimitBackoff(),
		}
	}

	// Apply environment variable overrides
	if envAPIKey := getOpenAIAPIKeyFromEnv(); envAPIKey != "" {
		out.APIKey = envAPIKey
	}
	if envBaseURL := getOpenAIBaseURLFromEnv(); envBaseURL != "" {
		out.BaseURL = envBaseURL
	}
	if envModel := getOpenAIModelFromEnv(); envModel != "" {
		out.Model = envModel
	}
	if envModel := os.Getenv("OPENAI_EMBEDDING_MODEL"); envModel != "" {
		out.EmbeddingModel = envModel
	}
	if envOrg := getOpenAIOrgFromEnv(); envOrg != "" {
		out.Organization = envOrg
	}

	return out
}

// NewOpenAIExecutor creates a new OpenAI chat executor from the configuration.
// Non-empty fields of key override the loaded values; key may be nil.
func NewOpenAIExecutor(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, opts ...llmopenai.Option) (*llmopenai.Executor, error) {
	return llmopenai.NewExecutor(applyOpenAIKey(LoadOpenAIConfig(cfg), key, false), logger, opts...)
}

// NewOpenAIEmbeddings creates a new OpenAI embeddings client from the configuration.
// A key model selects the embedding model.
func NewOpenAIEmbeddings(cfg *Config, key *llm.ClientKey, logger zerolog.Logger, opts ...llmopenai.Option) (*llmopenai.Embeddings, error) {
	return llmopenai.NewEmbeddings(applyOpenAIKey(LoadOpenAIConfig(cfg), key, true), logger, opts...)
}

func applyOpenAIKey(c llmopenai.Config, key *llm.ClientKey, embeddings bool) llmopenai.Config {
	if key == nil {
		return c
	}
	if key.APIKey != "" {
		c.APIKey = key.APIKey
	}
	if key.BaseURL != "" {
		c.BaseURL = key.BaseURL
	}
	if key.Organization != "" {
		c.Organization = key.Organization
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

// getOpenAIAPIKeyFromEnv gets the OpenAI API key from environment variable.
func getOpenAIAPIKeyFromEnv() string {
	return os.Getenv("OPENAI_API_KEY")
}

// getOpenAIBaseURLFromEnv gets the OpenAI base URL from environment variable.
func getOpenAIBaseURLFromEnv() string {
	return os.Getenv("OPENAI_BASE_URL")
}

// getOpenAIModelFromEnv gets the OpenAI model from environment variable.
func getOpenAIModelFromEnv() string {
	return os.Getenv("OPENAI_MODEL")
}

// getOpenAIOrgFromEnv gets the OpenAI organization ID from environment variable.
func getOpenAIOrgFromEnv() string {
	return os.Getenv("OPENAI_ORG_ID")
}
