package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// AnthropicConfig represents configuration for Anthropic LLM provider.
type AnthropicConfig struct {
	APIKey    string `yaml:"api_key,omitempty"`    // Anthropic API key
	Model     string `yaml:"model,omitempty"`      // Default model name
	MaxTokens int64  `yaml:"max_tokens,omitempty"` // Completion limit when a call sets none
}

// OllamaConfig represents configuration for Ollama LLM provider.
type OllamaConfig struct {
	Host           string `yaml:"host,omitempty"`            // Ollama host (default: "http://localhost:11434")
	Model          string `yaml:"model,omitempty"`           // Default chat model name
	EmbeddingModel string `yaml:"embedding_model,omitempty"` // Default embedding model name
	Timeout        int    `yaml:"timeout,omitempty"`         // Seconds to wait for response headers
}

// OpenAIConfig represents configuration for OpenAI LLM provider.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key,omitempty"`         // OpenAI API key
	BaseURL        string `yaml:"base_url,omitempty"`        // Custom base URL (default: official API)
	Model          string `yaml:"model,omitempty"`           // Default chat model name
	EmbeddingModel string `yaml:"embedding_model,omitempty"` // Default embedding model name
	Organization   string `yaml:"organization,omitempty"`    // Organization ID
}

// RetryConfig holds the fixed waits used by the retry policies.
type RetryConfig struct {
	TransportBackoffMS int `yaml:"transport_backoff_ms,omitempty"`  // Wait before retrying a failed provider call
	RateLimitBackoffMS int `yaml:"rate_limit_backoff_ms,omitempty"` // Wait between rate limited embedding calls
}

// TransportBackoff returns the transport wait, or zero to use the policy default.
func (r RetryConfig) TransportBackoff() time.Duration {
	return time.Duration(r.TransportBackoffMS) * time.Millisecond
}

// RateLimitBackoff returns the rate limit wait, or zero to use the policy default.
func (r RetryConfig) RateLimitBackoff() time.Duration {
	return time.Duration(r.RateLimitBackoffMS) * time.Millisecond
}

// Config is the llmchain configuration file.
type Config struct {
	// LLM provider configurations
	Anthropic AnthropicConfig `yaml:"anthropic,omitempty"`
	Ollama    OllamaConfig    `yaml:"ollama,omitempty"`
	OpenAI    OpenAIConfig    `yaml:"openai,omitempty"`

	Retry RetryConfig `yaml:"retry,omitempty"`

	// Enabled providers, in fallback order
	LLMProviders []string `yaml:"llm_providers,omitempty"`
	ChatTimeout  int      `yaml:"chat_timeout,omitempty"` // Seconds allowed for one command invocation
}

// Defaults returns the configuration used when no file overrides it.
func Defaults() Config {
	return Config{
		LLMProviders: []string{llm.ProviderOpenAI, llm.ProviderOllama, llm.ProviderAnthropic},
		Anthropic: AnthropicConfig{
			Model:     llm.DefaultAnthropicModel,
			MaxTokens: 1024,
		},
		Ollama: OllamaConfig{
			Host:    llm.DefaultOllamaHost,
			Timeout: 60,
		},
		OpenAI: OpenAIConfig{
			Model:          llm.DefaultOpenAIModel,
			EmbeddingModel: llm.DefaultOpenAIEmbeddingModel,
		},
		Retry: RetryConfig{
			TransportBackoffMS: 1000,
			RateLimitBackoffMS: 1000,
		},
		ChatTimeout: 120,
	}
}

// GetConfigPath returns the default config file path.
// Can be overridden via LLMCHAIN_CONFIG_PATH environment variable.
func GetConfigPath() string {
	if envPath := os.Getenv("LLMCHAIN_CONFIG_PATH"); envPath != "" {
		return expandPath(envPath)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "./.llmchain/config.yaml"
	}
	return filepath.Join(homeDir, ".llmchain", "config.yaml")
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(homeDir, path[2:])
	}
	return path
}

// SaveConfig saves the configuration to the specified path.
func SaveConfig(cfg *Config, path string) error {
	expandedPath := expandPath(path)

	// Ensure directory exists
	dir := filepath.Dir(expandedPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(expandedPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// LoadConfig loads the configuration file at path onto the defaults.
// Returns defaults if the file doesn't exist.
func LoadConfig(path string) (*Config, error) {
	defaults := Defaults()

	expandedPath := expandPath(path)
	if _, err := os.Stat(expandedPath); err != nil {
		// File doesn't exist, return defaults
		return &defaults, nil
	}

	configYAML, err := os.ReadFile(expandedPath) //#nosec 304 -- intentional file read for config
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %q: %w", expandedPath, err)
	}

	return parseConfig(defaults, configYAML)
}

func parseConfig(defaults Config, configYAML []byte) (*Config, error) {
	var config Config
	if err := yaml.Unmarshal(configYAML, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	// Merge loaded config onto defaults
	if err := mergo.Merge(&defaults, config, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge config: %w", err)
	}

	return &defaults, nil
}

// ProviderConfig returns the registry view of cfg with environment overrides applied.
func (c *Config) ProviderConfig() *llm.ProviderConfig {
	openaiCfg := LoadOpenAIConfig(c)
	ollamaCfg := LoadOllamaConfig(c)
	anthropicCfg := LoadAnthropicConfig(c)
	return &llm.ProviderConfig{
		AnthropicAPIKey:      anthropicCfg.APIKey,
		AnthropicModel:       anthropicCfg.Model,
		OllamaHost:           ollamaCfg.Host,
		OllamaModel:          ollamaCfg.Model,
		OllamaEmbeddingModel: ollamaCfg.EmbeddingModel,
		OpenAIAPIKey:         openaiCfg.APIKey,
		OpenAIBaseURL:        openaiCfg.BaseURL,
		OpenAIModel:          openaiCfg.Model,
		OpenAIEmbeddingModel: openaiCfg.EmbeddingModel,
		OpenAIOrg:            openaiCfg.Organization,
	}
}

// Registry builds a provider registry over the enabled providers of cfg.
func (c *Config) Registry() *llm.ProviderRegistry {
	return llm.NewProviderRegistry(c.ProviderConfig(), c.LLMProviders)
}
