package llm

import (
	"fmt"
	"os"
	"sync"
)

const (
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
)

const (
	DefaultOpenAIModel          = "gpt-3.5-turbo"
	DefaultOpenAIEmbeddingModel = "text-embedding-ada-002"
	DefaultAnthropicModel       = "claude-haiku-4-5"
	DefaultOllamaHost           = "http://localhost:11434"
)

// Preference represents a single provider/model preference.
type Preference struct {
	Provider string
	Model    string
}

// ClientKey uniquely identifies a provider client configuration.
type ClientKey struct {
	Provider     string
	Model        string
	APIKey       string // For credential-based providers
	Host         string // For Ollama
	BaseURL      string // For OpenAI
	Organization string // For OpenAI
}

// ProviderConfig holds the configuration needed for provider registry.
// This avoids import cycles by not importing the config package.
type ProviderConfig struct {
	AnthropicAPIKey      string
	AnthropicModel       string
	OllamaHost           string
	OllamaModel          string
	OllamaEmbeddingModel string
	OpenAIAPIKey         string
	OpenAIBaseURL        string
	OpenAIModel          string
	OpenAIEmbeddingModel string
	OpenAIOrg            string
}

// ProviderRegistry manages provider selection and configuration resolution.
// Client creation is handled by the caller to avoid import cycles.
type ProviderRegistry struct {
	enabled []string
	mu      sync.RWMutex
	config  *ProviderConfig
}

// NewProviderRegistry creates a new ProviderRegistry with the given config and enabled providers.
// The order of enabledProviders is the fallback order when no preference matches.
func NewProviderRegistry(providerConfig *ProviderConfig, enabledProviders []string) *ProviderRegistry {
	if providerConfig == nil {
		providerConfig = &ProviderConfig{}
	}
	enabled := make([]string, 0, len(enabledProviders))
	seen := make(map[string]bool)
	for _, p := range enabledProviders {
		if !seen[p] {
			seen[p] = true
			enabled = append(enabled, p)
		}
	}
	return &ProviderRegistry{
		enabled: enabled,
		config:  providerConfig,
	}
}

// IsProviderEnabled checks if a provider is in the enabled providers list.
func (r *ProviderRegistry) IsProviderEnabled(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isEnabledUnlocked(provider)
}

// IsProviderConfigured checks if a provider has the required configuration (API keys, hosts, etc.).
func (r *ProviderRegistry) IsProviderConfigured(provider string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.isProviderConfiguredUnlocked(provider)
}

// Resolve returns a ClientKey for the first available provider from the preference list.
// With no preferences, the first enabled and configured provider is used with its default model.
func (r *ProviderRegistry) Resolve(prefs []Preference) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(prefs) > 0 {
		var attempted []string
		for _, pref := range prefs {
			attempted = append(attempted, pref.Provider)
			if !r.isEnabledUnlocked(pref.Provider) || !r.isProviderConfiguredUnlocked(pref.Provider) {
				continue
			}
			key, err := r.resolveProviderConfig(pref.Provider, pref.Model, false)
			if err != nil {
				continue
			}
			return key, nil
		}
		return nil, fmt.Errorf("no available provider from preferences %v (enabled: %v)", attempted, r.enabled)
	}

	if len(r.enabled) == 0 {
		return nil, fmt.Errorf("no providers enabled")
	}

	for _, p := range r.enabled {
		if !r.isProviderConfiguredUnlocked(p) {
			continue
		}
		key, err := r.resolveProviderConfig(p, "", false)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config for provider %s: %w", p, err)
		}
		return key, nil
	}
	return nil, fmt.Errorf("none of the enabled providers %v is configured", r.enabled)
}

// ResolveEmbeddings returns a ClientKey for an embeddings provider.
// Only OpenAI and Ollama offer embeddings.
func (r *ProviderRegistry) ResolveEmbeddings(provider, model string) (*ClientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch provider {
	case ProviderOpenAI, ProviderOllama:
	default:
		return nil, fmt.Errorf("provider %s does not offer embeddings", provider)
	}
	if !r.isEnabledUnlocked(provider) {
		return nil, fmt.Errorf("provider %s is not enabled", provider)
	}
	if !r.isProviderConfiguredUnlocked(provider) {
		return nil, fmt.Errorf("provider %s is not configured", provider)
	}
	return r.resolveProviderConfig(provider, model, true)
}

func (r *ProviderRegistry) isEnabledUnlocked(provider string) bool {
	for _, p := range r.enabled {
		if p == provider {
			return true
		}
	}
	return false
}

// isProviderConfiguredUnlocked is the unlocked version of IsProviderConfigured.
// Must be called with r.mu already locked.
func (r *ProviderRegistry) isProviderConfiguredUnlocked(provider string) bool {
	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		return apiKey != ""
	case ProviderOllama:
		// Ollama doesn't require API key, just needs host (which has a default)
		return true
	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		return apiKey != ""
	default:
		return false
	}
}

// resolveProviderConfig resolves provider-specific configuration and returns a ClientKey.
func (r *ProviderRegistry) resolveProviderConfig(provider, modelOverride string, embeddings bool) (*ClientKey, error) {
	key := &ClientKey{
		Provider: provider,
		Model:    modelOverride,
	}

	switch provider {
	case ProviderAnthropic:
		apiKey := r.config.AnthropicAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("anthropic API key not configured")
		}
		key.APIKey = apiKey
		if key.Model == "" {
			key.Model = r.config.AnthropicModel
		}
		if key.Model == "" {
			key.Model = DefaultAnthropicModel
		}

	case ProviderOllama:
		host := r.config.OllamaHost
		if host == "" {
			host = os.Getenv("OLLAMA_HOST")
		}
		if host == "" {
			host = DefaultOllamaHost
		}
		key.Host = host

		defaultModel := r.config.OllamaModel
		if embeddings {
			defaultModel = r.config.OllamaEmbeddingModel
		}
		if defaultModel == "" && !embeddings {
			defaultModel = os.Getenv("OLLAMA_MODEL")
		}
		if key.Model == "" {
			key.Model = defaultModel
		}
		if key.Model == "" {
			return nil, fmt.Errorf("ollama model not specified and no default configured")
		}

	case ProviderOpenAI:
		apiKey := r.config.OpenAIAPIKey
		if apiKey == "" {
			apiKey = os.Getenv("OPENAI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("openai API key not configured")
		}
		key.APIKey = apiKey

		baseURL := r.config.OpenAIBaseURL
		if baseURL == "" {
			baseURL = os.Getenv("OPENAI_BASE_URL")
		}
		key.BaseURL = baseURL

		org := r.config.OpenAIOrg
		if org == "" {
			org = os.Getenv("OPENAI_ORG_ID")
		}
		key.Organization = org

		if key.Model == "" {
			if embeddings {
				key.Model = r.config.OpenAIEmbeddingModel
				if key.Model == "" {
					key.Model = DefaultOpenAIEmbeddingModel
				}
			} else {
				key.Model = r.config.OpenAIModel
				if key.Model == "" {
					key.Model = DefaultOpenAIModel
				}
			}
		}

	default:
		return nil, fmt.Errorf("unknown provider: %s", provider)
	}

	return key, nil
}
