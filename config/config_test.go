package config

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmchain/llm"
	llmanthropic "github.com/aschepis/backscratcher/llmchain/llm/anthropic"
	llmollama "github.com/aschepis/backscratcher/llmchain/llm/ollama"
	llmopenai "github.com/aschepis/backscratcher/llmchain/llm/openai"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
)

func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_EMBEDDING_MODEL", "OPENAI_ORG_ID",
		"OLLAMA_HOST", "OLLAMA_MODEL", "OLLAMA_EMBEDDING_MODEL",
		"ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
	} {
		t.Setenv(name, "")
	}
}

func TestGetConfigPath(t *testing.T) {
	t.Setenv("LLMCHAIN_CONFIG_PATH", "/tmp/llmchain-test.yaml")
	if got := GetConfigPath(); got != "/tmp/llmchain-test.yaml" {
		t.Errorf("Expected env override, got %q", got)
	}

	t.Setenv("LLMCHAIN_CONFIG_PATH", "")
	if got := GetConfigPath(); filepath.Base(got) != "config.yaml" || filepath.Base(filepath.Dir(got)) != ".llmchain" {
		t.Errorf("Unexpected default path %q", got)
	}
}

func TestLoadConfig_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *cfg)
}

func TestLoadConfig_MergesOntoDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm_providers: [ollama]
openai:
  api_key: sk-file
  model: gpt-4o
ollama:
  model: llama3.2:3b
  embedding_model: nomic-embed-text
retry:
  transport_backoff_ms: 250
`), 0o600))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"ollama"}, cfg.LLMProviders)
	assert.Equal(t, "sk-file", cfg.OpenAI.APIKey)
	assert.Equal(t, "gpt-4o", cfg.OpenAI.Model)
	assert.Equal(t, llm.DefaultOpenAIEmbeddingModel, cfg.OpenAI.EmbeddingModel, "unset fields keep defaults")
	assert.Equal(t, llm.DefaultOllamaHost, cfg.Ollama.Host)
	assert.Equal(t, "nomic-embed-text", cfg.Ollama.EmbeddingModel)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.TransportBackoff())
	assert.Equal(t, time.Second, cfg.Retry.RateLimitBackoff())
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openai: [not, a, map"), 0o600))
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("Expected parse error")
	}
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := Defaults()
	cfg.Anthropic.APIKey = "sk-ant"
	cfg.LLMProviders = []string{"anthropic"}

	require.NoError(t, SaveConfig(&cfg, path))
	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, *loaded)
}

func TestLoadOpenAIConfig_EnvOverrides(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()
	cfg.OpenAI.APIKey = "sk-file"
	cfg.OpenAI.Organization = "org-file"

	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("OPENAI_MODEL", "gpt-4")

	got := LoadOpenAIConfig(&cfg)
	assert.Equal(t, "sk-env", got.APIKey)
	assert.Equal(t, "gpt-4", got.Model)
	assert.Equal(t, "org-file", got.Organization)
	assert.Equal(t, time.Second, got.TransportBackoff)

	nilCfg := LoadOpenAIConfig(nil)
	assert.Equal(t, "sk-env", nilCfg.APIKey)
	assert.Empty(t, nilCfg.BaseURL)
}

func TestLoadOllamaConfig(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()
	cfg.Ollama.Model = "llama3"

	got := LoadOllamaConfig(&cfg)
	assert.Equal(t, llm.DefaultOllamaHost, got.Host)
	assert.Equal(t, "llama3", got.Model)
	require.NotNil(t, got.HTTPClient)
	assert.Zero(t, got.HTTPClient.Timeout, "the timeout must not cover streamed bodies")
	transport, ok := got.HTTPClient.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Equal(t, 60*time.Second, transport.ResponseHeaderTimeout)

	t.Setenv("OLLAMA_HOST", "gpu-box:11434")
	t.Setenv("OLLAMA_MODEL", "qwen3")
	got = LoadOllamaConfig(&cfg)
	assert.Equal(t, "gpu-box:11434", got.Host)
	assert.Equal(t, "qwen3", got.Model)

	t.Setenv("OLLAMA_HOST", "")
	assert.Equal(t, llm.DefaultOllamaHost, LoadOllamaConfig(nil).Host)
}

func TestLoadAnthropicConfig(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()
	cfg.Anthropic.APIKey = "sk-file"

	got := LoadAnthropicConfig(&cfg)
	assert.Equal(t, "sk-file", got.APIKey)
	assert.Equal(t, llm.DefaultAnthropicModel, got.Model)
	assert.EqualValues(t, 1024, got.MaxTokens)

	t.Setenv("ANTHROPIC_API_KEY", "sk-env")
	assert.Equal(t, "sk-env", LoadAnthropicConfig(&cfg).APIKey)
}

func TestRegistry_ResolvesFromConfig(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()
	cfg.LLMProviders = []string{llm.ProviderOpenAI, llm.ProviderOllama}
	cfg.Ollama.Model = "llama3"
	cfg.Ollama.EmbeddingModel = "nomic-embed-text"

	// OpenAI is enabled but has no key, so the fallback lands on Ollama.
	key, err := cfg.Registry().Resolve(nil)
	require.NoError(t, err)
	assert.Equal(t, llm.ProviderOllama, key.Provider)
	assert.Equal(t, "llama3", key.Model)

	key, err = cfg.Registry().ResolveEmbeddings(llm.ProviderOllama, "")
	require.NoError(t, err)
	assert.Equal(t, "nomic-embed-text", key.Model)
}

func TestNewExecutor_FromClientKey(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()
	metrics, err := retry.NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	exec, err := NewExecutor(&cfg, &llm.ClientKey{Provider: llm.ProviderOpenAI, APIKey: "sk", Model: "gpt-4"}, zerolog.Nop(), metrics)
	require.NoError(t, err)
	assert.IsType(t, &llmopenai.Executor{}, exec)
	assert.Equal(t, 8192, exec.MaxTokensAllowed(nil))

	exec, err = NewExecutor(&cfg, &llm.ClientKey{Provider: llm.ProviderOllama, Host: "localhost:11434", Model: "llama3"}, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.IsType(t, &llmollama.Executor{}, exec)
	assert.Equal(t, 8192, exec.MaxTokensAllowed(nil))

	exec, err = NewExecutor(&cfg, &llm.ClientKey{Provider: llm.ProviderAnthropic, APIKey: "sk-ant"}, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.IsType(t, &llmanthropic.Executor{}, exec)

	_, err = NewExecutor(&cfg, &llm.ClientKey{Provider: "bard"}, zerolog.Nop(), nil)
	assert.Error(t, err)
	_, err = NewExecutor(&cfg, nil, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestNewEmbeddings_FromClientKey(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()

	emb, err := NewEmbeddings(&cfg, &llm.ClientKey{Provider: llm.ProviderOpenAI, APIKey: "sk"}, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.IsType(t, &llmopenai.Embeddings{}, emb)

	_, err = NewEmbeddings(&cfg, &llm.ClientKey{Provider: llm.ProviderOllama}, zerolog.Nop(), nil)
	assert.Error(t, err, "ollama embeddings need a model")

	emb, err = NewEmbeddings(&cfg, &llm.ClientKey{Provider: llm.ProviderOllama, Model: "nomic-embed-text"}, zerolog.Nop(), nil)
	require.NoError(t, err)
	assert.IsType(t, &llmollama.Embeddings{}, emb)

	_, err = NewEmbeddings(&cfg, &llm.ClientKey{Provider: llm.ProviderAnthropic, APIKey: "sk"}, zerolog.Nop(), nil)
	assert.Error(t, err)
}

func TestOllamaTimeout_DoesNotCutLongStreams(t *testing.T) {
	clearProviderEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/x-ndjson")
		enc := json.NewEncoder(w)
		flusher, _ := w.(http.Flusher)
		for i, content := range []string{"a", "b", "c", "d"} {
			_ = enc.Encode(map[string]any{
				"model":   "llama3",
				"message": map[string]string{"role": "assistant", "content": content},
				"done":    i == 3,
			})
			flusher.Flush()
			time.Sleep(500 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)

	cfg := Defaults()
	cfg.Ollama.Timeout = 1
	cfg.Ollama.Host = srv.URL
	cfg.Ollama.Model = "llama3"

	exec, err := NewOllamaExecutor(&cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	out, err := exec.Execute(t.Context(), &llm.Options{Stream: llm.Bool(true)}, llm.NewTextPrompt("Hi"))
	require.NoError(t, err)
	text, err := out.Text(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "abcd", text)
}

func TestVendorConstructors_KeyOverrides(t *testing.T) {
	clearProviderEnv(t)
	cfg := Defaults()
	cfg.OpenAI.APIKey = "sk-file"
	cfg.Ollama.Model = "llama2"

	openaiExec, err := NewOpenAIExecutor(&cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 16385, openaiExec.MaxTokensAllowed(nil), "config default model")

	openaiExec, err = NewOpenAIExecutor(&cfg, &llm.ClientKey{Model: "gpt-4"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 8192, openaiExec.MaxTokensAllowed(nil))

	ollamaExec, err := NewOllamaExecutor(&cfg, nil, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 4096, ollamaExec.MaxTokensAllowed(nil))

	ollamaExec, err = NewOllamaExecutor(&cfg, &llm.ClientKey{Model: "mistral"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 32768, ollamaExec.MaxTokensAllowed(nil))

	_, err = NewAnthropicExecutor(&cfg, nil, zerolog.Nop())
	assert.Error(t, err, "no anthropic key configured")
	anthropicExec, err := NewAnthropicExecutor(&cfg, &llm.ClientKey{APIKey: "sk-ant"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, 200000, anthropicExec.MaxTokensAllowed(nil))

	_, err = NewOllamaEmbeddings(&cfg, nil, zerolog.Nop())
	assert.Error(t, err, "no embedding model configured")
	_, err = NewOllamaEmbeddings(&cfg, &llm.ClientKey{Model: "nomic-embed-text"}, zerolog.Nop())
	assert.NoError(t, err)
	_, err = NewOpenAIEmbeddings(&cfg, nil, zerolog.Nop())
	assert.NoError(t, err)
}
