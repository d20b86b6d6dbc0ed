package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmchain/config"
	"github.com/aschepis/backscratcher/llmchain/llm"
)

// newOpenAIConfig points the openai section at a test server and enables only openai.
func newOpenAIConfig(t *testing.T, handler http.HandlerFunc) *config.Config {
	t.Helper()
	for _, name := range []string{
		"OPENAI_API_KEY", "OPENAI_BASE_URL", "OPENAI_MODEL", "OPENAI_EMBEDDING_MODEL", "OPENAI_ORG_ID",
		"OLLAMA_HOST", "OLLAMA_MODEL", "ANTHROPIC_API_KEY", "ANTHROPIC_MODEL",
	} {
		t.Setenv(name, "")
	}
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.Defaults()
	cfg.LLMProviders = []string{llm.ProviderOpenAI, llm.ProviderOllama}
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = srv.URL + "/v1"
	return &cfg
}

func TestRun_Completion(t *testing.T) {
	var body map[string]any
	cfg := newOpenAIConfig(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": "Paris"},
				"finish_reason": "stop",
			}},
		})
	})

	var out bytes.Buffer
	err := run(t.Context(), cfg, request{Prompt: "Capital of France?", System: "Answer in one word.", Model: "gpt-4"}, zerolog.Nop(), &out)
	require.NoError(t, err)
	assert.Equal(t, "Paris\n", out.String())
	assert.Equal(t, "gpt-4", body["model"])

	msgs, ok := body["messages"].([]any)
	require.True(t, ok)
	assert.Len(t, msgs, 2)
}

func TestRun_Stream(t *testing.T) {
	cfg := newOpenAIConfig(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		for _, data := range []string{
			`{"choices":[{"index":0,"delta":{"role":"assistant"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"Hel"}}]}`,
			`{"choices":[{"index":0,"delta":{"content":"lo"},"finish_reason":"stop"}]}`,
			`[DONE]`,
		} {
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
	})

	var out bytes.Buffer
	err := run(t.Context(), cfg, request{Provider: llm.ProviderOpenAI, Prompt: "Hi", Stream: true}, zerolog.Nop(), &out)
	require.NoError(t, err)
	assert.Equal(t, "Hello\n", out.String())
}

func TestRun_Embed(t *testing.T) {
	cfg := newOpenAIConfig(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"object": "list",
			"data":   []map[string]any{{"object": "embedding", "index": 0, "embedding": []float32{0.5, -1}}},
		})
	})

	var out bytes.Buffer
	err := run(t.Context(), cfg, request{Prompt: "hello", Embed: true}, zerolog.Nop(), &out)
	require.NoError(t, err)
	assert.Equal(t, "[0.5,-1]\n", out.String())
}

func TestRun_TokensForUnknownModel(t *testing.T) {
	cfg := newOpenAIConfig(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("token accounting must not call the provider")
	})

	var out bytes.Buffer
	err := run(t.Context(), cfg, request{Provider: llm.ProviderOllama, Model: "mystery-model", Prompt: "Hi", Tokens: true}, zerolog.Nop(), &out)
	assert.True(t, llm.IsNotAvailableError(err), "got %v", err)
	assert.Empty(t, out.String())
}

func TestRun_Validation(t *testing.T) {
	cfg := newOpenAIConfig(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("invalid requests must not call the provider")
	})

	var out bytes.Buffer
	assert.Error(t, run(t.Context(), cfg, request{Prompt: "  "}, zerolog.Nop(), &out))
	assert.Error(t, run(t.Context(), cfg, request{Prompt: "Hi", Embed: true, Stream: true}, zerolog.Nop(), &out))
	assert.Error(t, run(t.Context(), cfg, request{Prompt: "Hi", Provider: llm.ProviderAnthropic}, zerolog.Nop(), &out),
		"anthropic is not enabled")
}
