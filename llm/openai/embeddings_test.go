package openai

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/retry"
	"github.com/aschepis/backscratcher/llmchain/llm/retry/retrytest"
)

func newTestEmbeddings(t *testing.T, handler http.HandlerFunc) (*Embeddings, *retrytest.Clock) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	clock := &retrytest.Clock{}
	policy := retry.RateLimitPolicy(retry.DefaultRateLimitBackoff, isRateLimited)
	policy.NewTimer = clock.NewTimer

	emb, err := NewEmbeddings(
		Config{APIKey: "test", BaseURL: srv.URL + "/v1", HTTPClient: srv.Client()},
		zerolog.Nop(),
		WithRateLimitPolicy(policy),
	)
	require.NoError(t, err)
	return emb, clock
}

func writeEmbeddings(w http.ResponseWriter, vectors map[int][]float32) {
	data := make([]map[string]any, 0, len(vectors))
	for idx, v := range vectors {
		data = append(data, map[string]any{"object": "embedding", "index": idx, "embedding": v})
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "text-embedding-ada-002"})
}

func TestEmbedTexts_OrderedByIndex(t *testing.T) {
	var body map[string]any
	emb, _ := newTestEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&body)
		writeEmbeddings(w, map[int][]float32{1: {0.2}, 0: {0.1}, 2: {0.3}})
	})

	vectors, err := emb.EmbedTexts(t.Context(), []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}, {0.2}, {0.3}}, vectors)
	assert.Equal(t, "text-embedding-ada-002", body["model"])
	assert.Equal(t, []any{"a", "b", "c"}, body["input"])
}

func TestEmbedTexts_SkipsEmptyVectors(t *testing.T) {
	emb, _ := newTestEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, map[int][]float32{0: {0.1}, 1: {}})
	})

	vectors, err := emb.EmbedTexts(t.Context(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{0.1}}, vectors)
}

func TestEmbedQuery_EmptyResultIsEmptyVector(t *testing.T) {
	emb, _ := newTestEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		writeEmbeddings(w, nil)
	})

	vector, err := emb.EmbedQuery(t.Context(), "hello")
	require.NoError(t, err)
	assert.NotNil(t, vector)
	assert.Empty(t, vector)
}

func TestEmbedQuery_RateLimitRetriedUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	emb, clock := newTestEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 3 {
			writeAPIError(w, http.StatusTooManyRequests, "rate_limit_exceeded", "Rate limit reached for requests")
			return
		}
		writeEmbeddings(w, map[int][]float32{0: {1, 2, 3}})
	})

	vector, err := emb.EmbedQuery(t.Context(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3}, vector)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{time.Second, time.Second, time.Second}, clock.Waits())
}

func TestEmbedQuery_QuotaExhaustedIsFatal(t *testing.T) {
	var calls atomic.Int32
	emb, clock := newTestEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusTooManyRequests, codeInsufficientQuota, "You exceeded your current quota")
	})

	_, err := emb.EmbedQuery(t.Context(), "hello")
	require.Error(t, err)
	assert.True(t, llm.IsRateLimitError(err))
	assert.Equal(t, int32(1), calls.Load())
	assert.Empty(t, clock.Waits())
}

func TestEmbedTexts_OtherErrorsAreFatal(t *testing.T) {
	var calls atomic.Int32
	emb, _ := newTestEmbeddings(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusInternalServerError, "", "boom")
	})

	_, err := emb.EmbedTexts(t.Context(), []string{"a"})
	assert.True(t, llm.IsTransportError(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, isRateLimited(llm.NewRateLimitError("slow down", 429, "rate_limit_exceeded", nil)))
	assert.False(t, isRateLimited(llm.NewRateLimitError("quota", 429, codeInsufficientQuota, nil)))
	assert.True(t, isRateLimited(errors.New("Rate limit reached for default-model")))
	assert.False(t, isRateLimited(llm.NewTransportError("Rate limit reached", 500, nil)))
	assert.False(t, isRateLimited(errors.New("connection reset")))
}
