package tokens

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// wordEncoder emits one token per whitespace-separated word.
type wordEncoder struct{}

func (wordEncoder) Encode(text string) []int {
	words := strings.Fields(text)
	out := make([]int, len(words))
	for i, w := range words {
		out[i] = len(w)
	}
	return out
}

func (wordEncoder) Decode(tokens []int) string {
	parts := make([]string, len(tokens))
	for i, n := range tokens {
		parts[i] = strings.Repeat("x", n)
	}
	return strings.Join(parts, " ")
}

func newWordCalculator() (*Calculator, *int) {
	loads := 0
	return NewCalculator(func(string) (Encoder, error) {
		loads++
		return wordEncoder{}, nil
	}), &loads
}

func TestContextSize(t *testing.T) {
	tests := []struct {
		model string
		want  int
	}{
		{"gpt-4", 8192},
		{"gpt-4-0613", 8192},
		{"gpt-4-32k-0613", 32768},
		{"gpt-4-turbo-preview", 128000},
		{"gpt-4o-mini", 128000},
		{"gpt-3.5-turbo", 16385},
		{"gpt-3.5-turbo-16k", 16384},
		{"gpt-3.5-turbo-0301", 4096},
		{"GPT-4", 8192},
		{"text-embedding-3-small", 8191},
		{"llama3", DefaultContextSize},
		{"", DefaultContextSize},
		{"o1", 200000},
		{"o1-2024-12-17", 200000},
		{"o1-mini", 128000},
		{"o3", 200000},
		{"o3-mini", 200000},
		{"o4-mini", 200000},
		{"gpt-4.1-mini", 1047576},
		{"gpt-4o-2024-08-06", 128000},
		{"davinci-002", 16384},
		{"babbage-002", 16384},
		{"davinci", 2049},
		{"gpt-4omega", DefaultContextSize},
		{"o10", DefaultContextSize},
	}
	for _, tt := range tests {
		if got := ContextSize(tt.model); got != tt.want {
			t.Errorf("ContextSize(%q) = %d, want %d", tt.model, got, tt.want)
		}
	}
}

func TestEncodingName_Families(t *testing.T) {
	tests := map[string]string{
		"o1":               "o200k_base",
		"o3":               "o200k_base",
		"gpt-4o-mini":      "o200k_base",
		"gpt-4":            "cl100k_base",
		"davinci-002":      "cl100k_base",
		"text-davinci-003": "p50k_base",
		"davinci":          "r50k_base",
	}
	for model, want := range tests {
		got, ok := EncodingName(model)
		if !ok || got != want {
			t.Errorf("EncodingName(%q) = %q, %v, want %q", model, got, ok, want)
		}
	}
}

func TestCalculator_RemainingBudgetFixture(t *testing.T) {
	calc, _ := newWordCalculator()
	msgs := []Message{
		{Role: "system", Content: "You are helpful"},
		{Role: "user", Content: "hello there"},
	}

	// system: 3 + 1 + 3, user: 3 + 1 + 2, priming: 3
	full, err := calc.CountMessages("gpt-4", msgs)
	require.NoError(t, err)
	assert.Equal(t, 16, full)

	used, err := calc.TokensUsed("gpt-4", msgs)
	require.NoError(t, err)
	assert.Equal(t, 13, used)

	budget, err := calc.Budget("gpt-4", msgs)
	require.NoError(t, err)
	assert.Equal(t, 8192, budget.MaxTokens)
	assert.Equal(t, 8179, budget.TokensRemaining())
}

func TestCalculator_LegacyMessageOverhead(t *testing.T) {
	calc, _ := newWordCalculator()
	msgs := []Message{{Role: "user", Content: "hi", Name: "bob"}}

	current, err := calc.CountMessages("gpt-4", msgs)
	require.NoError(t, err)
	// 3 + role 1 + content 1 + name 1 + 1, priming 3
	assert.Equal(t, 10, current)

	legacy, err := calc.CountMessages("gpt-3.5-turbo-0301", msgs)
	require.NoError(t, err)
	// 4 + role 1 + content 1 + name 1 - 1, priming 3
	assert.Equal(t, 9, legacy)
}

func TestCalculator_EmptyPromptUsesNothing(t *testing.T) {
	calc, _ := newWordCalculator()
	used, err := calc.TokensUsed("gpt-3.5-turbo", nil)
	require.NoError(t, err)
	assert.Zero(t, used)
}

func TestCalculator_UnknownModel(t *testing.T) {
	calc, loads := newWordCalculator()

	_, err := calc.TokensUsed("llama3:8b", []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.True(t, llm.IsNotAvailableError(err))
	assert.Zero(t, *loads)

	_, err = calc.Tokenizer("claude-haiku-4-5")
	assert.True(t, llm.IsNotAvailableError(err))
}

func TestCalculator_CachesEncoders(t *testing.T) {
	calc, loads := newWordCalculator()
	for _, model := range []string{"gpt-4", "gpt-3.5-turbo", "gpt-4-32k"} {
		_, err := calc.CountMessages(model, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, *loads, "all three models share cl100k_base")

	_, err := calc.CountMessages("gpt-4o", nil)
	require.NoError(t, err)
	assert.Equal(t, 2, *loads)
}

func TestCalculator_LoadErrorIsNotCached(t *testing.T) {
	fail := true
	calc := NewCalculator(func(string) (Encoder, error) {
		if fail {
			return nil, errors.New("offline")
		}
		return wordEncoder{}, nil
	})

	_, err := calc.Encoder("gpt-4")
	require.Error(t, err)

	fail = false
	_, err = calc.Encoder("gpt-4")
	assert.NoError(t, err)
}

func TestTokenizer(t *testing.T) {
	calc, _ := newWordCalculator()
	tok, err := calc.Tokenizer("gpt-4")
	require.NoError(t, err)

	ids, err := tok.Tokenize("ab cde")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, ids)

	text, err := tok.ToString(ids)
	require.NoError(t, err)
	assert.Equal(t, "xx xxx", text)
}
