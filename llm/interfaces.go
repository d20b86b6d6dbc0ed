package llm

import (
	"context"
)

// Executor runs prompts against a chat completion provider.
// Implementations are safe for concurrent use once constructed.
type Executor interface {
	// Execute translates the prompt into a provider request, invokes the provider
	// (retrying transient failures) and returns the normalized output.
	// Streaming output is returned when the options request it.
	Execute(ctx context.Context, opts *Options, prompt Prompt) (*Output, error)

	// TokensUsed reports how many tokens the prompt consumes for the resolved model.
	// It performs no network I/O.
	TokensUsed(opts *Options, prompt Prompt) (TokenCount, error)

	// MaxTokensAllowed returns the context window of the resolved model.
	MaxTokensAllowed(opts *Options) int

	// Tokenizer returns a tokenizer for the resolved model.
	Tokenizer(opts *Options) (Tokenizer, error)

	// AnswerPrefix returns text the provider expects before an answer, if any.
	AnswerPrefix(prompt Prompt) string
}

// Embeddings turns text into embedding vectors.
type Embeddings interface {
	// EmbedTexts embeds each text. Entries the provider returns no vector for are skipped.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single query. An empty provider result yields an empty vector.
	EmbedQuery(ctx context.Context, query string) ([]float32, error)
}

// Tokenizer converts between text and model tokens.
type Tokenizer interface {
	// Tokenize encodes text into tokens.
	Tokenize(text string) ([]int, error)

	// ToString decodes tokens back into text.
	ToString(tokens []int) (string, error)
}
