package tokens

import (
	"strings"
)

// DefaultContextSize is used for models missing from the context table.
const DefaultContextSize = 4096

// modelInfo describes one model family. A model id belongs to a family when it
// equals the family name or extends it with a "-" suffix such as a date or size.
type modelInfo struct {
	family      string
	encoding    string
	contextSize int
}

// models lists more specific families before the families they extend.
var models = []modelInfo{
	{family: "o1-mini", encoding: "o200k_base", contextSize: 128000},
	{family: "o1-preview", encoding: "o200k_base", contextSize: 128000},
	{family: "o1", encoding: "o200k_base", contextSize: 200000},
	{family: "o3", encoding: "o200k_base", contextSize: 200000},
	{family: "o4-mini", encoding: "o200k_base", contextSize: 200000},
	{family: "gpt-5", encoding: "o200k_base", contextSize: 400000},
	{family: "gpt-4.1", encoding: "o200k_base", contextSize: 1047576},
	{family: "gpt-4o", encoding: "o200k_base", contextSize: 128000},
	{family: "chatgpt-4o-latest", encoding: "o200k_base", contextSize: 128000},
	{family: "gpt-4-turbo", encoding: "cl100k_base", contextSize: 128000},
	{family: "gpt-4-0125-preview", encoding: "cl100k_base", contextSize: 128000},
	{family: "gpt-4-1106-preview", encoding: "cl100k_base", contextSize: 128000},
	{family: "gpt-4-32k", encoding: "cl100k_base", contextSize: 32768},
	{family: "gpt-4", encoding: "cl100k_base", contextSize: 8192},
	{family: "gpt-3.5-turbo-0301", encoding: "cl100k_base", contextSize: 4096},
	{family: "gpt-3.5-turbo-0613", encoding: "cl100k_base", contextSize: 4096},
	{family: "gpt-3.5-turbo-16k", encoding: "cl100k_base", contextSize: 16384},
	{family: "gpt-3.5-turbo-instruct", encoding: "cl100k_base", contextSize: 4096},
	{family: "gpt-3.5-turbo", encoding: "cl100k_base", contextSize: 16385},
	{family: "gpt-35-turbo", encoding: "cl100k_base", contextSize: 16385},
	{family: "text-embedding-ada-002", encoding: "cl100k_base", contextSize: 8192},
	{family: "text-embedding-3-small", encoding: "cl100k_base", contextSize: 8191},
	{family: "text-embedding-3-large", encoding: "cl100k_base", contextSize: 8191},
	{family: "davinci-002", encoding: "cl100k_base", contextSize: 16384},
	{family: "babbage-002", encoding: "cl100k_base", contextSize: 16384},
	{family: "text-davinci-003", encoding: "p50k_base", contextSize: 4097},
	{family: "text-davinci-002", encoding: "p50k_base", contextSize: 4097},
	{family: "code-davinci-002", encoding: "p50k_base", contextSize: 8001},
	{family: "code-cushman-001", encoding: "p50k_base", contextSize: 2048},
	{family: "text-curie-001", encoding: "r50k_base", contextSize: 2049},
	{family: "text-babbage-001", encoding: "r50k_base", contextSize: 2049},
	{family: "text-ada-001", encoding: "r50k_base", contextSize: 2049},
	{family: "davinci", encoding: "r50k_base", contextSize: 2049},
	{family: "curie", encoding: "r50k_base", contextSize: 2049},
	{family: "babbage", encoding: "r50k_base", contextSize: 2049},
	{family: "ada", encoding: "r50k_base", contextSize: 2049},
}

func lookup(model string) (modelInfo, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	for _, m := range models {
		if model == m.family || strings.HasPrefix(model, m.family+"-") {
			return m, true
		}
	}
	return modelInfo{}, false
}

// ContextSize returns the context window of model, or DefaultContextSize when unknown.
// The value is a static property of the model id.
func ContextSize(model string) int {
	if m, ok := lookup(model); ok {
		return m.contextSize
	}
	return DefaultContextSize
}

// EncodingName returns the tiktoken encoding used by model.
func EncodingName(model string) (string, bool) {
	m, ok := lookup(model)
	if !ok {
		return "", false
	}
	return m.encoding, true
}
