package ollama

import (
	"strings"

	"github.com/aschepis/backscratcher/llmchain/llm/tokens"
)

// contextSizes maps model families to their default context window.
// More specific families come first.
var contextSizes = []struct {
	family string
	size   int
}{
	{"llama3.1", 131072},
	{"llama3.2", 131072},
	{"llama3.3", 131072},
	{"llama3", 8192},
	{"llama2", 4096},
	{"codellama", 16384},
	{"mistral-nemo", 131072},
	{"mistral", 32768},
	{"mixtral", 32768},
	{"qwen2.5", 32768},
	{"qwen3", 40960},
	{"gemma3", 131072},
	{"gemma2", 8192},
	{"phi4", 16384},
	{"phi3", 131072},
	{"deepseek-r1", 131072},
	{"nomic-embed-text", 8192},
	{"mxbai-embed-large", 512},
	{"all-minilm", 512},
}

// ContextSize returns the context window of an Ollama model such as "llama3.2:3b".
// Unknown models report tokens.DefaultContextSize.
func ContextSize(model string) int {
	name := strings.ToLower(strings.TrimSpace(model))
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, ":"); i >= 0 {
		name = name[:i]
	}
	for _, c := range contextSizes {
		if strings.HasPrefix(name, c.family) {
			return c.size
		}
	}
	return tokens.DefaultContextSize
}
