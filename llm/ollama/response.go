package ollama

import (
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

const doneReasonStop = "stop"

// FromChatResponse converts a non-streaming chat response into an immediate output.
// A done reason other than "stop" is reported as an incomplete response. Servers
// that send no done reason are trusted.
func FromChatResponse(resp api.ChatResponse) (*llm.Output, error) {
	if !resp.Done {
		return nil, llm.NewIncompleteError("in_progress")
	}
	if reason := resp.DoneReason; reason != "" && !strings.EqualFold(reason, doneReasonStop) {
		return nil, llm.NewIncompleteError(reason)
	}
	if resp.Message.Content == "" {
		return nil, llm.NewEmptyResponseError("Ollama response has no content")
	}
	return llm.NewImmediateOutput(llm.NewChatMessage(
		FromOllamaRole(resp.Message.Role),
		resp.Message.Content,
	)), nil
}
