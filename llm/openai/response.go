package openai

import (
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// FromChatCompletionResponse converts a non-streaming response into an immediate output.
// A finish reason other than "stop" is reported as an incomplete response.
// A missing finish reason is accepted.
func FromChatCompletionResponse(resp openai.ChatCompletionResponse) (*llm.Output, error) {
	if len(resp.Choices) == 0 {
		return nil, llm.NewEmptyResponseError("OpenAI response has no choices")
	}

	choice := resp.Choices[0]
	if reason := string(choice.FinishReason); reason != "" && !strings.EqualFold(reason, string(openai.FinishReasonStop)) {
		return nil, llm.NewIncompleteError(reason)
	}
	if choice.Message.Content == "" {
		return nil, llm.NewEmptyResponseError("OpenAI response has no content")
	}

	return llm.NewImmediateOutput(llm.NewChatMessage(
		FromOpenAIRole(choice.Message.Role),
		choice.Message.Content,
	)), nil
}
