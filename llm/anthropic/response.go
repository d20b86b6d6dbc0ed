package anthropic

import (
	anthropic "github.com/anthropics/anthropic-sdk-go"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// finishReason maps an Anthropic stop reason to the common vocabulary:
// "stop" for a clean finish and "length" for a token limit.
func finishReason(reason anthropic.StopReason) string {
	switch reason {
	case anthropic.StopReasonEndTurn, anthropic.StopReasonStopSequence, "":
		return "stop"
	case anthropic.StopReasonMaxTokens:
		return "length"
	default:
		return string(reason)
	}
}

// FromMessage converts a non-streaming message into an immediate output.
func FromMessage(msg *anthropic.Message) (*llm.Output, error) {
	if msg == nil {
		return nil, llm.NewEmptyResponseError("Anthropic response has no content")
	}
	if reason := finishReason(msg.StopReason); reason != "stop" {
		return nil, llm.NewIncompleteError(reason)
	}
	if len(msg.Content) == 0 {
		return nil, llm.NewEmptyResponseError("Anthropic response has no content")
	}
	text := textOf(msg)
	if text == "" {
		return nil, llm.NewEmptyResponseError("Anthropic response has no text content")
	}
	return llm.NewImmediateOutput(llm.NewChatMessage(FromAnthropicRole(string(msg.Role)), text)), nil
}
