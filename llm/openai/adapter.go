package openai

import (
	"fmt"

	"github.com/samber/lo"
	openai "github.com/sashabaranov/go-openai"

	"github.com/aschepis/backscratcher/llmchain/llm"
	"github.com/aschepis/backscratcher/llmchain/llm/tokens"
)

// ToOpenAIRole converts an llm.MessageRole to an OpenAI role.
// OpenAI has no custom roles, so other roles are sent as user messages.
func ToOpenAIRole(role llm.MessageRole) string {
	switch role {
	case llm.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	case llm.RoleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// FromOpenAIRole converts an OpenAI role back to an llm.MessageRole.
func FromOpenAIRole(role string) llm.MessageRole {
	switch role {
	case openai.ChatMessageRoleUser:
		return llm.RoleUser
	case openai.ChatMessageRoleAssistant:
		return llm.RoleAssistant
	case openai.ChatMessageRoleSystem:
		return llm.RoleSystem
	default:
		return llm.OtherRole(role)
	}
}

// ToOpenAIMessages converts a prompt to OpenAI chat message format.
func ToOpenAIMessages(prompt llm.Prompt) ([]openai.ChatCompletionMessage, error) {
	msgs := prompt.ToChat()
	result := make([]openai.ChatCompletionMessage, 0, len(msgs))
	for _, msg := range msgs {
		body, err := msg.Render()
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, openai.ChatCompletionMessage{
			Role:    ToOpenAIRole(msg.Role),
			Content: body,
		})
	}
	return result, nil
}

// NewChatCompletionRequest builds a chat completion request for model.
// Sampling parameters are taken from opts when set.
func NewChatCompletionRequest(prompt llm.Prompt, model string, opts llm.Cascade) (openai.ChatCompletionRequest, error) {
	msgs, err := ToOpenAIMessages(prompt)
	if err != nil {
		return openai.ChatCompletionRequest{}, err
	}

	req := openai.ChatCompletionRequest{
		Model:     model,
		Messages:  msgs,
		N:         1,
		Stream:    opts.IsStreaming(),
		MaxTokens: opts.MaxTokens(),
		User:      opts.User(),
	}
	if t := opts.Temperature(); t != nil {
		req.Temperature = float32(*t)
	}
	if p := opts.TopP(); p != nil {
		req.TopP = float32(*p)
	}
	return req, nil
}

// toTokenMessages converts OpenAI messages to the form counted by the token calculator.
func toTokenMessages(msgs []openai.ChatCompletionMessage) []tokens.Message {
	return lo.Map(msgs, func(m openai.ChatCompletionMessage, _ int) tokens.Message {
		return tokens.Message{Role: m.Role, Content: m.Content, Name: m.Name}
	})
}
