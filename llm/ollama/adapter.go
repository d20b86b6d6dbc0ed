package ollama

import (
	"fmt"
	"strings"

	"github.com/ollama/ollama/api"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

const (
	roleUser      = "user"
	roleAssistant = "assistant"
	roleSystem    = "system"
)

// ToOllamaRole converts an llm.MessageRole to an Ollama role.
// Other roles are sent as user messages.
func ToOllamaRole(role llm.MessageRole) string {
	switch role {
	case llm.RoleAssistant:
		return roleAssistant
	case llm.RoleSystem:
		return roleSystem
	default:
		return roleUser
	}
}

// FromOllamaRole converts an Ollama role back to an llm.MessageRole.
func FromOllamaRole(role string) llm.MessageRole {
	switch strings.ToLower(role) {
	case roleUser:
		return llm.RoleUser
	case roleAssistant:
		return llm.RoleAssistant
	case roleSystem:
		return llm.RoleSystem
	default:
		return llm.OtherRole(role)
	}
}

// ToOllamaMessages converts a prompt to Ollama chat messages.
func ToOllamaMessages(prompt llm.Prompt) ([]api.Message, error) {
	msgs := prompt.ToChat()
	result := make([]api.Message, 0, len(msgs))
	for _, msg := range msgs {
		body, err := msg.Render()
		if err != nil {
			return nil, fmt.Errorf("failed to convert message: %w", err)
		}
		result = append(result, api.Message{
			Role:    ToOllamaRole(msg.Role),
			Content: body,
		})
	}
	return result, nil
}

// NewChatRequest builds a chat request for model. Sampling parameters from opts
// are passed as Ollama model options.
func NewChatRequest(prompt llm.Prompt, model string, opts llm.Cascade) (*api.ChatRequest, error) {
	msgs, err := ToOllamaMessages(prompt)
	if err != nil {
		return nil, err
	}

	stream := opts.IsStreaming()
	req := &api.ChatRequest{
		Model:    model,
		Messages: msgs,
		Stream:   &stream,
		Options:  make(map[string]interface{}),
	}
	if n := opts.MaxTokens(); n > 0 {
		req.Options["num_predict"] = n
	}
	if t := opts.Temperature(); t != nil {
		req.Options["temperature"] = *t
	}
	if p := opts.TopP(); p != nil {
		req.Options["top_p"] = *p
	}
	return req, nil
}
