package anthropic

import (
	"fmt"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/samber/lo"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// ToMessageParams converts a prompt to Anthropic message params. Anthropic has no
// system role in the message list, so system messages are returned separately,
// joined in prompt order. Other roles are sent as user messages.
func ToMessageParams(prompt llm.Prompt) ([]anthropic.MessageParam, string, error) {
	var system []string
	msgs := make([]anthropic.MessageParam, 0)
	for _, msg := range prompt.ToChat() {
		body, err := msg.Render()
		if err != nil {
			return nil, "", fmt.Errorf("failed to convert message: %w", err)
		}
		switch msg.Role {
		case llm.RoleSystem:
			system = append(system, body)
		case llm.RoleAssistant:
			msgs = append(msgs, anthropic.NewAssistantMessage(anthropic.NewTextBlock(body)))
		default:
			msgs = append(msgs, anthropic.NewUserMessage(anthropic.NewTextBlock(body)))
		}
	}
	return msgs, strings.Join(system, "\n"), nil
}

// FromAnthropicRole converts an Anthropic role to an llm.MessageRole.
func FromAnthropicRole(role string) llm.MessageRole {
	switch role {
	case string(anthropic.MessageParamRoleUser):
		return llm.RoleUser
	case string(anthropic.MessageParamRoleAssistant):
		return llm.RoleAssistant
	default:
		return llm.OtherRole(role)
	}
}

// NewMessageParams builds message params for model. maxTokens is used when opts
// set no limit, since Anthropic requires one.
func NewMessageParams(prompt llm.Prompt, model string, maxTokens int64, opts llm.Cascade) (anthropic.MessageNewParams, error) {
	msgs, system, err := ToMessageParams(prompt)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	if n := opts.MaxTokens(); n > 0 {
		maxTokens = int64(n)
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: maxTokens,
		Messages:  msgs,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if t := opts.Temperature(); t != nil {
		params.Temperature = anthropic.Float(*t)
	}
	if p := opts.TopP(); p != nil {
		params.TopP = anthropic.Float(*p)
	}
	return params, nil
}

// textOf concatenates the text blocks of a message.
func textOf(msg *anthropic.Message) string {
	texts := lo.FilterMap(msg.Content, func(block anthropic.ContentBlockUnion, _ int) (string, bool) {
		if text, ok := block.AsAny().(anthropic.TextBlock); ok {
			return text.Text, true
		}
		return "", false
	})
	return strings.Join(texts, "")
}
