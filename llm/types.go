package llm

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// MessageRole represents the role of a message in a conversation.
// Values other than the predefined constants are "other" roles (see OtherRole).
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// OtherRole returns a role that is not one of the predefined roles, such as "function" or "tool".
// Providers without a matching concept degrade it to their closest concrete role.
func OtherRole(name string) MessageRole {
	return MessageRole(strings.ToLower(strings.TrimSpace(name)))
}

// IsOther reports whether r is not user, assistant or system.
func (r MessageRole) IsOther() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleSystem:
		return false
	default:
		return true
	}
}

// String implements fmt.Stringer.
func (r MessageRole) String() string {
	return string(r)
}

// ChatMessage is a single message of a chat prompt.
type ChatMessage struct {
	Role MessageRole
	Body string
}

// NewChatMessage creates a chat message with the given role and body.
func NewChatMessage(role MessageRole, body string) ChatMessage {
	return ChatMessage{Role: role, Body: body}
}

// Render returns the message body as text.
// Bodies that are not valid UTF-8 cannot be sent to any provider and fail with a template error.
func (m ChatMessage) Render() (string, error) {
	if !utf8.ValidString(m.Body) {
		return "", NewTemplateError("message body is not valid UTF-8 text", nil)
	}
	return m.Body, nil
}

// Prompt is the provider-neutral representation of a conversation to be completed.
// A prompt is either a single text or an ordered list of chat messages.
// It is immutable once built.
type Prompt struct {
	text     string
	messages []ChatMessage
	isChat   bool
}

// NewTextPrompt creates a prompt from a single text. It is sent as one user message.
func NewTextPrompt(text string) Prompt {
	return Prompt{text: text}
}

// NewChatPrompt creates a prompt from an ordered list of chat messages.
func NewChatPrompt(messages ...ChatMessage) Prompt {
	msgs := make([]ChatMessage, len(messages))
	copy(msgs, messages)
	return Prompt{messages: msgs, isChat: true}
}

// IsChat reports whether the prompt was built from chat messages.
func (p Prompt) IsChat() bool {
	return p.isChat
}

// ToChat returns the prompt as a list of chat messages.
// The returned slice is a copy and may be modified by the caller.
func (p Prompt) ToChat() []ChatMessage {
	if !p.isChat {
		return []ChatMessage{NewChatMessage(RoleUser, p.text)}
	}
	msgs := make([]ChatMessage, len(p.messages))
	copy(msgs, p.messages)
	return msgs
}

// String returns a human-readable rendering of the prompt for logging.
func (p Prompt) String() string {
	if !p.isChat {
		return p.text
	}
	var sb strings.Builder
	for i, m := range p.messages {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(string(m.Role))
		sb.WriteString(": ")
		sb.WriteString(m.Body)
	}
	return sb.String()
}

// MarshalJSON renders the prompt as its chat messages, for debugging/logging purposes.
func (p Prompt) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.ToChat())
}

// TokenCount describes how much of a model's context window a prompt uses.
type TokenCount struct {
	// MaxTokens is the context window of the resolved model.
	MaxTokens int
	// TokensUsed is the number of tokens the prompt consumes.
	TokensUsed int
}

// NewTokenCount creates a TokenCount.
func NewTokenCount(maxTokens, tokensUsed int) TokenCount {
	return TokenCount{MaxTokens: maxTokens, TokensUsed: tokensUsed}
}

// TokensRemaining returns the number of tokens left for the completion.
func (t TokenCount) TokensRemaining() int {
	return t.MaxTokens - t.TokensUsed
}

// HasTokensRemaining reports whether any completion tokens remain.
func (t TokenCount) HasTokensRemaining() bool {
	return t.TokensRemaining() > 0
}
