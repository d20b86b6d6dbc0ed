// Package tokens computes prompt token usage and context windows for OpenAI-family models.
//
// Context sizes come from a static table keyed by model family and never depend on
// live usage. Token counting follows the OpenAI chat format: every message costs a fixed
// overhead plus its encoded role, content and name, and the reply is primed with three
// more tokens.
package tokens

import (
	"strings"
	"sync"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

const (
	tokensPerMessage     = 3
	tokensPerMessage0301 = 4
	tokensPerName        = 1
	tokensPerName0301    = -1
	replyPrimingTokens   = 3
)

// Message is a chat message in provider form, after role translation.
type Message struct {
	Role    string
	Content string
	Name    string
}

// Calculator counts prompt tokens. Encoders are loaded lazily and cached per encoding.
// A Calculator is safe for concurrent use.
type Calculator struct {
	load EncoderFunc

	mu       sync.Mutex
	encoders map[string]Encoder
}

// NewCalculator creates a calculator that loads encoders with load.
// A nil load uses TiktokenEncoder.
func NewCalculator(load EncoderFunc) *Calculator {
	if load == nil {
		load = TiktokenEncoder
	}
	return &Calculator{load: load, encoders: make(map[string]Encoder)}
}

// Default is the process-wide calculator backed by tiktoken.
var Default = NewCalculator(nil)

// Encoder returns the encoder for model, or a not-available error when the model has
// no known encoding.
func (c *Calculator) Encoder(model string) (Encoder, error) {
	name, ok := EncodingName(model)
	if !ok {
		return nil, llm.NewNotAvailableError(model)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if enc, ok := c.encoders[name]; ok {
		return enc, nil
	}
	enc, err := c.load(name)
	if err != nil {
		return nil, err
	}
	c.encoders[name] = enc
	return enc, nil
}

// CountMessages returns the number of prompt tokens msgs consume for model,
// including per-message overhead and reply priming.
func (c *Calculator) CountMessages(model string, msgs []Message) (int, error) {
	enc, err := c.Encoder(model)
	if err != nil {
		return 0, err
	}

	perMessage, perName := tokensPerMessage, tokensPerName
	if strings.HasPrefix(strings.ToLower(model), "gpt-3.5-turbo-0301") {
		perMessage, perName = tokensPerMessage0301, tokensPerName0301
	}

	total := 0
	for _, m := range msgs {
		total += perMessage
		total += len(enc.Encode(m.Role))
		total += len(enc.Encode(m.Content))
		if m.Name != "" {
			total += len(enc.Encode(m.Name)) + perName
		}
	}
	return total + replyPrimingTokens, nil
}

// TokensUsed returns the tokens msgs add on top of an empty conversation.
func (c *Calculator) TokensUsed(model string, msgs []Message) (int, error) {
	full, err := c.CountMessages(model, msgs)
	if err != nil {
		return 0, err
	}
	empty, err := c.CountMessages(model, nil)
	if err != nil {
		return 0, err
	}
	return full - empty, nil
}

// Budget returns the context window of model together with the tokens msgs consume.
func (c *Calculator) Budget(model string, msgs []Message) (llm.TokenCount, error) {
	used, err := c.TokensUsed(model, msgs)
	if err != nil {
		return llm.TokenCount{}, err
	}
	return llm.NewTokenCount(ContextSize(model), used), nil
}

// Tokenizer returns a tokenizer for model.
func (c *Calculator) Tokenizer(model string) (*Tokenizer, error) {
	enc, err := c.Encoder(model)
	if err != nil {
		return nil, err
	}
	return &Tokenizer{enc: enc}, nil
}

// Tokenizer adapts an Encoder to llm.Tokenizer.
type Tokenizer struct {
	enc Encoder
}

var _ llm.Tokenizer = (*Tokenizer)(nil)

func (t *Tokenizer) Tokenize(text string) ([]int, error) {
	return t.enc.Encode(text), nil
}

func (t *Tokenizer) ToString(tokens []int) (string, error) {
	return t.enc.Decode(tokens), nil
}
