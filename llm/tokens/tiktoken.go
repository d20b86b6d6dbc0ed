package tokens

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"
)

// Encoder encodes text with one BPE encoding.
type Encoder interface {
	Encode(text string) []int
	Decode(tokens []int) string
}

// EncoderFunc loads the encoder for a tiktoken encoding name such as "cl100k_base".
type EncoderFunc func(encoding string) (Encoder, error)

// TiktokenEncoder loads encodings with tiktoken-go. The first call for an
// encoding may download its BPE ranks.
func TiktokenEncoder(encoding string) (Encoder, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("init tiktoken encoding %s: %w", encoding, err)
	}
	return tiktokenEncoder{enc: enc}, nil
}

type tiktokenEncoder struct {
	enc *tiktoken.Tiktoken
}

func (t tiktokenEncoder) Encode(text string) []int {
	return t.enc.Encode(text, nil, nil)
}

func (t tiktokenEncoder) Decode(tokens []int) string {
	return t.enc.Decode(tokens)
}
