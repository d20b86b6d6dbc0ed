package llm

// Options holds per-executor or per-invocation settings.
// Zero values (and nil pointers) mean "not set".
type Options struct {
	Model       string
	APIKey      string
	Stream      *bool
	Temperature *float64
	TopP        *float64
	MaxTokens   int
	User        string
}

// Cascade layers several Options. Later layers override earlier ones.
type Cascade struct {
	layers []*Options
}

// NewCascade creates a cascade from the given layers, lowest precedence first.
// Nil layers are ignored.
func NewCascade(layers ...*Options) Cascade {
	c := Cascade{layers: make([]*Options, 0, len(layers))}
	for _, l := range layers {
		if l != nil {
			c.layers = append(c.layers, l)
		}
	}
	return c
}

// With returns a new cascade with an additional highest-precedence layer.
func (c Cascade) With(opts *Options) Cascade {
	layers := make([]*Options, 0, len(c.layers)+1)
	layers = append(layers, c.layers...)
	return NewCascade(append(layers, opts)...)
}

// Model returns the most specific model name, if any.
func (c Cascade) Model() (string, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].Model != "" {
			return c.layers[i].Model, true
		}
	}
	return "", false
}

// ModelOr returns the most specific model name or def when none is set.
func (c Cascade) ModelOr(def string) string {
	if m, ok := c.Model(); ok {
		return m
	}
	return def
}

// APIKey returns the most specific API key, if any.
func (c Cascade) APIKey() (string, bool) {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].APIKey != "" {
			return c.layers[i].APIKey, true
		}
	}
	return "", false
}

// IsStreaming reports whether streaming output was requested.
func (c Cascade) IsStreaming() bool {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].Stream != nil {
			return *c.layers[i].Stream
		}
	}
	return false
}

// Temperature returns the most specific sampling temperature, if any.
func (c Cascade) Temperature() *float64 {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].Temperature != nil {
			return c.layers[i].Temperature
		}
	}
	return nil
}

// TopP returns the most specific nucleus sampling value, if any.
func (c Cascade) TopP() *float64 {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].TopP != nil {
			return c.layers[i].TopP
		}
	}
	return nil
}

// MaxTokens returns the most specific completion token limit, or 0.
func (c Cascade) MaxTokens() int {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].MaxTokens > 0 {
			return c.layers[i].MaxTokens
		}
	}
	return 0
}

// User returns the most specific end-user identifier, or "".
func (c Cascade) User() string {
	for i := len(c.layers) - 1; i >= 0; i-- {
		if c.layers[i].User != "" {
			return c.layers[i].User
		}
	}
	return ""
}

// Bool returns a pointer to b. Convenient for Options.Stream.
func Bool(b bool) *bool {
	return &b
}

// Float64 returns a pointer to f. Convenient for Options.Temperature and Options.TopP.
func Float64(f float64) *float64 {
	return &f
}
