package retry

import (
	"errors"
	"strings"
	"time"

	"github.com/aschepis/backscratcher/llmchain/llm"
)

// Predicate reports whether an error belongs to a failure class.
type Predicate func(err error) bool

// ChatPolicy retries a chat completion once: after transportBackoff when the
// provider call failed, immediately when the completion came back incomplete.
// A rate limited chat call counts as a failed provider call.
func ChatPolicy(transportBackoff time.Duration) Policy {
	return Policy{
		Name:       "chat",
		MaxRetries: 1,
		Rules: []Rule{
			{Name: string(llm.ErrorTypeTransport), Match: providerCallFailed, Delay: transportBackoff},
			{Name: string(llm.ErrorTypeIncomplete), Match: llm.IsIncompleteError, Delay: 0},
		},
	}
}

// StreamPolicy retries opening a completion stream once after transportBackoff.
// Streams have no finish reason to check before forwarding starts, so incomplete
// responses are not retried.
func StreamPolicy(transportBackoff time.Duration) Policy {
	return Policy{
		Name:       "stream",
		MaxRetries: 1,
		Rules: []Rule{
			{Name: string(llm.ErrorTypeTransport), Match: providerCallFailed, Delay: transportBackoff},
		},
	}
}

var providerCallFailed = AnyOf(llm.IsTransportError, llm.IsRateLimitError)

// RateLimitPolicy retries an embeddings call after backoff for as long as
// isRateLimited matches. Any other error is fatal.
func RateLimitPolicy(backoff time.Duration, isRateLimited Predicate) Policy {
	if isRateLimited == nil {
		isRateLimited = llm.IsRateLimitError
	}
	return Policy{
		Name:       "embeddings",
		MaxRetries: Unbounded,
		Rules: []Rule{
			{Name: string(llm.ErrorTypeRateLimit), Match: isRateLimited, Delay: backoff},
		},
	}
}

// AnyOf matches when any of preds matches.
func AnyOf(preds ...Predicate) Predicate {
	return func(err error) bool {
		for _, p := range preds {
			if p != nil && p(err) {
				return true
			}
		}
		return false
	}
}

// ErrorCode matches *llm.Error values of the given type whose provider code is one of codes.
func ErrorCode(kind llm.ErrorType, codes ...string) Predicate {
	return func(err error) bool {
		var llmErr *llm.Error
		if !errors.As(err, &llmErr) || llmErr.Type != kind {
			return false
		}
		for _, c := range codes {
			if strings.EqualFold(llmErr.Code, c) {
				return true
			}
		}
		return false
	}
}

// MessageContains matches errors whose message contains any of substrs, ignoring case.
// This is a degraded mode for providers that expose no structured error code.
func MessageContains(substrs ...string) Predicate {
	return func(err error) bool {
		if err == nil {
			return false
		}
		msg := strings.ToLower(err.Error())
		for _, s := range substrs {
			if s != "" && strings.Contains(msg, strings.ToLower(s)) {
				return true
			}
		}
		return false
	}
}
