// Package retry implements the bounded retry policies wrapped around provider calls.
//
// A Policy is a set of rules. Each rule matches an error kind and names the fixed
// delay to wait before the next attempt. Errors matched by no rule are fatal.
// Whether an error is retried depends only on its kind; the attempt count only
// bounds how many retries happen.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Unbounded disables the retry limit of a Policy.
const Unbounded = -1

const (
	// DefaultTransportBackoff is the wait before retrying a failed provider call.
	DefaultTransportBackoff = 1000 * time.Millisecond
	// DefaultRateLimitBackoff is the wait before retrying a rate limited embeddings call.
	DefaultRateLimitBackoff = 1 * time.Second
)

// Decision is the classification of a failed attempt.
type Decision int

const (
	Fatal Decision = iota
	Retryable
)

// String implements fmt.Stringer.
func (d Decision) String() string {
	if d == Retryable {
		return "retryable"
	}
	return "fatal"
}

// Rule marks one error kind as retryable.
type Rule struct {
	// Name labels the failure class in logs and metrics.
	Name string
	// Match reports whether err belongs to this class.
	Match func(err error) bool
	// Delay is waited before the next attempt.
	Delay time.Duration
}

// NotifyFunc is called before each backoff wait with the error that caused it,
// the wait duration and the number of the attempt that failed (starting at 1).
type NotifyFunc func(err error, wait time.Duration, attempt int)

// Policy is a bounded (or unbounded) fixed-delay retry policy.
// A Policy is a value; it holds no per-call state and may be shared.
type Policy struct {
	Name       string
	MaxRetries int // Retries after the first attempt, or Unbounded
	Rules      []Rule

	Logger   zerolog.Logger
	Metrics  *Metrics
	Notify   NotifyFunc
	NewTimer func() backoff.Timer // nil uses a real timer
}

// Decide classifies err. The delay is only meaningful for Retryable errors.
func (p Policy) Decide(err error) (Decision, time.Duration) {
	if err == nil {
		return Fatal, 0
	}
	if r, ok := p.match(err); ok {
		return Retryable, r.Delay
	}
	return Fatal, 0
}

func (p Policy) match(err error) (Rule, bool) {
	for _, r := range p.Rules {
		if r.Match != nil && r.Match(err) {
			return r, true
		}
	}
	return Rule{}, false
}

// WithLogger returns a copy of p that logs to logger.
func (p Policy) WithLogger(logger zerolog.Logger) Policy {
	p.Logger = logger
	return p
}

// Do runs op until it succeeds, fails with a fatal error, or the retry limit is reached.
// The returned error is always the error of the last attempt, or the context error
// if ctx ends while waiting.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempt := 0
	var lastErr error

	operation := func() error {
		attempt++
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if d, _ := p.Decide(err); d == Fatal {
			return backoff.Permanent(err)
		}
		return err
	}

	notify := func(err error, wait time.Duration) {
		rule, _ := p.match(err)
		p.Logger.Warn().
			Err(err).
			Str("policy", p.Name).
			Str("class", rule.Name).
			Int("attempt", attempt).
			Dur("wait", wait).
			Msg("Provider call failed, retrying")
		p.Metrics.observeBackoff(p.Name, rule.Name)
		if p.Notify != nil {
			p.Notify(err, wait, attempt)
		}
	}

	var timer backoff.Timer
	if p.NewTimer != nil {
		timer = p.NewTimer()
	}

	b := backoff.WithContext(&policyBackOff{policy: &p, lastErr: &lastErr}, ctx)
	err := backoff.RetryNotifyWithTimer(operation, b, notify, timer)
	if err != nil {
		p.Metrics.observeAttempts(p.Name, outcomeFailure, attempt)
		if attempt > 1 {
			p.Logger.Error().Err(err).Str("policy", p.Name).Int("attempts", attempt).Msg("Provider call failed after retry")
		}
		return err
	}
	p.Metrics.observeAttempts(p.Name, outcomeSuccess, attempt)
	return nil
}

// policyBackOff adapts a Policy to backoff.BackOff. The delay depends on the
// class of the most recent error.
type policyBackOff struct {
	policy  *Policy
	lastErr *error
	retries int
}

func (b *policyBackOff) NextBackOff() time.Duration {
	if b.policy.MaxRetries != Unbounded && b.retries >= b.policy.MaxRetries {
		return backoff.Stop
	}
	b.retries++
	_, delay := b.policy.Decide(*b.lastErr)
	return delay
}

func (b *policyBackOff) Reset() {
	b.retries = 0
}

var _ backoff.BackOff = (*policyBackOff)(nil)
