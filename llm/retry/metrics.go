package retry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

// Metrics counts retry activity. A nil *Metrics records nothing.
type Metrics struct {
	Calls    *prometheus.CounterVec
	Backoffs *prometheus.CounterVec
}

// NewMetrics creates the retry counters and registers them with reg.
// If reg is nil the counters are created but not registered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmchain_retry_calls_total",
				Help: "Provider calls run through a retry policy, by outcome and number of attempts",
			},
			[]string{"policy", "outcome", "attempts"},
		),
		Backoffs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "llmchain_retry_backoffs_total",
				Help: "Backoff waits before a retry, by failure class",
			},
			[]string{"policy", "class"},
		),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Calls, m.Backoffs} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeAttempts(policy, outcome string, attempts int) {
	if m == nil {
		return
	}
	m.Calls.WithLabelValues(policy, outcome, attemptsLabel(attempts)).Inc()
}

// attemptsLabel caps the label cardinality for unbounded policies.
func attemptsLabel(attempts int) string {
	if attempts >= 3 {
		return "3+"
	}
	return strconv.Itoa(attempts)
}

func (m *Metrics) observeBackoff(policy, class string) {
	if m == nil {
		return
	}
	m.Backoffs.WithLabelValues(policy, class).Inc()
}
