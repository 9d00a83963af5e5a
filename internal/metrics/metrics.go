// Package metrics exposes the Prometheus collectors instrumenting the
// fallback engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/yourorg/gateway-fallback/internal/gateway"
)

// Set bundles the engine collectors. Construct one Set per registry; tests
// pass their own prometheus.NewRegistry to avoid collisions with the
// default registerer.
type Set struct {
	Attempts         *prometheus.CounterVec
	Fallbacks        prometheus.Counter
	Outcomes         *prometheus.CounterVec
	RecorderFailures prometheus.Counter
	AttemptDuration  *prometheus.HistogramVec
}

func NewSet(reg prometheus.Registerer) *Set {
	s := &Set{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_attempts_total",
			Help: "Gateway attempts by gateway and attempt status.",
		}, []string{"gateway", "status"}),
		Fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_fallbacks_total",
			Help: "Attempts dispatched to a gateway other than the first in the sequence.",
		}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_outcomes_total",
			Help: "Final processing outcomes (success, terminal, exhausted, no_gateway).",
		}, []string{"outcome"}),
		RecorderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "payment_attempt_record_failures_total",
			Help: "Attempt-record writes that failed and were suppressed.",
		}),
		AttemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "payment_attempt_duration_seconds",
			Help:    "Wall time of individual gateway attempts.",
			Buckets: prometheus.DefBuckets,
		}, []string{"gateway"}),
	}
	if reg != nil {
		reg.MustRegister(s.Attempts, s.Fallbacks, s.Outcomes, s.RecorderFailures, s.AttemptDuration)
	}
	return s
}

// ObserveAttempt records one finished attempt. Nil-safe so the engine can
// run without metrics in tests.
func (s *Set) ObserveAttempt(gw gateway.GatewayType, status gateway.AttemptStatus, fallback bool, elapsed time.Duration) {
	if s == nil {
		return
	}
	s.Attempts.WithLabelValues(string(gw), string(status)).Inc()
	if fallback {
		s.Fallbacks.Inc()
	}
	s.AttemptDuration.WithLabelValues(string(gw)).Observe(elapsed.Seconds())
}

// ObserveOutcome records the final outcome of one processing call.
func (s *Set) ObserveOutcome(outcome string) {
	if s == nil {
		return
	}
	s.Outcomes.WithLabelValues(outcome).Inc()
}

// ObserveRecorderFailure counts one suppressed attempt-record write failure.
func (s *Set) ObserveRecorderFailure() {
	if s == nil {
		return
	}
	s.RecorderFailures.Inc()
}
