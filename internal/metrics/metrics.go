// Package metrics registers the prometheus collectors shared by the engine and the server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "goalbreaker"

// Stream outcomes
const (
	OutcomeComplete  = "complete"
	OutcomeFailed    = "failed"
	OutcomeCancelled = "cancelled"
)

var (
	StreamsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_streams_started_total",
		Help:      "Number of agent answer streams opened by the engine.",
	})
	StreamsFinished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "agent_streams_finished_total",
		Help:      "Agent answer streams by how they ended.",
	}, []string{"outcome"})
	FallbackAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallback_attempts_total",
		Help:      "Failed agents handed over to a backup model.",
	})
	FallbackExhausted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fallback_exhausted_total",
		Help:      "Turn versions that ran out of backup models.",
	})
	Saves = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "conversation_saves_total",
		Help:      "Debounced conversation saves by kind and result.",
	}, []string{"kind", "result"})

	// server side
	ProviderStreams = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_streams_total",
		Help:      "stream-goal requests proxied to the model provider, by result.",
	}, []string{"result"})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rate_limited_requests_total",
		Help:      "Requests rejected by the per-user rate limiter.",
	})
)

func RecordStreamStarted() {
	StreamsStarted.Inc()
}

func RecordStreamFinished(outcome string) {
	StreamsFinished.WithLabelValues(outcome).Inc()
}

func RecordFallbackAttempt() {
	FallbackAttempts.Inc()
}

func RecordFallbackExhausted() {
	FallbackExhausted.Inc()
}

// RecordSave counts one save; kind is "create" or "update".
func RecordSave(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Saves.WithLabelValues(kind, result).Inc()
}

func RecordProviderStream(result string) {
	ProviderStreams.WithLabelValues(result).Inc()
}

func RecordRateLimited() {
	RateLimited.Inc()
}
