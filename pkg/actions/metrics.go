package actions

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"
)

type outcomeMetrics struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// newOutcomeMetrics registers on reg; a nil reg leaves the collectors unregistered
func newOutcomeMetrics(reg prometheus.Registerer) *outcomeMetrics {
	factory := promauto.With(reg)
	return &outcomeMetrics{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "reactor_action_invocations_total",
			Help: "Total action invocations by action, type and result",
		}, []string{"action", "kind", "result"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reactor_action_duration_seconds",
			Help:    "Action invocation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms to ~4.4min
		}, []string{"action", "kind"}),
	}
}

func (m *outcomeMetrics) observe(action Action, success bool, seconds float64) {
	result := resultFailure
	if success {
		result = resultSuccess
	}
	m.invocations.WithLabelValues(action.Name, string(action.Kind), result).Inc()
	m.duration.WithLabelValues(action.Name, string(action.Kind)).Observe(seconds)
}
