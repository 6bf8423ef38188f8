// Package metrics counts operation outcomes for the /metrics endpoint.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	Operations *prometheus.CounterVec
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "devicekey_operations_total",
				Help: "Total number of register/login/verify calls by outcome",
			},
			[]string{"operation", "outcome"},
		),
	}
	reg.MustRegister(m.Operations)
	return m
}

// Observe records one operation outcome. A nil receiver is a no-op so callers
// can run without metrics.
func (m *Metrics) Observe(operation, outcome string) {
	if m == nil {
		return
	}
	m.Operations.WithLabelValues(operation, outcome).Inc()
}
