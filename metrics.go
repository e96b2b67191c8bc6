package edgeworker

import "github.com/prometheus/client_golang/prometheus"

const (
	outcomeHit      = "hit"
	outcomeMiss     = "miss"
	outcomeNetwork  = "network"
	outcomeFallback = "fallback"
	outcomeOffline  = "offline"
	outcomeError    = "error"
)

type workerMetrics struct {
	fetches *prometheus.CounterVec
}

// newWorkerMetrics registers the fetch counter with the given
// registerer. A throwaway registry is used when none is given, so
// instantiating several workers (old and new generation, or in tests)
// never causes a duplicate-registration panic.
func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &workerMetrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "edgeworker",
			Name:      "fetches_total",
			Help:      "Intercepted fetches by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
	}
	reg.MustRegister(m.fetches)
	return m
}

func (m *workerMetrics) observe(strategy Strategy, outcome string) {
	m.fetches.WithLabelValues(string(strategy), outcome).Inc()
}
