package rbac

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts authorization outcomes.
type Metrics struct {
	decisions     *prometheus.CounterVec
	storeFailures prometheus.Counter
}

// NewMetrics registers the authorization collectors. A nil registerer uses the
// Prometheus default registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	decisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ecolix_authz_decisions_total",
		Help: "Authorization decisions partitioned by resource, action and outcome.",
	}, []string{"resource", "action", "outcome", "source"})
	failures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ecolix_authz_store_failures_total",
		Help: "Permission context builds that failed on the user directory or override store.",
	})
	registerer.MustRegister(decisions, failures)
	return &Metrics{decisions: decisions, storeFailures: failures}
}

func (m *Metrics) observe(d Decision) {
	if m == nil {
		return
	}
	outcome := "denied"
	if d.Granted {
		outcome = "granted"
	}
	m.decisions.WithLabelValues(d.Resource.String(), d.Action.String(), outcome, d.Source.String()).Inc()
}

func (m *Metrics) observeStoreFailure() {
	if m == nil {
		return
	}
	m.storeFailures.Inc()
}
