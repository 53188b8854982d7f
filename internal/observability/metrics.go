package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus collectors. A fresh registry per
// instance keeps tests isolated from the default global registry.
type Metrics struct {
	registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Registrations *prometheus.CounterVec
	AuthzDenied   *prometheus.CounterVec
	Downloads     *prometheus.CounterVec
	Probes        *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_logins_total",
			Help: "Login attempts by outcome.",
		}, []string{"outcome"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_registrations_total",
			Help: "Registration attempts by outcome.",
		}, []string{"outcome"}),
		AuthzDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_authz_denied_total",
			Help: "Authorization denials by reason.",
		}, []string{"reason"}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_downloads_total",
			Help: "File download requests by outcome.",
		}, []string{"outcome"}),
		Probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatekeeper_probes_total",
			Help: "Host reachability probes by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.Logins,
		m.Registrations,
		m.AuthzDenied,
		m.Downloads,
		m.Probes,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
