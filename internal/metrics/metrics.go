package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors for registrant operations
type Metrics struct {
	registry    *prometheus.Registry
	Validations *prometheus.CounterVec
	Draws       *prometheus.CounterVec
	Resets      *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Validations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sorteio_validations_total",
			Help: "Validation requests by outcome",
		}, []string{"outcome"}),
		Draws: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sorteio_draws_total",
			Help: "Draw requests by outcome",
		}, []string{"outcome"}),
		Resets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sorteio_resets_total",
			Help: "Bulk resets by kind",
		}, []string{"kind"}),
	}
}

// ObserveValidation counts a validation outcome (validated, already_validated, not_found, error)
func (m *Metrics) ObserveValidation(outcome string) {
	m.Validations.WithLabelValues(outcome).Inc()
}

// ObserveDraw counts a draw outcome (drawn, no_candidate, error)
func (m *Metrics) ObserveDraw(outcome string) {
	m.Draws.WithLabelValues(outcome).Inc()
}

// ObserveReset counts a reset of the given kind (validations, draws)
func (m *Metrics) ObserveReset(kind string) {
	m.Resets.WithLabelValues(kind).Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
