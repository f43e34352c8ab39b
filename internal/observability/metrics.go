package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the billing engine. Each
// instance owns a private registry so tests can build as many as they need.
type Metrics struct {
	Registry *prometheus.Registry

	purchases          *prometheus.CounterVec
	invoiceTransitions *prometheus.CounterVec
	invoicePayments    prometheus.Counter
	recurringResults   *prometheus.CounterVec
	sweepDuration      *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		purchases: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_purchase_mutations_total",
				Help: "Card purchase mutations by operation.",
			},
			[]string{"operation"},
		),
		invoiceTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_invoice_transitions_total",
				Help: "Invoice status transitions by target status.",
			},
			[]string{"status"},
		),
		invoicePayments: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "finance_invoice_payments_total",
				Help: "Invoice payments recorded.",
			},
		),
		recurringResults: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "finance_recurring_generations_total",
				Help: "Recurring template outcomes per sweep.",
			},
			[]string{"result"},
		),
		sweepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "finance_sweep_duration_seconds",
				Help:    "Duration of scheduled sweeps.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"sweep"},
		),
	}
}

func (m *Metrics) IncrPurchase(operation string) {
	m.purchases.WithLabelValues(operation).Inc()
}

func (m *Metrics) IncrInvoiceTransition(status string) {
	m.invoiceTransitions.WithLabelValues(status).Inc()
}

func (m *Metrics) IncrInvoicePayment() {
	m.invoicePayments.Inc()
}

// RecordSweep adds a finished recurring sweep to the counters.
func (m *Metrics) RecordSweep(generated, skipped, failed int) {
	m.recurringResults.WithLabelValues("generated").Add(float64(generated))
	m.recurringResults.WithLabelValues("skipped").Add(float64(skipped))
	m.recurringResults.WithLabelValues("failed").Add(float64(failed))
}

func (m *Metrics) ObserveSweep(sweep string, d time.Duration) {
	m.sweepDuration.WithLabelValues(sweep).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
