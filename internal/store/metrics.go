package store

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of a store. A nil *Metrics
// records nothing.
type Metrics struct {
	StatementsTotal   *prometheus.CounterVec
	StatementDuration *prometheus.HistogramVec
	TransactionsTotal *prometheus.CounterVec
}

// NewMetrics creates the store collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StatementsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entql_store_statements_total",
				Help: "Total number of SQL statements executed",
			},
			[]string{"kind", "status"},
		),
		StatementDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "entql_store_statement_duration_seconds",
				Help:    "Duration of SQL statements in seconds",
				Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
			[]string{"kind"},
		),
		TransactionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entql_store_transactions_total",
				Help: "Total number of transactions by outcome",
			},
			[]string{"outcome"},
		),
	}
}

func (m *Metrics) statement(kind string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StatementsTotal.WithLabelValues(kind, status).Inc()
	m.StatementDuration.WithLabelValues(kind).Observe(d.Seconds())
}

func (m *Metrics) transaction(outcome string) {
	if m == nil {
		return
	}
	m.TransactionsTotal.WithLabelValues(outcome).Inc()
}
