// Package metrics holds the prometheus collectors of the ledger service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reservation paths
const (
	PathAtomic   = "atomic"
	PathFallback = "fallback" // non-atomic, not race-free
)

// Metrics groups the ledger collectors so tests can use a private registry.
type Metrics struct {
	Transactions        *prometheus.CounterVec
	ReservationDecision *prometheus.CounterVec
	ReservationDuration *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_transactions_total",
				Help: "Total number of processed transactions by type and outcome",
			},
			[]string{"type", "outcome"},
		),
		ReservationDecision: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_reservation_decisions_total",
				Help: "Total number of withdraw_request decisions by reservation path",
			},
			[]string{"path", "decision"},
		),
		ReservationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_reservation_duration_seconds",
				Help:    "Duration of reservation checks",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2, 3, 5},
			},
			[]string{"path"},
		),
	}
	if reg != nil {
		reg.MustRegister(m.Transactions, m.ReservationDecision, m.ReservationDuration)
	}
	return m
}

// NewNop returns collectors that are not registered anywhere.
func NewNop() *Metrics {
	return New(nil)
}
