// Package metrics exposes the engine's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SettlementsTotal counts settlement attempts by outcome
// (settled, state_conflict, insufficient_funds, not_found, error).
var SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "flota",
	Name:      "settlements_total",
	Help:      "Settlement attempts by outcome.",
}, []string{"result"})

// BoxMovementsTotal counts applied box movements by type.
var BoxMovementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "flota",
	Name:      "box_movements_total",
	Help:      "Applied operating box movements by movement type.",
}, []string{"movement"})

// ReconciliationDriftCents reports the last observed drift per box.
var ReconciliationDriftCents = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "flota",
	Name:      "reconciliation_drift_cents",
	Help:      "Last observed drift between stored balance and period net activity.",
}, []string{"box"})

// StatementsComputedTotal counts computed statements by kind
// (scope, box_detail, fleet).
var StatementsComputedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "flota",
	Name:      "statements_computed_total",
	Help:      "Computed statements by kind.",
}, []string{"kind"})
