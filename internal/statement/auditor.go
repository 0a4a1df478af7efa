package statement

import (
	"context"
	"log/slog"

	"flota/internal/core"
)

// ReconciliationReport compares a box's period-scoped net activity against
// its live stored balance. Drift is advisory: the engine surfaces it for
// operational review and never corrects the stored balance from it.
type ReconciliationReport struct {
	BoxID   int64
	BoxName string
	Period  core.DateRange
	Detail  BoxDetail
	Drift   core.Money
	InSync  bool
}

// Auditor cross-checks ledger-computed box activity against stored balances.
type Auditor struct {
	agg *Aggregator
}

func NewAuditor(agg *Aggregator) *Auditor {
	return &Auditor{agg: agg}
}

// Reconcile computes the box detail for the period and exposes the stored
// balance vs. net activity difference as drift.
func (a *Auditor) Reconcile(ctx context.Context, boxID int64, period core.DateRange) (ReconciliationReport, error) {
	detail, err := a.agg.BoxDetail(ctx, boxID, period)
	if err != nil {
		return ReconciliationReport{}, err
	}

	rep := ReconciliationReport{
		BoxID:   detail.BoxID,
		BoxName: detail.BoxName,
		Period:  period,
		Detail:  detail,
		Drift:   detail.Diff,
		InSync:  detail.Diff.Cents == 0,
	}
	if !rep.InSync {
		slog.WarnContext(ctx, "Operating box drift detected",
			"box_id", rep.BoxID,
			"box_name", rep.BoxName,
			"drift_cents", rep.Drift.Cents,
			"stored_balance_cents", detail.StoredBalance.Cents,
			"period_net_cents", detail.Net.Cents)
	}
	return rep, nil
}
