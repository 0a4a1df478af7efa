package worker

import (
	"context"
	"log/slog"
	"time"

	"flota/internal/core"
	"flota/internal/metrics"
	"flota/internal/statement"
)

// BoxLister enumerates the boxes a reconciliation sweep covers.
type BoxLister interface {
	ListBoxes(ctx context.Context) ([]core.OperatingBox, error)
}

// ReconcileWorker periodically audits every active box against its full
// movement history and exports the drift as a gauge. It only reads and logs;
// corrections stay a human decision.
type ReconcileWorker struct {
	auditor  *statement.Auditor
	boxes    BoxLister
	interval time.Duration
	clock    core.Clock
}

func NewReconcileWorker(auditor *statement.Auditor, boxes BoxLister, interval time.Duration) *ReconcileWorker {
	return &ReconcileWorker{
		auditor:  auditor,
		boxes:    boxes,
		interval: interval,
		clock:    core.SystemClock{},
	}
}

// Run sweeps immediately, then on every interval tick until ctx is cancelled.
func (w *ReconcileWorker) Run(ctx context.Context) {
	w.Sweep(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep reconciles every active box once. Per-box failures are logged and
// skipped so one broken box cannot stall the rest.
func (w *ReconcileWorker) Sweep(ctx context.Context) {
	boxes, err := w.boxes.ListBoxes(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "Reconciliation sweep failed to list boxes", "error", err)
		return
	}

	period := w.fullHistoryPeriod()
	var drifted int
	for _, box := range boxes {
		if !box.Active {
			continue
		}
		rep, err := w.auditor.Reconcile(ctx, box.ID, period)
		if err != nil {
			slog.ErrorContext(ctx, "Reconciliation failed",
				"box_id", box.ID, "box_name", box.Name, "error", err)
			continue
		}
		metrics.ReconciliationDriftCents.WithLabelValues(rep.BoxName).Set(float64(rep.Drift.Cents))
		if !rep.InSync {
			drifted++
		}
	}

	slog.InfoContext(ctx, "Reconciliation sweep completed",
		"boxes", len(boxes),
		"drifted", drifted)
}

// fullHistoryPeriod spans every recorded transaction: a fixed floor predating
// any activity up to today, so the sweep needs no per-box date lookup.
func (w *ReconcileWorker) fullHistoryPeriod() core.DateRange {
	now := w.clock.Now()
	return core.DateRange{
		From: core.NewDate(2000, 1, 1),
		To:   core.NewDate(now.Year(), int(now.Month()), now.Day()),
	}
}
