// Package settlement advances pending refund transactions to paid by drawing
// the refunded amount from the linked operating box.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"flota/internal/core"
	"flota/internal/ledger"
)

// Result reports a completed settlement.
type Result struct {
	TransactionID  int64
	OperatingBoxID int64
	Amount         core.Money
	NewBalance     core.Money
	HistoryEntryID string
}

// Workflow owns the only engine-managed state transition: refund -> paid.
type Workflow struct {
	runner     core.UnitOfWorkRunner
	ledger     *ledger.Ledger
	maxRetries int
}

func New(runner core.UnitOfWorkRunner, l *ledger.Ledger, maxRetries int) *Workflow {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Workflow{runner: runner, ledger: l, maxRetries: maxRetries}
}

// Settle pays transaction txID out of its operating box and marks it paid.
// The box debit, the history entry and the state flip commit atomically; any
// failure leaves all three untouched.
//
// Settle is not idempotent: a second call on an already paid transaction
// fails with core.ErrStateConflict and performs no mutation. A lost CAS race
// retries the whole unit of work up to the configured bound.
func (w *Workflow) Settle(ctx context.Context, txID int64) (Result, error) {
	var res Result
	var err error
	for attempt := 1; attempt <= w.maxRetries; attempt++ {
		res, err = w.settleOnce(ctx, txID)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, core.ErrConcurrentUpdate) {
			return Result{}, err
		}
		slog.WarnContext(ctx, "Settlement lost balance race, retrying",
			"transaction_id", txID,
			"attempt", attempt)
	}
	return Result{}, err
}

func (w *Workflow) settleOnce(ctx context.Context, txID int64) (Result, error) {
	var res Result
	err := w.runner.InTx(ctx, func(uow core.UnitOfWork) error {
		tx, err := uow.GetTransaction(ctx, txID)
		if err != nil {
			return fmt.Errorf("load transaction %d: %w", txID, err)
		}
		if tx.State != core.StateRefund {
			return fmt.Errorf("transaction %d is %s, not %s: %w",
				txID, tx.State, core.StateRefund, core.ErrStateConflict)
		}
		if tx.OperatingBoxID == nil {
			return fmt.Errorf("transaction %d has no operating box: %w",
				txID, core.ErrStateConflict)
		}

		mv, err := w.ledger.Apply(ctx, uow, ledger.MovementRequest{
			BoxID:         *tx.OperatingBoxID,
			Amount:        tx.Amount,
			Movement:      core.Withdrawal,
			TransactionID: &tx.ID,
			Description:   "settlement of " + tx.Description,
		})
		if err != nil {
			return err
		}

		if err := uow.SetTransactionState(ctx, tx.ID, core.StatePaid); err != nil {
			return fmt.Errorf("mark transaction %d paid: %w", tx.ID, err)
		}

		res = Result{
			TransactionID:  tx.ID,
			OperatingBoxID: mv.BoxID,
			Amount:         tx.Amount,
			NewBalance:     mv.BalanceAfter,
			HistoryEntryID: mv.EntryID,
		}
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	slog.InfoContext(ctx, "Settlement completed",
		"transaction_id", res.TransactionID,
		"box_id", res.OperatingBoxID,
		"new_balance_cents", res.NewBalance.Cents)
	return res, nil
}
