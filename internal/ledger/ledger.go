// Package ledger owns operating box balances. Every mutation goes through
// Apply, which pairs the balance write with exactly one history entry inside
// the caller's unit of work.
package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"flota/internal/core"
)

// MovementRequest describes one balance mutation.
type MovementRequest struct {
	BoxID         int64
	Amount        core.Money
	Movement      core.MovementType
	TransactionID *int64
	Description   string
}

// MovementResult reports the applied mutation.
type MovementResult struct {
	BoxID         int64
	BalanceBefore core.Money
	BalanceAfter  core.Money
	EntryID       string
}

type Ledger struct {
	clock core.Clock
	newID func() string
}

func New(clock core.Clock) *Ledger {
	return &Ledger{
		clock: clock,
		newID: func() string { return uuid.NewString() },
	}
}

// Apply validates the movement, compare-and-swaps the box balance and appends
// the matching history entry, all through uow. Any error leaves the unit of
// work dirty; the caller must roll back (the runner does this when fn errors).
//
// A CAS miss surfaces as core.ErrConcurrentUpdate: the balance read at the
// start of the unit of work is stale and the whole unit must be retried.
func (l *Ledger) Apply(ctx context.Context, uow core.UnitOfWork, req MovementRequest) (MovementResult, error) {
	if err := req.Amount.Validate(); err != nil {
		return MovementResult{}, err
	}
	if !req.Movement.Valid() {
		return MovementResult{}, fmt.Errorf("invalid movement type: %s", req.Movement)
	}

	box, err := uow.GetBox(ctx, req.BoxID)
	if err != nil {
		return MovementResult{}, fmt.Errorf("load operating box %d: %w", req.BoxID, err)
	}
	if !box.Active {
		return MovementResult{}, core.ErrBoxInactive
	}

	before := box.Balance
	var after core.Money
	switch req.Movement {
	case core.Recharge:
		after = before.Add(req.Amount)
	case core.Withdrawal:
		if before.Cents < req.Amount.Cents {
			return MovementResult{}, core.ErrInsufficientFunds
		}
		after = before.Sub(req.Amount)
	}

	if err := uow.CompareAndSwapBalance(ctx, box.ID, before, after); err != nil {
		return MovementResult{}, fmt.Errorf("swap balance of box %d: %w", box.ID, err)
	}

	entry := core.HistoryEntry{
		ID:            l.newID(),
		BoxID:         box.ID,
		Amount:        req.Amount,
		Movement:      req.Movement,
		TransactionID: req.TransactionID,
		BalanceBefore: before,
		BalanceAfter:  after,
		Description:   req.Description,
		CreatedAt:     l.clock.Now(),
	}
	if err := uow.AppendHistory(ctx, entry); err != nil {
		return MovementResult{}, fmt.Errorf("append history for box %d: %w", box.ID, err)
	}

	slog.InfoContext(ctx, "Applied box movement",
		"box_id", box.ID,
		"movement", string(req.Movement),
		"amount_cents", req.Amount.Cents,
		"balance_before_cents", before.Cents,
		"balance_after_cents", after.Cents,
		"entry_id", entry.ID)

	return MovementResult{
		BoxID:         box.ID,
		BalanceBefore: before,
		BalanceAfter:  after,
		EntryID:       entry.ID,
	}, nil
}

// Balance is the read-only view of a box's live balance.
func (l *Ledger) Balance(ctx context.Context, boxes core.BoxReader, boxID int64) (core.Money, error) {
	box, err := boxes.GetBox(ctx, boxID)
	if err != nil {
		return core.Money{}, fmt.Errorf("load operating box %d: %w", boxID, err)
	}
	return box.Balance, nil
}
