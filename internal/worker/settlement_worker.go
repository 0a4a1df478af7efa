// Package worker drives settlements from the AMQP request queue.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"flota/internal/amqp"
	"flota/internal/core"
	"flota/internal/services"
)

// SettlementWorker consumes settlement requests and invokes the workflow.
type SettlementWorker struct {
	service *services.SettlementService
}

func NewSettlementWorker(service *services.SettlementService) *SettlementWorker {
	return &SettlementWorker{service: service}
}

// HandleSettlementRequest processes one settlement request message.
//
// Business rejections (unknown transaction, wrong state, not enough cash in
// the box) are terminal: redelivery cannot fix them, so they are logged and
// swallowed to let the delivery ack. Anything else is transient and returned,
// which nacks and requeues the message.
func (w *SettlementWorker) HandleSettlementRequest(ctx context.Context, msg *amqp.SettlementRequestMessage) error {
	slog.InfoContext(ctx, "Processing settlement request",
		"transaction_id", msg.TransactionID,
		"requested_by", msg.RequestedBy)

	res, err := w.service.Settle(ctx, msg.TransactionID)
	if err != nil {
		if isTerminal(err) {
			slog.WarnContext(ctx, "Settlement request rejected",
				"transaction_id", msg.TransactionID,
				"error", err)
			return nil
		}
		return err
	}

	slog.InfoContext(ctx, "Settlement request completed",
		"transaction_id", res.TransactionID,
		"box_id", res.OperatingBoxID,
		"new_balance_cents", res.NewBalance.Cents)
	return nil
}

func isTerminal(err error) bool {
	return errors.Is(err, core.ErrNotFound) ||
		errors.Is(err, core.ErrStateConflict) ||
		errors.Is(err, core.ErrInsufficientFunds) ||
		errors.Is(err, core.ErrBoxInactive)
}
