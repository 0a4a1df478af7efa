// Package services orchestrates engine operations with messaging and metrics.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"flota/internal/amqp"
	"flota/internal/core"
	"flota/internal/ledger"
	"flota/internal/metrics"
	"flota/internal/settlement"
)

// SettlementService runs settlements and manual box movements, publishing
// settled events after the fact. The event publish is best-effort: a broker
// outage never rolls back money that already moved.
type SettlementService struct {
	workflow   *settlement.Workflow
	ledger     *ledger.Ledger
	runner     core.UnitOfWorkRunner
	amqpClient *amqp.Client
}

func NewSettlementService(workflow *settlement.Workflow, l *ledger.Ledger, runner core.UnitOfWorkRunner, amqpClient *amqp.Client) *SettlementService {
	return &SettlementService{
		workflow:   workflow,
		ledger:     l,
		runner:     runner,
		amqpClient: amqpClient,
	}
}

// Settle settles a pending refund transaction and announces the result.
func (s *SettlementService) Settle(ctx context.Context, transactionID int64) (settlement.Result, error) {
	res, err := s.workflow.Settle(ctx, transactionID)
	if err != nil {
		metrics.SettlementsTotal.WithLabelValues(settleOutcome(err)).Inc()
		return settlement.Result{}, err
	}
	metrics.SettlementsTotal.WithLabelValues("settled").Inc()
	metrics.BoxMovementsTotal.WithLabelValues(string(core.Withdrawal)).Inc()

	s.publishSettled(ctx, res)
	return res, nil
}

// ApplyManualMovement recharges or draws down a box outside any transaction,
// through the same ledger and audit trail. amount is a decimal string as
// entered by an operator.
func (s *SettlementService) ApplyManualMovement(ctx context.Context, boxID int64, amount string, movement core.MovementType, description string) (ledger.MovementResult, error) {
	cents, err := core.ParseDecimalToCents(amount)
	if err != nil {
		return ledger.MovementResult{}, fmt.Errorf("parse amount %q: %w", amount, err)
	}

	var res ledger.MovementResult
	err = s.runner.InTx(ctx, func(uow core.UnitOfWork) error {
		var applyErr error
		res, applyErr = s.ledger.Apply(ctx, uow, ledger.MovementRequest{
			BoxID:       boxID,
			Amount:      core.Money{Cents: cents},
			Movement:    movement,
			Description: description,
		})
		return applyErr
	})
	if err != nil {
		return ledger.MovementResult{}, err
	}

	metrics.BoxMovementsTotal.WithLabelValues(string(movement)).Inc()
	return res, nil
}

func (s *SettlementService) publishSettled(ctx context.Context, res settlement.Result) {
	if s.amqpClient == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping settled event",
			"transaction_id", res.TransactionID)
		return
	}

	msg := &amqp.SettlementSettledMessage{
		TransactionID:     res.TransactionID,
		OperatingBoxID:    res.OperatingBoxID,
		AmountCents:       res.Amount.Cents,
		BalanceAfterCents: res.NewBalance.Cents,
		HistoryEntryID:    res.HistoryEntryID,
		Timestamp:         time.Now(),
	}
	if err := s.amqpClient.PublishSettlementSettled(ctx, msg); err != nil {
		// Don't fail the settlement - the money already moved and is audited
		slog.ErrorContext(ctx, "Failed to publish settled event",
			"transaction_id", res.TransactionID, "error", err)
	}
}

func settleOutcome(err error) string {
	switch {
	case errors.Is(err, core.ErrStateConflict):
		return "state_conflict"
	case errors.Is(err, core.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, core.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}

// Close releases the AMQP connection.
func (s *SettlementService) Close() error {
	if s.amqpClient != nil {
		if err := s.amqpClient.Close(); err != nil {
			return fmt.Errorf("close amqp: %w", err)
		}
	}
	return nil
}
