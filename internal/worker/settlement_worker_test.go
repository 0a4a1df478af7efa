package worker

import (
	"context"
	"path/filepath"
	"testing"

	"flota/internal/amqp"
	"flota/internal/core"
	"flota/internal/ledger"
	"flota/internal/services"
	"flota/internal/settlement"
	"flota/internal/storage"
)

func newWorkerEnv(t *testing.T) (*SettlementWorker, *storage.Repository, int64) {
	t.Helper()
	ctx := context.Background()

	repo, err := storage.NewRepository(filepath.Join(t.TempDir(), "flota_test.db"))
	if err != nil {
		t.Fatalf("NewRepository() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	businessID, err := repo.CreateBusiness(ctx, "NCC Milano")
	if err != nil {
		t.Fatalf("CreateBusiness() error = %v", err)
	}
	boxID, err := repo.CreateBox(ctx, core.OperatingBox{
		BusinessID: businessID, Name: "claims float", Balance: core.Money{Cents: 20000}, Active: true,
	})
	if err != nil {
		t.Fatalf("CreateBox() error = %v", err)
	}
	refundID, err := repo.CreateTransaction(ctx, core.Transaction{
		BusinessID: businessID, OperatingBoxID: &boxID, Type: core.Expense,
		Amount: core.Money{Cents: 15000}, Date: core.NewDate(2024, 3, 25),
		State: core.StateRefund, Category: "damages", Description: "windshield claim",
	})
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}

	l := ledger.New(core.SystemClock{})
	svc := services.NewSettlementService(settlement.New(repo, l, 3), l, repo, nil)
	return NewSettlementWorker(svc), repo, refundID
}

func TestHandleSettlementRequest(t *testing.T) {
	w, repo, refundID := newWorkerEnv(t)
	ctx := context.Background()

	msg := amqp.NewSettlementRequestMessage(refundID, "test")
	if err := w.HandleSettlementRequest(ctx, msg); err != nil {
		t.Fatalf("HandleSettlementRequest() error = %v", err)
	}

	tx, err := repo.GetTransaction(ctx, refundID)
	if err != nil {
		t.Fatalf("GetTransaction() error = %v", err)
	}
	if tx.State != core.StatePaid {
		t.Errorf("state = %s, want paid", tx.State)
	}
}

func TestHandleSettlementRequestTerminalErrorsAck(t *testing.T) {
	w, repo, refundID := newWorkerEnv(t)
	ctx := context.Background()

	// Unknown transaction: redelivery can never fix it.
	if err := w.HandleSettlementRequest(ctx, amqp.NewSettlementRequestMessage(999, "test")); err != nil {
		t.Errorf("unknown transaction should be swallowed, got %v", err)
	}

	// Already paid: same.
	if err := w.HandleSettlementRequest(ctx, amqp.NewSettlementRequestMessage(refundID, "test")); err != nil {
		t.Fatalf("first request error = %v", err)
	}
	if err := w.HandleSettlementRequest(ctx, amqp.NewSettlementRequestMessage(refundID, "test")); err != nil {
		t.Errorf("duplicate request should be swallowed, got %v", err)
	}

	// The duplicate must not have moved money twice.
	box, _ := repo.GetBox(ctx, 1)
	if box.Balance.Cents != 5000 {
		t.Errorf("balance = %d, want 5000", box.Balance.Cents)
	}
}
