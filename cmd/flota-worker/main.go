package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flota/internal/amqp"
	"flota/internal/cli"
	"flota/internal/services"
	"flota/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()

	logger.Info("Starting flota-worker")

	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	engine := cli.BuildEngine(logger, cfg, repo)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRequestQueue, cfg.AMQPEventQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	settleSvc := services.NewSettlementService(engine.Workflow, engine.Ledger, repo, amqpClient)
	settleWorker := worker.NewSettlementWorker(settleSvc)
	reconcileWorker := worker.NewReconcileWorker(engine.Auditor, repo, cfg.ReconcileInterval)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go reconcileWorker.Run(ctx)

	go func() {
		if err := amqpClient.ConsumeSettlementRequests(ctx, settleWorker.HandleSettlementRequest); err != nil {
			if !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
			}
			cancel()
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("Context cancelled")
	}

	logger.Info("Shutting down worker...")
	cancel()

	// Give the consumer a moment to finish the in-flight delivery
	time.Sleep(2 * time.Second)
	logger.Info("Worker shutdown complete")
}
