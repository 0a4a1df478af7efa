package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"flota/internal/amqp"
	"flota/internal/cli"
	apphttp "flota/internal/http"
	"flota/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitRepository(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	engine := cli.BuildEngine(logger, cfg, repo)

	// AMQP is optional for the API server: without it settlements still work,
	// settled events are just not announced.
	var amqpClient *amqp.Client
	if cfg.AMQPURL != "" {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRequestQueue, cfg.AMQPEventQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, settled events disabled", "error", err)
		}
	}

	settleSvc := services.NewSettlementService(engine.Workflow, engine.Ledger, repo, amqpClient)
	defer settleSvc.Close()

	srv := apphttp.NewServer(engine.Aggregator, engine.Auditor, settleSvc, repo).
		HTTPServer(":" + cfg.Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		cancel()
	}()

	logger.Info("Starting flota server", "port", cfg.Port, "margin_policy", cfg.MarginPolicy)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	<-ctx.Done()
	logger.Info("Server stopped gracefully")
}
