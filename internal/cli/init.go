// Package cli provides common bootstrap utilities shared by cmd/flota and
// cmd/flota-worker.
package cli

import (
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"flota/internal/config"
	"flota/internal/core"
	"flota/internal/ledger"
	applog "flota/internal/log"
	"flota/internal/settlement"
	"flota/internal/statement"
	"flota/internal/storage"
)

// SetupLogger initializes structured logging with default settings.
// Returns the configured logger and sets it as the default logger.
func SetupLogger() *applog.Logger {
	logger := applog.New(applog.Config{
		Level:     slog.LevelInfo,
		Component: applog.ComponentApp,
	})
	applog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *applog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitRepository opens the SQLite repository and runs migrations.
// Returns the repository or exits the process on failure.
func InitRepository(logger *applog.Logger, dbPath string) *storage.Repository {
	repo, err := storage.NewRepository(dbPath)
	if err != nil {
		logger.Error("Failed to initialize SQLite repository", "error", err, "path", dbPath)
		os.Exit(1)
	}
	return repo
}

// Engine bundles the wired engine components.
type Engine struct {
	Ledger     *ledger.Ledger
	Workflow   *settlement.Workflow
	Aggregator *statement.Aggregator
	Auditor    *statement.Auditor
}

// BuildEngine wires ledger, workflow, aggregator and auditor on top of the
// repository, or exits the process on a bad margin policy.
func BuildEngine(logger *applog.Logger, cfg *config.Config, repo *storage.Repository) *Engine {
	margin, err := cfg.NewMarginPolicy()
	if err != nil {
		logger.Error("Failed to build margin policy", "error", err, "policy", cfg.MarginPolicy)
		os.Exit(1)
	}

	l := ledger.New(core.SystemClock{})
	agg := statement.NewAggregator(repo, repo, margin)
	return &Engine{
		Ledger:     l,
		Workflow:   settlement.New(repo, l, cfg.SettleMaxRetries),
		Aggregator: agg,
		Auditor:    statement.NewAuditor(agg),
	}
}
