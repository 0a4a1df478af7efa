// Package http exposes the engine over a thin JSON API. Handlers parse and
// validate input, call the engine, and map sentinel errors to statuses; no
// business rule lives here.
package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	applog "flota/internal/log"
	"flota/internal/services"
	"flota/internal/statement"
	"flota/internal/storage"
)

type Server struct {
	aggregator *statement.Aggregator
	auditor    *statement.Auditor
	settle     *services.SettlementService
	repo       *storage.Repository
}

func NewServer(agg *statement.Aggregator, auditor *statement.Auditor, settle *services.SettlementService, repo *storage.Repository) *Server {
	return &Server{
		aggregator: agg,
		auditor:    auditor,
		settle:     settle,
		repo:       repo,
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(requestLogger)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/businesses/{businessID}/statement", s.handleScopeStatement)
		r.Get("/businesses/{businessID}/fleet", s.handleFleetStatements)
		r.Get("/boxes/{boxID}/detail", s.handleBoxDetail)
		r.Get("/boxes/{boxID}/reconciliation", s.handleReconciliation)
		r.Get("/boxes/{boxID}/history", s.handleBoxHistory)
		r.Post("/boxes/{boxID}/movements", s.handleBoxMovement)
		r.Post("/transactions/{transactionID}/settle", s.handleSettle)
	})

	return r
}

// ListenAndServe builds the http.Server with timeouts and serves until it
// fails or is shut down through the returned server.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:           addr,
		Handler:        s.Handler(),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 16, // 64KB
	}
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		level := slog.LevelInfo
		if ww.Status() >= 500 {
			level = slog.LevelError
		} else if ww.Status() >= 400 {
			level = slog.LevelWarn
		}
		slog.Default().Log(r.Context(), level, "HTTP request completed",
			applog.FieldComponent, applog.ComponentHTTP,
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path,
			applog.FieldStatusCode, ww.Status(),
			applog.FieldDuration, time.Since(start).Milliseconds())
	})
}
