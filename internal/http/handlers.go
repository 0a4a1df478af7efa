package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"flota/internal/core"
	"flota/internal/metrics"
)

func (s *Server) handleScopeStatement(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r, "businessID")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := queryRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	scope := core.Scope{BusinessID: businessID}
	if raw := r.URL.Query().Get("vehicle_id"); raw != "" {
		vid, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, badRequest("invalid vehicle_id"))
			return
		}
		scope.VehicleID = &vid
	}

	st, err := s.aggregator.ScopeStatement(r.Context(), scope, period)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.StatementsComputedTotal.WithLabelValues("scope").Inc()
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleFleetStatements(w http.ResponseWriter, r *http.Request) {
	businessID, err := pathID(r, "businessID")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := queryRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	overview, err := s.aggregator.FleetStatements(r.Context(), s.repo, businessID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.StatementsComputedTotal.WithLabelValues("fleet").Inc()
	writeJSON(w, http.StatusOK, overview)
}

func (s *Server) handleBoxDetail(w http.ResponseWriter, r *http.Request) {
	boxID, err := pathID(r, "boxID")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := queryRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	detail, err := s.aggregator.BoxDetail(r.Context(), boxID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.StatementsComputedTotal.WithLabelValues("box_detail").Inc()
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) handleReconciliation(w http.ResponseWriter, r *http.Request) {
	boxID, err := pathID(r, "boxID")
	if err != nil {
		writeError(w, err)
		return
	}
	period, err := queryRange(r)
	if err != nil {
		writeError(w, err)
		return
	}

	rep, err := s.auditor.Reconcile(r.Context(), boxID, period)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.ReconciliationDriftCents.WithLabelValues(rep.BoxName).Set(float64(rep.Drift.Cents))
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) handleBoxHistory(w http.ResponseWriter, r *http.Request) {
	boxID, err := pathID(r, "boxID")
	if err != nil {
		writeError(w, err)
		return
	}
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	entries, err := s.repo.ListBoxHistory(r.Context(), boxID, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

type movementRequest struct {
	Amount      string `json:"amount"`
	Movement    string `json:"movement"`
	Description string `json:"description"`
}

func (s *Server) handleBoxMovement(w http.ResponseWriter, r *http.Request) {
	boxID, err := pathID(r, "boxID")
	if err != nil {
		writeError(w, err)
		return
	}

	var req movementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, badRequest("invalid JSON body"))
		return
	}
	movement := core.MovementType(req.Movement)
	if !movement.Valid() {
		writeError(w, badRequest("movement must be 'recharge' or 'withdrawal'"))
		return
	}

	res, err := s.settle.ApplyManualMovement(r.Context(), boxID, req.Amount, movement, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request) {
	txID, err := pathID(r, "transactionID")
	if err != nil {
		writeError(w, err)
		return
	}

	res, err := s.settle.Settle(r.Context(), txID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, badRequest("invalid " + name)
	}
	return id, nil
}

// queryRange parses the mandatory from/to query params (YYYY-MM-DD).
func queryRange(r *http.Request) (core.DateRange, error) {
	from, err := parseDay(r.URL.Query().Get("from"))
	if err != nil {
		return core.DateRange{}, err
	}
	to, err := parseDay(r.URL.Query().Get("to"))
	if err != nil {
		return core.DateRange{}, err
	}
	return core.NewDateRange(from, to)
}

func parseDay(raw string) (core.Date, error) {
	if raw == "" {
		return core.Date{}, core.ErrInvalidDateRange
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return core.Date{}, core.ErrInvalidDateRange
	}
	return core.Date{Time: t}, nil
}

type httpError struct {
	status int
	msg    string
}

func (e *httpError) Error() string { return e.msg }

func badRequest(msg string) error {
	return &httpError{status: http.StatusBadRequest, msg: msg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	var he *httpError
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.As(err, &he):
		status, msg = he.status, he.msg
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, err.Error()
	case errors.Is(err, core.ErrStateConflict),
		errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrBoxInactive),
		errors.Is(err, core.ErrConcurrentUpdate):
		status, msg = http.StatusConflict, err.Error()
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidDateRange),
		errors.Is(err, core.ErrEmptyCategory):
		status, msg = http.StatusBadRequest, err.Error()
	}

	writeJSON(w, status, map[string]string{"error": msg})
}
