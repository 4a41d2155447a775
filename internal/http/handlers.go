package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"savings/internal/core"
	"savings/internal/log"
	"savings/internal/services"
	"savings/internal/worker"
)

type summaryResponse struct {
	services.Summary
	Status     services.Status `json:"status"`
	DurationMs int64           `json:"duration_ms"`
}

func newSummaryResponse(sum services.Summary) summaryResponse {
	return summaryResponse{
		Summary:    sum,
		Status:     sum.Status(),
		DurationMs: sum.Duration().Milliseconds(),
	}
}

type entryResponse struct {
	Month       string    `json:"month"`
	Saving      string    `json:"saving"`
	SavingCents int64     `json:"saving_cents"`
	CreatedAt   time.Time `json:"created_at"`
	Applied     bool      `json:"applied"`
}

type savingsResponse struct {
	UserID            string          `json:"user_id"`
	TotalSavings      string          `json:"total_savings"`
	TotalSavingsCents int64           `json:"total_savings_cents"`
	Entries           []entryResponse `json:"entries"`
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		if err := s.deps.Pinger.Ping(ctx); err != nil {
			log.FromContext(r.Context()).WarnContext(r.Context(), "Readiness check failed", log.FieldError, err)
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// handleReconcile runs a reconciliation synchronously. The run is detached
// from the caller's connection so a client timeout does not cut it short.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())
	if s.deps.Runner == nil {
		writeError(w, http.StatusServiceUnavailable, "reconciliation is not configured")
		return
	}

	sum, err := s.deps.Runner.RunOnce(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, worker.ErrRunInProgress):
		writeError(w, http.StatusConflict, err.Error())
	case err != nil:
		logger.ErrorContext(r.Context(), "Manual reconciliation failed",
			log.FieldRunID, sum.RunID,
			log.FieldError, err)
		writeJSON(w, http.StatusServiceUnavailable, newSummaryResponse(sum))
	default:
		logger.InfoContext(r.Context(), "Manual reconciliation complete",
			log.FieldRunID, sum.RunID,
			log.FieldMonth, sum.Month,
			"status", sum.Status())
		writeJSON(w, http.StatusOK, newSummaryResponse(sum))
	}
}

func (s *Server) handleLastRun(w http.ResponseWriter, r *http.Request) {
	if s.deps.Runner == nil {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	sum, ok := s.deps.Runner.LastSummary()
	if !ok {
		writeError(w, http.StatusNotFound, "no run recorded")
		return
	}
	writeJSON(w, http.StatusOK, newSummaryResponse(sum))
}

func (s *Server) handleUserSavings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := sanitizeInput(r.PathValue("id"))
	if userID == "" {
		writeError(w, http.StatusBadRequest, "missing user id")
		return
	}

	user, err := s.deps.Users.GetUser(ctx, userID)
	if err != nil {
		s.storeError(w, r, "get user", err)
		return
	}
	entries, err := s.deps.Ledger.ListEntries(ctx, userID)
	if err != nil {
		s.storeError(w, r, "list ledger entries", err)
		return
	}

	resp := savingsResponse{
		UserID:            user.ID,
		TotalSavings:      user.TotalSavings.String(),
		TotalSavingsCents: user.TotalSavings.Cents,
		Entries:           make([]entryResponse, 0, len(entries)),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryResponse{
			Month:       e.Month.String(),
			Saving:      e.Saving.String(),
			SavingCents: e.Saving.Cents,
			CreatedAt:   e.CreatedAt,
			Applied:     e.Applied,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) storeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case errors.Is(err, core.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "user not found")
	case errors.Is(err, core.ErrStoreUnavailable):
		log.FromContext(r.Context()).WarnContext(r.Context(), "Store unavailable", log.FieldOperation, op, log.FieldError, err)
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Store error", log.FieldOperation, op, log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
