package api

import (
	"bytes"
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/website-growth-analyzer/internal/analysis"
	"github.com/JakeFAU/website-growth-analyzer/internal/report"
)

const adminTimeout = 10 * time.Second

// adminHandler exposes read-only lead reporting endpoints.
type adminHandler struct {
	store   analysis.LeadStore
	clock   analysis.Clock
	timeout time.Duration
	logger  *zap.Logger
}

func newAdminHandler(store analysis.LeadStore, clock analysis.Clock, logger *zap.Logger) *adminHandler {
	return &adminHandler{
		store:   store,
		clock:   clock,
		timeout: adminTimeout,
		logger:  logger,
	}
}

type leadsResponse struct {
	Success bool                  `json:"success"`
	Stats   analysis.Stats        `json:"stats"`
	Recent  []analysis.LeadRecord `json:"recent"`
}

// Leads handles GET /admin/leads. Store failures yield zeroed stats.
func (h *adminHandler) Leads(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Lead store unavailable", "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats := h.store.Stats(ctx)
	recent := nonNil(stats.Recent)
	stats.Recent = nil
	writeJSON(w, http.StatusOK, leadsResponse{Success: true, Stats: stats, Recent: recent})
}

// Export handles GET /admin/leads/export and streams every lead as CSV.
func (h *adminHandler) Export(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusServiceUnavailable, "Lead store unavailable", "")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	leads, err := h.store.List(ctx)
	if err != nil {
		h.logger.Error("list leads failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to export leads", "")
		return
	}
	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, leads); err != nil {
		h.logger.Error("render leads csv failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to export leads", "")
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+report.Filename(h.clock.Now())+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		h.logger.Warn("write leads csv failed", zap.Error(err))
	}
}

// Health handles GET /admin/health and reports database connectivity.
func (h *adminHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	state := "connected"
	if h.store == nil {
		state = "disconnected"
	} else if err := h.store.Ping(ctx); err != nil {
		h.logger.Warn("lead store ping failed", zap.Error(err))
		state = "disconnected"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"database": state,
	})
}

// adminAuthMiddleware accepts the token from the X-Admin-Token header or the
// token query parameter. An empty expected token rejects every request.
func adminAuthMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := r.Header.Get("X-Admin-Token")
			if token == "" {
				token = r.URL.Query().Get("token")
			}
			if expected == "" || token == "" ||
				subtle.ConstantTimeCompare([]byte(token), []byte(expected)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
