package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/frozen-haven/api/internal/platform/httpx"
)

// ReadinessCheck reports whether a downstream dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

// HealthHandlers exposes liveness and readiness endpoints.
type HealthHandlers struct {
	startedAt time.Time
	checks    []ReadinessCheck
}

// NewHealthHandlers constructs health handlers with optional readiness checks.
func NewHealthHandlers(checks ...ReadinessCheck) *HealthHandlers {
	return &HealthHandlers{
		startedAt: time.Now().UTC(),
		checks:    checks,
	}
}

// Healthz reports process liveness.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(h.startedAt).String(),
	})
}

// Readyz runs the readiness checks against downstream dependencies.
func (h *HealthHandlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	for _, check := range h.checks {
		if check == nil {
			continue
		}
		if err := check(ctx); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("not_ready", "dependency unavailable", http.StatusServiceUnavailable))
			return
		}
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}
