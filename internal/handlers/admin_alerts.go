package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/frozen-haven/api/internal/domain"
	"github.com/frozen-haven/api/internal/platform/httpx"
	"github.com/frozen-haven/api/internal/services"
)

type alertPayload struct {
	ID        string         `json:"id"`
	Message   string         `json:"message"`
	Category  string         `json:"category"`
	Priority  string         `json:"priority"`
	IsRead    bool           `json:"isRead"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	ExpiresAt time.Time      `json:"expiresAt"`
}

// AdminAlertHandlers exposes the back-office alert endpoints.
type AdminAlertHandlers struct {
	alerts services.AlertService
}

// NewAdminAlertHandlers constructs a new AdminAlertHandlers instance.
func NewAdminAlertHandlers(alerts services.AlertService) *AdminAlertHandlers {
	return &AdminAlertHandlers{alerts: alerts}
}

// Routes registers the /admin/alerts endpoints.
func (h *AdminAlertHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/alerts", h.listAlerts)
	r.Post("/alerts/{alertID}:read", h.markRead)
	r.Post("/alerts:cleanup", h.cleanup)
}

func (h *AdminAlertHandlers) listAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("alert_service_unavailable", "alert service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.AlertFilter{
		UnreadOnly: query.Get("unread") == "true",
		Category:   domain.AlertCategory(strings.TrimSpace(query.Get("category"))),
	}
	if raw := strings.TrimSpace(query.Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be an integer", http.StatusBadRequest))
			return
		}
		filter.Limit = limit
	}

	alerts, err := h.alerts.List(ctx, filter)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payloads := make([]alertPayload, 0, len(alerts))
	for _, alert := range alerts {
		payloads = append(payloads, alertPayload{
			ID:        alert.ID,
			Message:   alert.Message,
			Category:  string(alert.Category),
			Priority:  string(alert.Priority),
			IsRead:    alert.IsRead,
			Metadata:  alert.Metadata,
			CreatedAt: alert.CreatedAt,
			ExpiresAt: alert.ExpiresAt,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"alerts": payloads})
}

func (h *AdminAlertHandlers) markRead(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("alert_service_unavailable", "alert service unavailable", http.StatusServiceUnavailable))
		return
	}

	if err := h.alerts.MarkRead(ctx, chi.URLParam(r, "alertID")); err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, nil)
}

func (h *AdminAlertHandlers) cleanup(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.alerts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("alert_service_unavailable", "alert service unavailable", http.StatusServiceUnavailable))
		return
	}

	deleted, err := h.alerts.Cleanup(ctx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
