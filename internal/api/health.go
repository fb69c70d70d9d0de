package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// Readiness reports whether an external dependency can serve requests.
type Readiness interface {
	Ready() error
}

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	*Handler
	sms Readiness
	llm Readiness
}

// NewHealthHandler creates a new health handler. The SMS and content
// generator checks are informational; only the database affects the status code.
func NewHealthHandler(base *Handler, sms, llm Readiness) *HealthHandler {
	return &HealthHandler{Handler: base, sms: sms, llm: llm}
}

// Health returns the health status of the API and its dependencies.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	healthCheckTimeout := 5 * time.Second
	if h.cfg != nil {
		healthCheckTimeout = h.cfg.Timeouts.HealthCheck
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	checks := map[string]string{"api": "ok"}
	status := map[string]interface{}{
		"status": "healthy",
		"checks": checks,
	}
	statusCode := http.StatusOK

	if err := h.repo.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		checks["database"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		checks["database"] = "ok"
	}

	checks["sms"] = readiness(h.sms)
	checks["generator"] = readiness(h.llm)

	JSON(w, statusCode, status)
}

func readiness(dep Readiness) string {
	if dep == nil || dep.Ready() != nil {
		return "not configured"
	}
	return "ok"
}

// RegisterHealth registers the health check route.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/health", h.Health)
}
