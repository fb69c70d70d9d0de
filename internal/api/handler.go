// Package api provides HTTP handlers for the interview service.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/whoareyou/internal/config"
	"github.com/ashureev/whoareyou/internal/store"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Handler provides common handler utilities.
type Handler struct {
	repo store.Repository
	cfg  *config.Config
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{repo: repo, cfg: cfg}
}

// siteURL returns the public link for a site, relative when no config is set.
func (h *Handler) siteURL(siteID string) string {
	if h.cfg == nil {
		return "/sites/" + siteID
	}
	return h.cfg.SiteURL(siteID)
}

// logger returns the default logger tagged with the request id.
func logger(r *http.Request) *slog.Logger {
	if id := chiMiddleware.GetReqID(r.Context()); id != "" {
		return slog.With("request_id", id)
	}
	return slog.Default()
}

// decodeJSON reads a size-limited JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
