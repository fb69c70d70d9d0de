package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/generation"
	"github.com/ashureev/whoareyou/internal/llm"
	"github.com/ashureev/whoareyou/internal/store"
	"github.com/go-chi/chi/v5"
)

// SiteGenerator generates a site on demand.
type SiteGenerator interface {
	GenerateNow(ctx context.Context, sessionID string) (*domain.Site, error)
}

// SiteHandler serves generated sites and manual generation.
type SiteHandler struct {
	*Handler
	generator SiteGenerator
}

// NewSiteHandler creates a site handler.
func NewSiteHandler(base *Handler, generator SiteGenerator) *SiteHandler {
	return &SiteHandler{Handler: base, generator: generator}
}

// RegisterRoutes registers site routes.
func (h *SiteHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/generate-site", h.GenerateSite)
	r.Get("/api/sites/{siteID}", h.GetSite)
}

type generateSiteRequest struct {
	SessionID string `json:"sessionId"`
}

// GenerateSite runs generation synchronously for an interviewing or
// generating session.
func (h *SiteHandler) GenerateSite(w http.ResponseWriter, r *http.Request) {
	log := logger(r)

	var req generateSiteRequest
	if err := decodeJSON(w, r, &req); err != nil || req.SessionID == "" {
		Error(w, http.StatusBadRequest, "sessionId is required")
		return
	}

	site, err := h.generator.GenerateNow(r.Context(), req.SessionID)
	switch {
	case errors.Is(err, llm.ErrNotConfigured):
		Error(w, http.StatusServiceUnavailable, "content generator is not configured")
		return
	case errors.Is(err, store.ErrNotFound):
		Error(w, http.StatusNotFound, "session not found")
		return
	case errors.Is(err, generation.ErrWrongState),
		errors.Is(err, store.ErrGenerationInProgress),
		errors.Is(err, store.ErrAlreadyGenerated),
		errors.Is(err, store.ErrStaleState):
		Error(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		log.Error("Manual generation failed", "session_id", req.SessionID, "error", err)
		Error(w, http.StatusInternalServerError, "generation failed")
		return
	}

	log.Info("Site generated on demand", "session_id", req.SessionID, "site_id", site.ID)
	JSON(w, http.StatusOK, map[string]interface{}{
		"siteId":  site.ID,
		"siteUrl": h.siteURL(site.ID),
		"ready":   true,
	})
}

// GetSite returns a generated site.
func (h *SiteHandler) GetSite(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	site, err := h.repo.GetSite(r.Context(), siteID)
	if err != nil {
		logger(r).Error("Failed to load site", "site_id", siteID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load site")
		return
	}
	if site == nil {
		Error(w, http.StatusNotFound, "site not found")
		return
	}
	JSON(w, http.StatusOK, site)
}
