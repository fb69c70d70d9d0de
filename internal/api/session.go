package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/phone"
	"github.com/ashureev/whoareyou/internal/sms"
	"github.com/go-chi/chi/v5"
)

// SessionStarter begins an interview for a submitted phone number.
type SessionStarter interface {
	StartSession(ctx context.Context, rawPhone string) (*domain.Session, error)
}

// SessionHandler handles phone submission and status polling.
type SessionHandler struct {
	*Handler
	starter SessionStarter
	limiter *RateLimiter
}

// NewSessionHandler creates a session handler. A nil limiter disables rate limiting.
func NewSessionHandler(base *Handler, starter SessionStarter, limiter *RateLimiter) *SessionHandler {
	return &SessionHandler{Handler: base, starter: starter, limiter: limiter}
}

// RegisterRoutes registers session routes.
func (h *SessionHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/submit-phone", h.SubmitPhone)
	r.Get("/api/status/{sessionID}", h.Status)
}

type submitPhoneRequest struct {
	Phone string `json:"phone"`
}

// SubmitPhone starts (or resumes) an interview and texts the consent request.
func (h *SessionHandler) SubmitPhone(w http.ResponseWriter, r *http.Request) {
	log := logger(r)

	var req submitPhoneRequest
	if err := decodeJSON(w, r, &req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	normalized, err := phone.Normalize(req.Phone)
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid phone number")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(normalized) {
		log.Warn("Phone submission rate limited", "phone", phone.Mask(normalized))
		Error(w, http.StatusTooManyRequests, "too many requests, try again later")
		return
	}

	session, err := h.starter.StartSession(r.Context(), normalized)
	switch {
	case errors.Is(err, phone.ErrInvalid):
		Error(w, http.StatusBadRequest, "invalid phone number")
		return
	case errors.Is(err, sms.ErrNotConfigured):
		log.Error("Phone submitted but SMS is not configured")
		Error(w, http.StatusServiceUnavailable, "sms is not configured")
		return
	case err != nil:
		log.Error("Failed to start session", "phone", phone.Mask(normalized), "error", err)
		Error(w, http.StatusInternalServerError, "failed to start session")
		return
	}

	log.Info("Phone submitted", "session_id", session.ID, "state", session.State)
	JSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": session.ID,
		"statusUrl": "/api/status/" + session.ID,
		"ready":     false,
	})
}

type generationStatus struct {
	Status   domain.GenerationStatus `json:"status"`
	Attempts int                     `json:"attempts"`
	Error    string                  `json:"error,omitempty"`
}

type statusResponse struct {
	SessionID  string              `json:"sessionId"`
	State      domain.SessionState `json:"state"`
	Status     string              `json:"status"`
	Ready      bool                `json:"ready"`
	SiteID     string              `json:"siteId,omitempty"`
	SiteURL    string              `json:"siteUrl,omitempty"`
	Generation *generationStatus   `json:"generation,omitempty"`
}

// Status reports the state of a session and, once ready, its site link.
func (h *SessionHandler) Status(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "sessionID")

	session, err := h.repo.GetSession(ctx, sessionID)
	if err != nil {
		logger(r).Error("Failed to load session", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	if session == nil {
		Error(w, http.StatusNotFound, "session not found")
		return
	}

	resp := statusResponse{SessionID: session.ID, State: session.State, Status: "not ready"}

	site, err := h.repo.GetSiteBySession(ctx, session.ID)
	if err != nil {
		logger(r).Error("Failed to load site", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load site")
		return
	}
	if site != nil {
		resp.SiteID = site.ID
		resp.SiteURL = h.siteURL(site.ID)
		if session.State == domain.StateCompleted {
			resp.Status = "ready"
			resp.Ready = true
		}
	}

	task, err := h.repo.GetGeneration(ctx, session.ID)
	if err != nil {
		logger(r).Error("Failed to load generation task", "session_id", sessionID, "error", err)
	} else if task != nil {
		resp.Generation = &generationStatus{Status: task.Status, Attempts: task.Attempts, Error: task.LastError}
	}

	JSON(w, http.StatusOK, resp)
}
