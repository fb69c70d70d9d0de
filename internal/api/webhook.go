package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ashureev/whoareyou/internal/interview"
	"github.com/go-chi/chi/v5"
)

// emptyTwiML acknowledges a webhook without asking Twilio to reply; all
// replies are sent through the REST API.
const emptyTwiML = `<?xml version="1.0" encoding="UTF-8"?><Response></Response>`

// InboundProcessor handles one inbound SMS.
type InboundProcessor interface {
	HandleInbound(ctx context.Context, from, body string) (*interview.Outcome, error)
}

// WebhookHandler receives inbound SMS from Twilio.
type WebhookHandler struct {
	*Handler
	inbound InboundProcessor
	verify  func(http.Handler) http.Handler
}

// NewWebhookHandler creates the inbound SMS handler. verify, when not nil,
// wraps the route (signature validation).
func NewWebhookHandler(base *Handler, inbound InboundProcessor, verify func(http.Handler) http.Handler) *WebhookHandler {
	return &WebhookHandler{Handler: base, inbound: inbound, verify: verify}
}

// RegisterRoutes registers the webhook route.
func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	if h.verify != nil {
		r = r.With(h.verify)
	}
	r.Post("/api/twilio/inbound", h.Inbound)
}

// Inbound processes the message and always answers 200 with empty TwiML so
// Twilio does not retry; failures are logged.
func (h *WebhookHandler) Inbound(w http.ResponseWriter, r *http.Request) {
	log := logger(r)
	defer writeTwiML(w)

	if err := r.ParseForm(); err != nil {
		log.Warn("Inbound webhook with unreadable form", "error", err)
		return
	}
	from := r.PostForm.Get("From")
	bodies, hasBody := r.PostForm["Body"]
	if from == "" || !hasBody {
		log.Warn("Inbound webhook missing From or Body", "message_sid", r.PostForm.Get("MessageSid"))
		return
	}
	body := ""
	if len(bodies) > 0 {
		body = bodies[0]
	}

	// Twilio may hang up before replies are paced out; keep going regardless.
	timeout := 30 * time.Second
	if h.cfg != nil {
		timeout = h.cfg.Timeouts.Inbound
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	outcome, err := h.inbound.HandleInbound(ctx, from, body)
	switch {
	case errors.Is(err, interview.ErrInvalidInbound):
		log.Warn("Ignoring invalid inbound message", "error", err)
	case err != nil:
		log.Error("Failed to process inbound message", "error", err)
	default:
		log.Info("Inbound message processed",
			"session_id", outcome.SessionID,
			"state", outcome.State,
			"replies", len(outcome.Replies),
			"opted_out", outcome.OptedOut,
			"generation_triggered", outcome.GenerationTriggered)
	}
}

func writeTwiML(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(emptyTwiML))
}
