//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/whoareyou/internal/config"
	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/generation"
	"github.com/ashureev/whoareyou/internal/imagelib"
	"github.com/ashureev/whoareyou/internal/interview"
	"github.com/ashureev/whoareyou/internal/llm"
	"github.com/ashureev/whoareyou/internal/sms"
	"github.com/ashureev/whoareyou/internal/store"
	"github.com/go-chi/chi/v5"
)

type testEnv struct {
	repo    *store.MemoryStore
	sender  *sms.DryRun
	runner  *generation.Runner
	limiter *RateLimiter
	router  chi.Router
}

type envOptions struct {
	sender    sms.Sender
	generator llm.Generator
	limit     int
	inbound   InboundProcessor
}

func newTestEnv(t *testing.T, opts envOptions) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg := &config.Config{
		BaseURL: "https://example.com",
		Timeouts: config.TimeoutConfig{
			HealthCheck: time.Second,
			Inbound:     5 * time.Second,
		},
	}

	env := &testEnv{repo: store.NewMemory(), sender: sms.NewDryRun(logger)}
	var sender sms.Sender = env.sender
	if opts.sender != nil {
		sender = opts.sender
	}
	gen := opts.generator
	if gen == nil {
		gen = llm.NewMock()
	}
	if opts.limit == 0 {
		opts.limit = 10
	}

	env.runner = generation.NewRunner(env.repo, gen, sender, imagelib.Default(),
		generation.NewMediaStore(t.TempDir()),
		generation.Config{Timeout: 5 * time.Second, MaxAttempts: 3, SendSiteLink: true, SiteURL: cfg.SiteURL},
		logger)
	policy := interview.NewPolicy(gen, interview.WithPolicyLogger(logger))
	controller := interview.NewController(env.repo, policy, sender, env.runner, interview.ControllerConfig{Logger: logger})

	inbound := opts.inbound
	if inbound == nil {
		inbound = controller
	}

	env.limiter = NewRateLimiter(opts.limit, time.Minute)
	t.Cleanup(func() {
		env.limiter.Close()
		env.runner.Wait()
	})

	base := NewHandler(env.repo, cfg)
	r := chi.NewRouter()
	NewHealthHandler(base, sender, gen).RegisterHealth(r)
	NewWebhookHandler(base, inbound, nil).RegisterRoutes(r)
	NewSessionHandler(base, controller, env.limiter).RegisterRoutes(r)
	NewSiteHandler(base, env.runner).RegisterRoutes(r)
	env.router = r
	return env
}

func (e *testEnv) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) sms(from, body string) *httptest.ResponseRecorder {
	form := url.Values{"From": {from}, "Body": {body}}
	req := httptest.NewRequest(http.MethodPost, "/api/twilio/inbound", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var got map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return got
}

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

func TestSubmitPhone(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	w := env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "(555) 123-4567"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	got := decode(t, w)
	sessionID, _ := got["sessionId"].(string)
	if sessionID == "" {
		t.Fatalf("Expected sessionId in response, got %v", got)
	}
	if got["statusUrl"] != "/api/status/"+sessionID {
		t.Errorf("Unexpected statusUrl %v", got["statusUrl"])
	}
	if got["ready"] != false {
		t.Errorf("Expected ready=false, got %v", got["ready"])
	}

	sent := env.sender.Sent()
	if len(sent) != 1 || sent[0].To != "+15551234567" {
		t.Fatalf("Expected one consent SMS to +15551234567, got %+v", sent)
	}
	if sent[0].Body != interview.DefaultScript().Consent {
		t.Errorf("Expected consent message, got %q", sent[0].Body)
	}

	// A second submission reuses the pending session.
	w = env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "+1 555 123 4567"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if again := decode(t, w)["sessionId"]; again != sessionID {
		t.Errorf("Expected session %s to be reused, got %v", sessionID, again)
	}
}

func TestSubmitPhoneErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{limit: 1})

	if w := env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "12"}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for invalid phone, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/submit-phone", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for malformed body, got %d", w.Code)
	}

	if w := env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "5551234567"}); w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "5551234567"}); w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 after limit, got %d", w.Code)
	}
}

func TestSubmitPhoneWithoutSMS(t *testing.T) {
	env := newTestEnv(t, envOptions{sender: sms.Unconfigured{}})

	w := env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "5551234567"})
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected 503, got %d", w.Code)
	}
	sessions, _ := env.repo.FindSessionsByPhone(context.Background(), "+15551234567")
	if len(sessions) != 0 {
		t.Errorf("Expected no session to be created, got %d", len(sessions))
	}
}

type failingInbound struct{ err error }

func (f failingInbound) HandleInbound(context.Context, string, string) (*interview.Outcome, error) {
	return nil, f.err
}

func TestWebhookAlwaysAcknowledges(t *testing.T) {
	tests := []struct {
		name    string
		inbound InboundProcessor
		form    url.Values
	}{
		{"missing from", nil, url.Values{"Body": {"hi"}}},
		{"missing body", nil, url.Values{"From": {"+15551234567"}}},
		{"invalid phone", nil, url.Values{"From": {"abc"}, "Body": {"hi"}}},
		{"processing error", failingInbound{errors.New("database is locked")}, url.Values{"From": {"+15551234567"}, "Body": {"hi"}}},
		{"valid", nil, url.Values{"From": {"+15551234567"}, "Body": {"hello?"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, envOptions{inbound: tt.inbound})
			req := httptest.NewRequest(http.MethodPost, "/api/twilio/inbound", strings.NewReader(tt.form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("Expected status 200, got %d", w.Code)
			}
			if !strings.Contains(w.Body.String(), "<Response></Response>") {
				t.Errorf("Expected empty TwiML, got %q", w.Body.String())
			}
		})
	}
}

func TestInterviewOverHTTP(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	sessionID, _ := decode(t, env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "5551234567"}))["sessionId"].(string)

	env.sms("+15551234567", "yes")
	env.sms("+15551234567", "Alex")

	w := env.do(http.MethodGet, "/api/status/"+sessionID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	status := decode(t, w)
	if status["state"] != string(domain.StateInterviewing) || status["status"] != "not ready" {
		t.Fatalf("Unexpected status before generation: %v", status)
	}

	w = env.do(http.MethodPost, "/api/generate-site", map[string]string{"sessionId": sessionID})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	generated := decode(t, w)
	siteID, _ := generated["siteId"].(string)
	if generated["siteUrl"] != "https://example.com/sites/"+siteID {
		t.Errorf("Unexpected siteUrl %v", generated["siteUrl"])
	}

	status = decode(t, env.do(http.MethodGet, "/api/status/"+sessionID, nil))
	if status["status"] != "ready" || status["siteId"] != siteID {
		t.Errorf("Expected ready status with site %s, got %v", siteID, status)
	}
	if gen, _ := status["generation"].(map[string]interface{}); gen["status"] != string(domain.GenerationSucceeded) {
		t.Errorf("Expected succeeded generation, got %v", status["generation"])
	}

	w = env.do(http.MethodGet, "/api/sites/"+siteID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var site domain.Site
	if err := json.NewDecoder(w.Body).Decode(&site); err != nil {
		t.Fatalf("Failed to decode site: %v", err)
	}
	if site.Content.Name != "Alex" || site.SessionID != sessionID {
		t.Errorf("Unexpected site %+v", site)
	}

	// A completed session cannot be generated again.
	if w := env.do(http.MethodPost, "/api/generate-site", map[string]string{"sessionId": sessionID}); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for completed session, got %d", w.Code)
	}
}

func TestGenerateSiteErrors(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	sessionID, _ := decode(t, env.do(http.MethodPost, "/api/submit-phone", map[string]string{"phone": "5551234567"}))["sessionId"].(string)
	if w := env.do(http.MethodPost, "/api/generate-site", map[string]string{"sessionId": sessionID}); w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for consent pending session, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/generate-site", map[string]string{"sessionId": "missing"}); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", w.Code)
	}
	if w := env.do(http.MethodPost, "/api/generate-site", map[string]string{}); w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without sessionId, got %d", w.Code)
	}

	unconfigured := newTestEnv(t, envOptions{generator: llm.Unconfigured{}})
	if w := unconfigured.do(http.MethodPost, "/api/generate-site", map[string]string{"sessionId": "any"}); w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 without generator, got %d", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t, envOptions{})

	if w := env.do(http.MethodGet, "/api/status/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown session, got %d", w.Code)
	}
	if w := env.do(http.MethodGet, "/api/sites/missing", nil); w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown site, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, envOptions{sender: sms.Unconfigured{}})

	w := env.do(http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	got := decode(t, w)
	checks, _ := got["checks"].(map[string]interface{})
	if checks["database"] != "ok" || checks["sms"] != "not configured" || checks["generator"] != "ok" {
		t.Errorf("Unexpected checks %v", checks)
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(2, 50*time.Millisecond)
	defer rl.Close()

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("Expected first two requests to be allowed")
	}
	if rl.Allow("a") {
		t.Error("Expected third request to be limited")
	}
	if !rl.Allow("b") {
		t.Error("Expected other keys to be independent")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow("a") {
		t.Error("Expected request to be allowed after the window")
	}
}
