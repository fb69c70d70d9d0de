// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port      string
	BaseURL   string // public origin used for site links and webhook signature checks
	DBPath    string
	MediaDir  string // generated hero images, served under /media/
	ImagesDir string // curated catalog images, served under /images/

	AllowedOrigins []string // CORS origins for the JSON API

	Twilio     TwilioConfig
	GenAI      GenAIConfig
	Interview  InterviewConfig
	Generation GenerationConfig
	RateLimit  RateLimitConfig
	Timeouts   TimeoutConfig
}

// TwilioConfig holds SMS transport credentials.
type TwilioConfig struct {
	AccountSID        string
	AuthToken         string
	PhoneNumber       string
	ValidateSignature bool
	DryRun            bool
}

// Configured reports whether enough credentials are present to send SMS.
func (c TwilioConfig) Configured() bool {
	return c.AccountSID != "" && c.AuthToken != "" && c.PhoneNumber != ""
}

// GenAIConfig holds the content generator settings.
type GenAIConfig struct {
	APIKey     string
	TextModel  string
	ImageModel string
}

// InterviewConfig tunes the conversation loop.
type InterviewConfig struct {
	ReplySendDelay        time.Duration
	TransitionMaxAttempts int
	CheckInAfterTurns     int
}

// GenerationConfig tunes background site generation.
type GenerationConfig struct {
	Timeout       time.Duration
	MaxAttempts   int
	SweepInterval time.Duration
	SendSiteLink  bool
}

// RateLimitConfig bounds phone submissions.
type RateLimitConfig struct {
	SubmitLimit  int
	SubmitWindow time.Duration
}

// TimeoutConfig holds request-scoped timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Inbound     time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		BaseURL:        strings.TrimRight(getEnv("BASE_URL", "http://localhost:8080"), "/"),
		DBPath:         getEnv("DB_PATH", "./data/whoareyou.db"),
		MediaDir:       getEnv("MEDIA_DIR", "./data/media"),
		ImagesDir:      getEnv("IMAGES_DIR", "./data/images"),
		AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"*"}),

		Twilio: TwilioConfig{
			AccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
			AuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
			PhoneNumber:       getEnv("TWILIO_PHONE_NUMBER", ""),
			ValidateSignature: getEnvBool("TWILIO_VALIDATE_SIGNATURE", false),
			DryRun:            getEnvBool("SMS_DRY_RUN", false),
		},
		GenAI: GenAIConfig{
			APIKey:     getEnv("GEMINI_API_KEY", ""),
			TextModel:  getEnv("GENAI_TEXT_MODEL", "gemini-2.5-flash"),
			ImageModel: getEnv("GENAI_IMAGE_MODEL", "imagen-4.0-generate-001"),
		},
		Interview: InterviewConfig{
			ReplySendDelay:        getEnvDuration("REPLY_SEND_DELAY", 1500*time.Millisecond),
			TransitionMaxAttempts: getEnvInt("TRANSITION_MAX_ATTEMPTS", 3),
			CheckInAfterTurns:     getEnvInt("CHECK_IN_AFTER_TURNS", 4),
		},
		Generation: GenerationConfig{
			Timeout:       getEnvDuration("GENERATION_TIMEOUT", 3*time.Minute),
			MaxAttempts:   getEnvInt("GENERATION_MAX_ATTEMPTS", 3),
			SweepInterval: getEnvDuration("GENERATION_SWEEP_INTERVAL", time.Minute),
			SendSiteLink:  getEnvBool("SEND_SITE_LINK", true),
		},
		RateLimit: RateLimitConfig{
			SubmitLimit:  getEnvInt("SUBMIT_RATE_LIMIT", 3),
			SubmitWindow: getEnvDuration("SUBMIT_RATE_WINDOW", 10*time.Minute),
		},
		Timeouts: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 2*time.Second),
			Inbound:     getEnvDuration("INBOUND_TIMEOUT", 30*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
// Missing Twilio or GenAI credentials are not errors here; the operations
// that need them report it when invoked.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.MediaDir == "" {
		return fmt.Errorf("MEDIA_DIR cannot be empty")
	}
	if !strings.HasPrefix(c.BaseURL, "http://") && !strings.HasPrefix(c.BaseURL, "https://") {
		return fmt.Errorf("BASE_URL must start with http:// or https://")
	}
	if c.Twilio.ValidateSignature && c.Twilio.AuthToken == "" {
		return fmt.Errorf("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN")
	}
	if c.Interview.ReplySendDelay < 0 {
		return fmt.Errorf("REPLY_SEND_DELAY must be >= 0")
	}
	if c.Interview.TransitionMaxAttempts <= 0 {
		return fmt.Errorf("TRANSITION_MAX_ATTEMPTS must be > 0")
	}
	if c.Interview.CheckInAfterTurns < 0 {
		return fmt.Errorf("CHECK_IN_AFTER_TURNS must be >= 0")
	}
	if c.Generation.Timeout <= 0 {
		return fmt.Errorf("GENERATION_TIMEOUT must be > 0")
	}
	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("GENERATION_MAX_ATTEMPTS must be > 0")
	}
	if c.Generation.SweepInterval <= 0 {
		return fmt.Errorf("GENERATION_SWEEP_INTERVAL must be > 0")
	}
	if c.RateLimit.SubmitLimit <= 0 || c.RateLimit.SubmitWindow <= 0 {
		return fmt.Errorf("SUBMIT_RATE_LIMIT and SUBMIT_RATE_WINDOW must be > 0")
	}
	if c.Timeouts.HealthCheck <= 0 {
		return fmt.Errorf("HEALTH_CHECK_TIMEOUT must be > 0")
	}
	if c.Timeouts.Inbound <= 0 {
		return fmt.Errorf("INBOUND_TIMEOUT must be > 0")
	}
	return nil
}

// IsDevelopment returns true if the public origin is a local address.
func (c *Config) IsDevelopment() bool {
	return strings.Contains(c.BaseURL, "localhost") ||
		strings.Contains(c.BaseURL, "127.0.0.1")
}

// SiteURL returns the public link for a generated site.
func (c *Config) SiteURL(siteID string) string {
	return c.BaseURL + "/sites/" + siteID
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
