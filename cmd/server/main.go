// whoareyou - SMS friend interview server
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/whoareyou/internal/api"
	"github.com/ashureev/whoareyou/internal/config"
	"github.com/ashureev/whoareyou/internal/generation"
	"github.com/ashureev/whoareyou/internal/imagelib"
	"github.com/ashureev/whoareyou/internal/interview"
	"github.com/ashureev/whoareyou/internal/llm"
	"github.com/ashureev/whoareyou/internal/middleware"
	"github.com/ashureev/whoareyou/internal/sms"
	"github.com/ashureev/whoareyou/internal/store"
	"github.com/ashureev/whoareyou/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
)

// generationDrainTimeout bounds how long shutdown waits for running generations.
const generationDrainTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "base_url", cfg.BaseURL, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	sender := sms.New(cfg.Twilio, logger)

	var gen llm.Generator = llm.Unconfigured{}
	if cfg.GenAI.APIKey != "" {
		client, err := llm.NewGenAIClient(context.Background(), cfg.GenAI.APIKey, cfg.GenAI.TextModel, cfg.GenAI.ImageModel)
		if err != nil {
			slog.Error("Failed to initialize content generator", "error", err)
			os.Exit(1)
		}
		gen = client
		slog.Info("Content generator initialized", "text_model", cfg.GenAI.TextModel, "image_model", cfg.GenAI.ImageModel)
	} else {
		slog.Warn("GEMINI_API_KEY not set, interview replies and site generation are disabled")
	}

	// Initialize services.
	policy := interview.NewPolicy(gen,
		interview.WithCheckInAfter(cfg.Interview.CheckInAfterTurns),
		interview.WithPolicyLogger(logger))

	runner := generation.NewRunner(repo, gen, sender, imagelib.Default(), generation.NewMediaStore(cfg.MediaDir),
		generation.Config{
			Timeout:      cfg.Generation.Timeout,
			MaxAttempts:  cfg.Generation.MaxAttempts,
			SendSiteLink: cfg.Generation.SendSiteLink,
			SiteURL:      cfg.SiteURL,
			Script:       policy.Script(),
		}, logger)

	controller := interview.NewController(repo, policy, sender, runner, interview.ControllerConfig{
		SendDelay:   cfg.Interview.ReplySendDelay,
		MaxAttempts: cfg.Interview.TransitionMaxAttempts,
		Logger:      logger,
	})

	limiter := api.NewRateLimiter(cfg.RateLimit.SubmitLimit, cfg.RateLimit.SubmitWindow)
	defer limiter.Close()

	// Initialize handlers.
	baseHandler := api.NewHandler(repo, cfg)
	healthHandler := api.NewHealthHandler(baseHandler, sender, gen)
	webhookHandler := api.NewWebhookHandler(baseHandler, controller,
		middleware.TwilioSignature(cfg.Twilio.AuthToken, cfg.BaseURL, cfg.Twilio.ValidateSignature))
	sessionHandler := api.NewSessionHandler(baseHandler, controller, limiter)
	siteHandler := api.NewSiteHandler(baseHandler, runner)

	if cfg.Twilio.ValidateSignature {
		slog.Info("Twilio webhook signature validation enabled")
	}

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Public routes.
	healthHandler.RegisterHealth(r)
	webhookHandler.RegisterRoutes(r)
	sessionHandler.RegisterRoutes(r)
	siteHandler.RegisterRoutes(r)

	// Generated and curated images.
	r.Handle(generation.MediaPrefix+"*", http.StripPrefix(generation.MediaPrefix, http.FileServer(http.Dir(cfg.MediaDir))))
	r.Handle("/images/*", http.StripPrefix("/images/", http.FileServer(http.Dir(cfg.ImagesDir))))

	// Submission form and site pages.
	r.Handle("/*", web.Handler())

	// Create server.
	// WriteTimeout covers synchronous generation on /api/generate-site.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Generation.Timeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start generation sweeper.
	sweeperDone := generation.StartSweeper(ctx, runner, cfg.Generation.SweepInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}

	<-sweeperDone
	if !runner.WaitTimeout(generationDrainTimeout) {
		slog.Warn("Generations still running at shutdown; the sweeper will resume them on next start")
	}

	slog.Info("Server stopped successfully")
}
