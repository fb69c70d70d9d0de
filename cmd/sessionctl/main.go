// sessionctl inspects and repairs interview sessions.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/ashureev/whoareyou/internal/config"
	"github.com/ashureev/whoareyou/internal/generation"
	"github.com/ashureev/whoareyou/internal/imagelib"
	"github.com/ashureev/whoareyou/internal/llm"
	"github.com/ashureev/whoareyou/internal/sms"
	"github.com/ashureev/whoareyou/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// env is what the commands operate on.
type env struct {
	repo   store.Repository
	runner *generation.Runner
	close  func() error
}

// opener builds the env for a command invocation.
type opener func(ctx context.Context) (*env, error)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if err := newRootCmd(openFromConfig(logger)).Execute(); err != nil {
		os.Exit(1)
	}
}

// openFromConfig opens the configured database and a generation runner
// wired the same way as the server.
func openFromConfig(logger *slog.Logger) opener {
	return func(ctx context.Context) (*env, error) {
		_ = godotenv.Load()

		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}

		repo, err := store.NewSQLite(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}

		var gen llm.Generator = llm.Unconfigured{}
		if cfg.GenAI.APIKey != "" {
			client, err := llm.NewGenAIClient(ctx, cfg.GenAI.APIKey, cfg.GenAI.TextModel, cfg.GenAI.ImageModel)
			if err != nil {
				_ = repo.Close()
				return nil, err
			}
			gen = client
		}

		runner := generation.NewRunner(repo, gen, sms.New(cfg.Twilio, logger), imagelib.Default(),
			generation.NewMediaStore(cfg.MediaDir),
			generation.Config{
				Timeout:      cfg.Generation.Timeout,
				MaxAttempts:  cfg.Generation.MaxAttempts,
				SendSiteLink: cfg.Generation.SendSiteLink,
				SiteURL:      cfg.SiteURL,
			}, logger)

		return &env{repo: repo, runner: runner, close: repo.Close}, nil
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:          "sessionctl",
		Short:        "Inspect and repair interview sessions",
		SilenceUsage: true,
	}
	root.AddCommand(
		newListCmd(open),
		newShowCmd(open),
		newStopAllCmd(open),
		newRetryCmd(open),
	)
	return root
}

// withEnv opens the env, runs fn and closes it.
func withEnv(cmd *cobra.Command, open opener, fn func(*env) error) error {
	e, err := open(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if e.close != nil {
			if cerr := e.close(); cerr != nil {
				slog.Error("Failed to close repository", "error", cerr)
			}
		}
	}()
	return fn(e)
}
