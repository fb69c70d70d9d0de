package generation

import (
	"context"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
)

// StartSweeper runs a background goroutine that periodically finds sessions
// stuck in GENERATING_SITE and triggers their generation again. It sweeps once
// immediately so work interrupted by a restart resumes.
func StartSweeper(ctx context.Context, r *Runner, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	ticker := time.NewTicker(interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		r.logger.Info("Generation sweeper started", "interval", interval)

		r.Sweep(ctx)
		for {
			select {
			case <-ticker.C:
				r.Sweep(ctx)
			case <-ctx.Done():
				r.logger.Info("Generation sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
	return done
}

// Sweep triggers generation for every GENERATING_SITE session whose task is
// missing, failed with attempts left, or stale. It returns the triggered
// session IDs.
func (r *Runner) Sweep(ctx context.Context) []string {
	sessions, err := r.repo.ListSessionsByState(ctx, domain.StateGeneratingSite)
	if err != nil {
		r.logger.Error("Sweeper failed to list generating sessions", "error", err)
		return nil
	}

	now := time.Now()
	var triggered []string
	for _, s := range sessions {
		task, err := r.repo.GetGeneration(ctx, s.ID)
		if err != nil {
			r.logger.Error("Sweeper failed to load generation task", "session_id", s.ID, "error", err)
			continue
		}
		if !r.needsRun(task, now) {
			continue
		}
		r.logger.Info("Sweeper retrying generation", "session_id", s.ID)
		r.Trigger(s.ID)
		triggered = append(triggered, s.ID)
	}

	if len(triggered) > 0 {
		r.logger.Info("Sweeper triggered generations", "count", len(triggered))
	}
	return triggered
}

func (r *Runner) needsRun(task *domain.GenerationTask, now time.Time) bool {
	if task == nil {
		return true
	}
	switch task.Status {
	case domain.GenerationFailed:
		return r.cfg.MaxAttempts <= 0 || task.Attempts < r.cfg.MaxAttempts
	case domain.GenerationPending:
		if !task.Stale(now, r.cfg.StaleAfter) {
			return false
		}
		if r.cfg.MaxAttempts > 0 && task.Attempts >= r.cfg.MaxAttempts {
			r.logger.Warn("Stale generation task has no attempts left", "session_id", task.SessionID)
			return false
		}
		return true
	}
	return false
}
