// Package generation turns finished interviews into sites. Each run is an
// observable task (pending, succeeded, failed) so stuck sessions can be found
// and retried.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/imagelib"
	"github.com/ashureev/whoareyou/internal/interview"
	"github.com/ashureev/whoareyou/internal/llm"
	"github.com/ashureev/whoareyou/internal/phone"
	"github.com/ashureev/whoareyou/internal/store"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// HeroImageCount is the number of hero images generated per site.
const HeroImageCount = 2

// ErrWrongState is returned when a session cannot be generated in its current state.
var ErrWrongState = errors.New("session is not ready for generation")

// Sender delivers the site link SMS.
type Sender interface {
	Send(ctx context.Context, to, body string) error
}

// Config tunes a Runner.
type Config struct {
	Timeout      time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration // pending tasks older than this are reclaimed
	SendSiteLink bool
	SiteURL      func(siteID string) string
	Script       interview.Script
}

// Runner executes generation tasks.
type Runner struct {
	repo    store.Repository
	gen     llm.Generator
	sender  Sender
	library *imagelib.Library
	media   *MediaStore
	cfg     Config
	logger  *slog.Logger

	wg sync.WaitGroup
}

// NewRunner creates a generation runner.
func NewRunner(repo store.Repository, gen llm.Generator, sender Sender, library *imagelib.Library, media *MediaStore, cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 2 * cfg.Timeout
	}
	if cfg.SiteURL == nil {
		cfg.SiteURL = func(id string) string { return "/sites/" + id }
	}
	if cfg.Script.SiteReady == "" {
		cfg.Script = interview.DefaultScript()
	}
	return &Runner{
		repo:    repo,
		gen:     gen,
		sender:  sender,
		library: library,
		media:   media,
		cfg:     cfg,
		logger:  logger,
	}
}

// Trigger runs generation for a session in the background. It never blocks
// on the generator; Wait blocks until every triggered run has finished.
func (r *Runner) Trigger(sessionID string) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if _, err := r.Run(context.Background(), sessionID); err != nil {
			r.logRunError(sessionID, err)
		}
	}()
}

// Wait blocks until all triggered runs are done.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// WaitTimeout waits for triggered runs up to d and reports whether they all finished.
func (r *Runner) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}

func (r *Runner) logRunError(sessionID string, err error) {
	switch {
	case errors.Is(err, store.ErrGenerationInProgress), errors.Is(err, store.ErrAlreadyGenerated):
		r.logger.Info("Generation skipped", "session_id", sessionID, "reason", err)
	case errors.Is(err, store.ErrGenerationExhausted):
		r.logger.Warn("Generation attempts exhausted, session needs operator retry", "session_id", sessionID)
	default:
		r.logger.Error("Generation failed", "session_id", sessionID, "error", err)
	}
}

// Run claims and executes the generation task of a session synchronously.
func (r *Runner) Run(ctx context.Context, sessionID string) (*domain.Site, error) {
	return r.run(ctx, sessionID, r.cfg.MaxAttempts)
}

// Retry reruns generation ignoring the attempt limit. Used by operators.
func (r *Runner) Retry(ctx context.Context, sessionID string) (*domain.Site, error) {
	return r.run(ctx, sessionID, 0)
}

// GenerateNow moves an interviewing session straight to generation and runs
// it synchronously. Sessions already generating are rerun.
func (r *Runner) GenerateNow(ctx context.Context, sessionID string) (*domain.Site, error) {
	if err := r.gen.Ready(); err != nil {
		return nil, err
	}

	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, store.ErrNotFound
	}

	switch session.State {
	case domain.StateInterviewing:
		err := r.repo.TransitionSession(ctx, session.ID, domain.StateInterviewing, session.QuestionIndex,
			domain.StateGeneratingSite, session.QuestionIndex+1)
		if err != nil {
			return nil, fmt.Errorf("start generation: %w", err)
		}
	case domain.StateGeneratingSite:
	default:
		return nil, fmt.Errorf("%w: %s", ErrWrongState, session.State)
	}
	return r.run(ctx, sessionID, 0)
}

func (r *Runner) run(ctx context.Context, sessionID string, maxAttempts int) (*domain.Site, error) {
	session, err := r.repo.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil {
		return nil, store.ErrNotFound
	}
	if session.State != domain.StateGeneratingSite {
		return nil, fmt.Errorf("%w: %s", ErrWrongState, session.State)
	}

	task, err := r.repo.BeginGeneration(ctx, sessionID, maxAttempts, r.cfg.StaleAfter)
	if err != nil {
		return nil, err
	}
	log := r.logger.With("session_id", sessionID, "attempt", task.Attempts)
	log.Info("Generation started")
	started := time.Now()

	tctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	site, err := r.build(tctx, session, log)
	if err != nil {
		if tctx.Err() != nil && ctx.Err() == nil {
			err = fmt.Errorf("generation timed out after %s: %w", r.cfg.Timeout, err)
		}
		if ferr := r.repo.FinishGeneration(context.WithoutCancel(ctx), sessionID, domain.GenerationFailed, err.Error()); ferr != nil {
			log.Error("Failed to record generation failure", "error", ferr)
		}
		return nil, err
	}

	if err := r.repo.FinishGeneration(context.WithoutCancel(ctx), sessionID, domain.GenerationSucceeded, ""); err != nil {
		log.Error("Failed to record generation success", "error", err)
	}
	log.Info("Generation succeeded", "site_id", site.ID, "duration", time.Since(started))
	return site, nil
}

// build generates content and images, stores the site and completes the session.
func (r *Runner) build(ctx context.Context, session *domain.Session, log *slog.Logger) (*domain.Site, error) {
	transcript, err := r.repo.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load transcript: %w", err)
	}
	domain.SortMessages(transcript)

	content, err := r.gen.GenerateContent(ctx, transcript)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	NormalizeContent(content, transcript)

	heroes, err := r.heroImages(ctx, content, log)
	if err != nil {
		return nil, err
	}

	site := &domain.Site{
		ID:         uuid.NewString(),
		SessionID:  session.ID,
		Template:   content.Template,
		Content:    *content,
		HeroImages: heroes,
		ImageIDs:   imagelib.IDs(r.library.Pick(content.ImageTags, content.Template)),
		CreatedAt:  time.Now(),
	}
	if err := r.repo.CreateSite(ctx, site); err != nil {
		if !errors.Is(err, store.ErrSiteExists) {
			return nil, fmt.Errorf("save site: %w", err)
		}
		// An earlier attempt saved the site but did not finish the session.
		existing, gerr := r.repo.GetSiteBySession(ctx, session.ID)
		if gerr != nil || existing == nil {
			return nil, fmt.Errorf("load existing site: %w", errors.Join(err, gerr))
		}
		site = existing
	}

	stopped, err := r.complete(ctx, session)
	if err != nil {
		return nil, err
	}
	if stopped {
		log.Info("Session opted out during generation, site link not sent", "site_id", site.ID)
		return site, nil
	}

	if r.cfg.SendSiteLink {
		r.sendLink(ctx, session, site, log)
	}
	return site, nil
}

// heroImages generates the hero images concurrently. A failed image is
// replaced by a catalog image; only an expired deadline fails the run.
func (r *Runner) heroImages(ctx context.Context, content *domain.SiteContent, log *slog.Logger) ([]string, error) {
	heroes := make([]string, HeroImageCount)
	fallbacks := r.library.Fallback(content.ImageTags, content.Template, HeroImageCount)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < HeroImageCount; i++ {
		g.Go(func() error {
			ref, err := r.heroImage(gctx, content)
			if err == nil {
				heroes[i] = ref
				return nil
			}
			if gctx.Err() != nil {
				return fmt.Errorf("generate hero image %d: %w", i, gctx.Err())
			}
			log.Warn("Hero image generation failed, using catalog image", "index", i, "error", err)
			if len(fallbacks) > 0 {
				heroes[i] = fallbacks[i%len(fallbacks)].URL
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return heroes, nil
}

func (r *Runner) heroImage(ctx context.Context, content *domain.SiteContent) (string, error) {
	img, err := r.gen.GenerateImage(ctx, content.ImageTags, content.Name)
	if err != nil {
		return "", err
	}
	return r.media.Save(img)
}

// complete moves the session to COMPLETED. It reports stopped=true when the
// interviewee opted out while the site was generated; the session then stays
// STOPPED.
func (r *Runner) complete(ctx context.Context, session *domain.Session) (stopped bool, err error) {
	current := session
	for attempt := 0; attempt < 3; attempt++ {
		switch current.State {
		case domain.StateStopped:
			return true, nil
		case domain.StateCompleted:
			return false, nil
		case domain.StateGeneratingSite:
		default:
			return false, fmt.Errorf("%w: %s", ErrWrongState, current.State)
		}

		err := r.repo.TransitionSession(ctx, current.ID, domain.StateGeneratingSite, current.QuestionIndex,
			domain.StateCompleted, current.QuestionIndex)
		if err == nil {
			return false, nil
		}
		if !errors.Is(err, store.ErrStaleState) {
			return false, fmt.Errorf("complete session: %w", err)
		}

		current, err = r.repo.GetSession(ctx, session.ID)
		if err != nil {
			return false, fmt.Errorf("reload session: %w", err)
		}
		if current == nil {
			return false, store.ErrNotFound
		}
	}
	return false, fmt.Errorf("complete session: %w", store.ErrStaleState)
}

func (r *Runner) sendLink(ctx context.Context, session *domain.Session, site *domain.Site, log *slog.Logger) {
	body := r.cfg.Script.SiteReadyMessage(r.cfg.SiteURL(site.ID))
	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: session.ID,
		Direction: domain.DirectionOutbound,
		Body:      body,
		CreatedAt: time.Now(),
	}
	if err := r.repo.AppendMessage(ctx, msg); err != nil {
		log.Error("Failed to record site link message", "error", err)
		return
	}
	if err := r.sender.Send(ctx, session.Phone, body); err != nil {
		log.Error("Failed to send site link", "phone", phone.Mask(session.Phone), "error", err)
	}
}
