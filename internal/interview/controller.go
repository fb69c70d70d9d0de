package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/phone"
	"github.com/ashureev/whoareyou/internal/store"
	"github.com/google/uuid"
)

// ErrInvalidInbound is returned for inbound events without a usable sender.
var ErrInvalidInbound = errors.New("invalid inbound message")

// ErrTooManyConflicts is returned when a session kept changing underneath a
// turn for every allowed attempt.
var ErrTooManyConflicts = errors.New("session transition conflicted too many times")

// OptOutKeywords stop every conversation with a phone when sent as a word.
var OptOutKeywords = []string{"stop", "stopall", "unsubscribe"}

// RestartKeyword starts a new interview after a completed one.
const RestartKeyword = "restart"

// Sender delivers outbound SMS.
type Sender interface {
	Send(ctx context.Context, to, body string) error
	Ready() error
}

// GenerationTrigger starts background site generation for a session.
type GenerationTrigger interface {
	Trigger(sessionID string)
}

// ControllerConfig tunes a Controller.
type ControllerConfig struct {
	SendDelay   time.Duration
	MaxAttempts int
	Logger      *slog.Logger
}

// Controller runs one inbound SMS through session resolution, the policy,
// persistence and dispatch.
type Controller struct {
	repo      store.Repository
	policy    *Policy
	sender    Sender
	generator GenerationTrigger
	cfg       ControllerConfig
	logger    *slog.Logger
	now       func() time.Time
}

// NewController creates a session controller.
func NewController(repo store.Repository, policy *Policy, sender Sender, generator GenerationTrigger, cfg ControllerConfig) *Controller {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Controller{
		repo:      repo,
		policy:    policy,
		sender:    sender,
		generator: generator,
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

// Outcome describes what HandleInbound did.
type Outcome struct {
	SessionID           string
	State               domain.SessionState
	QuestionIndex       int
	Replies             []string
	OptedOut            bool
	Silenced            bool
	GenerationTriggered bool
}

// HandleInbound processes one inbound message from the SMS provider.
func (c *Controller) HandleInbound(ctx context.Context, from, body string) (*Outcome, error) {
	normalized, err := phone.Normalize(from)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInbound, err)
	}
	log := c.logger.With("phone", phone.Mask(normalized))

	if ContainsPhrase(body, OptOutKeywords) {
		return c.optOut(ctx, normalized, body, log)
	}

	session, err := c.resolveSession(ctx, normalized, body)
	if err != nil {
		return nil, err
	}
	if session == nil {
		log.Info("Ignoring inbound message after opt-out")
		return &Outcome{State: domain.StateStopped, Silenced: true}, nil
	}
	log = log.With("session_id", session.ID)

	if err := c.appendMessage(ctx, session.ID, domain.DirectionInbound, body); err != nil {
		return nil, err
	}

	turn, session, won, err := c.advance(ctx, session, log)
	if err != nil {
		return nil, err
	}

	outcome := &Outcome{
		SessionID:     session.ID,
		State:         turn.NextState,
		QuestionIndex: turn.NextQuestionIndex,
		Replies:       turn.Replies,
		Silenced:      len(turn.Replies) == 0,
	}

	for _, reply := range turn.Replies {
		if err := c.appendMessage(ctx, session.ID, domain.DirectionOutbound, reply); err != nil {
			return outcome, err
		}
	}
	c.dispatch(ctx, normalized, turn.Replies, log)

	if won && turn.TriggerGeneration {
		log.Info("Interview complete, starting site generation", "question_index", turn.NextQuestionIndex)
		c.generator.Trigger(session.ID)
		outcome.GenerationTriggered = true
	}
	return outcome, nil
}

// advance runs the policy and persists its transition with a compare-and-swap,
// reloading and recomputing when a concurrent delivery got there first. won
// is false when the session was terminal and nothing was written.
func (c *Controller) advance(ctx context.Context, session *domain.Session, log *slog.Logger) (Turn, *domain.Session, bool, error) {
	for attempt := 1; attempt <= c.cfg.MaxAttempts; attempt++ {
		transcript, err := c.repo.ListMessages(ctx, session.ID)
		if err != nil {
			return Turn{}, nil, false, fmt.Errorf("load transcript: %w", err)
		}
		domain.SortMessages(transcript)

		turn := c.policy.Next(ctx, session, transcript)
		if session.State.IsTerminal() {
			return turn, session, false, nil
		}

		err = c.repo.TransitionSession(ctx, session.ID, session.State, session.QuestionIndex, turn.NextState, turn.NextQuestionIndex)
		if err == nil {
			log.Info("Session advanced",
				"from", session.State,
				"to", turn.NextState,
				"question_index", turn.NextQuestionIndex,
			)
			return turn, session, true, nil
		}
		if !errors.Is(err, store.ErrStaleState) {
			return Turn{}, nil, false, fmt.Errorf("transition session: %w", err)
		}

		log.Warn("Session changed concurrently, retrying turn", "attempt", attempt)
		reloaded, err := c.repo.GetSession(ctx, session.ID)
		if err != nil {
			return Turn{}, nil, false, fmt.Errorf("reload session: %w", err)
		}
		if reloaded == nil {
			return Turn{}, nil, false, fmt.Errorf("reload session %s: %w", session.ID, store.ErrNotFound)
		}
		session = reloaded
	}
	return Turn{}, nil, false, ErrTooManyConflicts
}

// resolveSession finds the session an inbound message belongs to. A nil
// session means the phone opted out and must not be answered.
func (c *Controller) resolveSession(ctx context.Context, phoneNumber, body string) (*domain.Session, error) {
	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		sessions, err := c.repo.FindSessionsByPhone(ctx, phoneNumber)
		if err != nil {
			return nil, fmt.Errorf("find sessions: %w", err)
		}
		if active := store.ActiveSession(sessions); active != nil {
			return active, nil
		}
		if len(sessions) > 0 {
			newest := sessions[0]
			if newest.State == domain.StateStopped {
				return nil, nil
			}
			if newest.State == domain.StateCompleted && !ContainsPhrase(body, []string{RestartKeyword}) {
				return newest, nil
			}
		}

		session, err := c.createSession(ctx, phoneNumber, domain.StateConsentPending)
		if errors.Is(err, store.ErrActiveSessionExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		c.logger.Info("Session created from inbound message", "session_id", session.ID, "phone", phone.Mask(phoneNumber))
		return session, nil
	}
	return nil, ErrTooManyConflicts
}

func (c *Controller) optOut(ctx context.Context, phoneNumber, body string, log *slog.Logger) (*Outcome, error) {
	stopped, err := c.repo.StopSessionsByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("stop sessions: %w", err)
	}

	sessions, err := c.repo.FindSessionsByPhone(ctx, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("find sessions: %w", err)
	}

	var target *domain.Session
	if len(sessions) > 0 && sessions[0].State == domain.StateStopped {
		target = sessions[0]
	} else {
		// No session to stop; record the opt-out so later texts stay unanswered.
		target, err = c.createSession(ctx, phoneNumber, domain.StateStopped)
		if err != nil {
			return nil, err
		}
	}

	if err := c.appendMessage(ctx, target.ID, domain.DirectionInbound, body); err != nil {
		log.Warn("Failed to record opt-out message", "error", err)
	}

	log.Info("Phone opted out", "stopped_sessions", stopped)
	return &Outcome{SessionID: target.ID, State: domain.StateStopped, OptedOut: true, Silenced: true}, nil
}

// StartSession begins an interview from the submission form: it reuses the
// active session of the phone or creates a new one, and sends the consent
// request. This is the only way back in after an opt-out.
func (c *Controller) StartSession(ctx context.Context, rawPhone string) (*domain.Session, error) {
	normalized, err := phone.Normalize(rawPhone)
	if err != nil {
		return nil, err
	}
	if err := c.sender.Ready(); err != nil {
		return nil, fmt.Errorf("sms transport: %w", err)
	}
	log := c.logger.With("phone", phone.Mask(normalized))

	var session *domain.Session
	for attempt := 0; attempt < c.cfg.MaxAttempts && session == nil; attempt++ {
		sessions, err := c.repo.FindSessionsByPhone(ctx, normalized)
		if err != nil {
			return nil, fmt.Errorf("find sessions: %w", err)
		}
		if active := store.ActiveSession(sessions); active != nil {
			log.Info("Reusing active session", "session_id", active.ID, "state", active.State)
			if active.State != domain.StateConsentPending {
				return active, nil
			}
			session = active
			break
		}

		created, err := c.createSession(ctx, normalized, domain.StateConsentPending)
		if errors.Is(err, store.ErrActiveSessionExists) {
			continue
		}
		if err != nil {
			return nil, err
		}
		log.Info("Session created from submission", "session_id", created.ID)
		session = created
	}
	if session == nil {
		return nil, ErrTooManyConflicts
	}

	consent := c.policy.Script().Consent
	if err := c.appendMessage(ctx, session.ID, domain.DirectionOutbound, consent); err != nil {
		return nil, err
	}
	c.dispatch(ctx, normalized, []string{consent}, log.With("session_id", session.ID))
	return session, nil
}

func (c *Controller) createSession(ctx context.Context, phoneNumber string, state domain.SessionState) (*domain.Session, error) {
	now := c.now()
	session := &domain.Session{
		ID:        uuid.NewString(),
		Phone:     phoneNumber,
		State:     state,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := c.repo.CreateSession(ctx, session); err != nil {
		if errors.Is(err, store.ErrActiveSessionExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (c *Controller) appendMessage(ctx context.Context, sessionID string, dir domain.Direction, body string) error {
	msg := &domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Direction: dir,
		Body:      body,
		CreatedAt: c.now(),
	}
	if err := c.repo.AppendMessage(ctx, msg); err != nil {
		return fmt.Errorf("append %s message: %w", dir, err)
	}
	return nil
}

// dispatch sends replies in order. A failed send is logged and the rest of
// the batch still goes out.
func (c *Controller) dispatch(ctx context.Context, to string, replies []string, log *slog.Logger) {
	for i, reply := range replies {
		if i > 0 && c.cfg.SendDelay > 0 {
			select {
			case <-time.After(c.cfg.SendDelay):
			case <-ctx.Done():
				log.Warn("Context done before all replies were sent", "sent", i, "total", len(replies))
				return
			}
		}
		if err := c.sender.Send(ctx, to, reply); err != nil {
			log.Error("Failed to send reply", "index", i, "error", err, "preview", preview(reply))
		}
	}
}

func preview(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 40 {
		return s[:40] + "..."
	}
	return s
}
