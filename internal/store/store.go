// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
)

var (
	// ErrNotFound is returned by write operations that address a missing record.
	ErrNotFound = errors.New("not found")
	// ErrStaleState is returned when a conditional session update lost a race.
	ErrStaleState = errors.New("optimistic lock failed: session state changed")
	// ErrInvalidTransition is returned for transitions the state machine forbids.
	ErrInvalidTransition = errors.New("invalid session state transition")
	// ErrActiveSessionExists is returned when creating a second active session for a phone.
	ErrActiveSessionExists = errors.New("phone already has an active session")
	// ErrSiteExists is returned when a session already has a site.
	ErrSiteExists = errors.New("site already exists for session")
	// ErrGenerationInProgress is returned when a generation task is already running.
	ErrGenerationInProgress = errors.New("generation already in progress")
	// ErrAlreadyGenerated is returned when a generation task already succeeded.
	ErrAlreadyGenerated = errors.New("generation already succeeded")
	// ErrGenerationExhausted is returned when a failed task used up its attempts.
	ErrGenerationExhausted = errors.New("generation attempts exhausted")
)

// Repository defines the interface for persisting sessions, transcripts and sites.
//
// Lookups return (nil, nil) when the record does not exist.
type Repository interface {
	// CreateSession inserts a new session. Creating an active session for a
	// phone that already has one fails with ErrActiveSessionExists.
	CreateSession(ctx context.Context, session *domain.Session) error

	// GetSession retrieves a session by ID.
	GetSession(ctx context.Context, id string) (*domain.Session, error)

	// FindSessionsByPhone returns every session for a phone, newest first.
	FindSessionsByPhone(ctx context.Context, phone string) ([]*domain.Session, error)

	// ListSessionsByState returns sessions in any of the given states, oldest first.
	ListSessionsByState(ctx context.Context, states ...domain.SessionState) ([]*domain.Session, error)

	// TransitionSession moves a session to a new state and question index
	// only if it is still in the expected state and index (compare-and-swap).
	TransitionSession(ctx context.Context, id string, from domain.SessionState, fromIndex int, to domain.SessionState, toIndex int) error

	// StopSessionsByPhone forces every non-terminal session of a phone to STOPPED.
	StopSessionsByPhone(ctx context.Context, phone string) (int64, error)

	// StopActiveSessions forces every non-terminal session to STOPPED and
	// returns the affected sessions as they were before the update.
	StopActiveSessions(ctx context.Context) ([]*domain.Session, error)

	// AppendMessage adds a message to a session transcript.
	AppendMessage(ctx context.Context, msg *domain.Message) error

	// ListMessages returns a session transcript ordered by creation time.
	ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error)

	// CreateSite stores a generated site. One site per session.
	CreateSite(ctx context.Context, site *domain.Site) error

	// GetSite retrieves a site by ID.
	GetSite(ctx context.Context, id string) (*domain.Site, error)

	// GetSiteBySession retrieves the site generated for a session.
	GetSiteBySession(ctx context.Context, sessionID string) (*domain.Site, error)

	// BeginGeneration claims the generation task of a session. A new task is
	// created as pending; a failed or stale pending task is reclaimed while
	// it has attempts left (maxAttempts <= 0 means unlimited).
	BeginGeneration(ctx context.Context, sessionID string, maxAttempts int, staleAfter time.Duration) (*domain.GenerationTask, error)

	// FinishGeneration records the outcome of a claimed generation task.
	FinishGeneration(ctx context.Context, sessionID string, status domain.GenerationStatus, errMsg string) error

	// GetGeneration retrieves the generation task of a session.
	GetGeneration(ctx context.Context, sessionID string) (*domain.GenerationTask, error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the underlying resources.
	Close() error
}

// ActiveSession picks the authoritative active session from a newest-first list.
func ActiveSession(sessions []*domain.Session) *domain.Session {
	for _, s := range sessions {
		if s.IsActive() {
			return s
		}
	}
	return nil
}

// claimError maps an unclaimable task to the matching sentinel error.
func claimError(task *domain.GenerationTask, maxAttempts int, stale bool) error {
	if task.Status == domain.GenerationSucceeded {
		return ErrAlreadyGenerated
	}
	if task.Status == domain.GenerationPending && !stale {
		return ErrGenerationInProgress
	}
	if maxAttempts > 0 && task.Attempts >= maxAttempts {
		return ErrGenerationExhausted
	}
	return ErrGenerationInProgress
}
