package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
)

// MemoryStore is an in-process Repository used by tests and dry runs.
// Every method copies records in and out so callers never share state.
type MemoryStore struct {
	mu          sync.Mutex
	seq         int64
	sessions    map[string]*domain.Session
	sessionSeq  map[string]int64
	messages    map[string][]*domain.Message
	sites       map[string]*domain.Site
	generations map[string]*domain.GenerationTask
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions:    make(map[string]*domain.Session),
		sessionSeq:  make(map[string]int64),
		messages:    make(map[string][]*domain.Message),
		sites:       make(map[string]*domain.Site),
		generations: make(map[string]*domain.GenerationTask),
	}
}

func copySession(s *domain.Session) *domain.Session {
	c := *s
	return &c
}

// CreateSession inserts a new session.
func (m *MemoryStore) CreateSession(_ context.Context, session *domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	if session.IsActive() {
		for _, s := range m.sessions {
			if s.Phone == session.Phone && s.IsActive() {
				return ErrActiveSessionExists
			}
		}
	}

	m.seq++
	m.sessions[session.ID] = copySession(session)
	m.sessionSeq[session.ID] = m.seq
	return nil
}

// GetSession retrieves a session by ID.
func (m *MemoryStore) GetSession(_ context.Context, id string) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return nil, nil
	}
	return copySession(s), nil
}

func (m *MemoryStore) sortedSessions(filter func(*domain.Session) bool, newestFirst bool) []*domain.Session {
	var out []*domain.Session
	for _, s := range m.sessions {
		if filter(s) {
			out = append(out, copySession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		less := a.CreatedAt.Before(b.CreatedAt) ||
			(a.CreatedAt.Equal(b.CreatedAt) && m.sessionSeq[a.ID] < m.sessionSeq[b.ID])
		if newestFirst {
			return !less
		}
		return less
	})
	return out
}

// FindSessionsByPhone returns every session for a phone, newest first.
func (m *MemoryStore) FindSessionsByPhone(_ context.Context, phone string) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedSessions(func(s *domain.Session) bool { return s.Phone == phone }, true), nil
}

// ListSessionsByState returns sessions in any of the given states, oldest first.
func (m *MemoryStore) ListSessionsByState(_ context.Context, states ...domain.SessionState) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.sortedSessions(func(s *domain.Session) bool {
		if len(states) == 0 {
			return true
		}
		for _, st := range states {
			if s.State == st {
				return true
			}
		}
		return false
	}, false), nil
}

// TransitionSession performs a compare-and-swap on (state, question index).
func (m *MemoryStore) TransitionSession(_ context.Context, id string, from domain.SessionState, fromIndex int, to domain.SessionState, toIndex int) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[id]
	if !ok {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	if s.State != from || s.QuestionIndex != fromIndex {
		return ErrStaleState
	}
	s.State = to
	s.QuestionIndex = toIndex
	s.UpdatedAt = time.Now()
	return nil
}

// StopSessionsByPhone forces every non-terminal session of a phone to STOPPED.
func (m *MemoryStore) StopSessionsByPhone(_ context.Context, phone string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, s := range m.sessions {
		if s.Phone == phone && s.IsActive() {
			s.State = domain.StateStopped
			s.UpdatedAt = time.Now()
			n++
		}
	}
	return n, nil
}

// StopActiveSessions forces every non-terminal session to STOPPED.
func (m *MemoryStore) StopActiveSessions(_ context.Context) ([]*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stopped := m.sortedSessions(func(s *domain.Session) bool { return s.IsActive() }, false)
	for _, s := range stopped {
		live := m.sessions[s.ID]
		live.State = domain.StateStopped
		live.UpdatedAt = time.Now()
	}
	return stopped, nil
}

// AppendMessage adds a message to a session transcript.
func (m *MemoryStore) AppendMessage(_ context.Context, msg *domain.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions[msg.SessionID]; !ok {
		return fmt.Errorf("session %s: %w", msg.SessionID, ErrNotFound)
	}
	c := *msg
	m.messages[msg.SessionID] = append(m.messages[msg.SessionID], &c)
	return nil
}

// ListMessages returns a session transcript ordered by creation time.
func (m *MemoryStore) ListMessages(_ context.Context, sessionID string) ([]*domain.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msgs := make([]*domain.Message, 0, len(m.messages[sessionID]))
	for _, msg := range m.messages[sessionID] {
		c := *msg
		msgs = append(msgs, &c)
	}
	domain.SortMessages(msgs)
	return msgs, nil
}

// CreateSite stores a generated site.
func (m *MemoryStore) CreateSite(_ context.Context, site *domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.sites {
		if existing.SessionID == site.SessionID {
			return ErrSiteExists
		}
	}
	c := *site
	m.sites[site.ID] = &c
	return nil
}

// GetSite retrieves a site by ID.
func (m *MemoryStore) GetSite(_ context.Context, id string) (*domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	site, ok := m.sites[id]
	if !ok {
		return nil, nil
	}
	c := *site
	return &c, nil
}

// GetSiteBySession retrieves the site generated for a session.
func (m *MemoryStore) GetSiteBySession(_ context.Context, sessionID string) (*domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, site := range m.sites {
		if site.SessionID == sessionID {
			c := *site
			return &c, nil
		}
	}
	return nil, nil
}

// BeginGeneration claims the generation task of a session.
func (m *MemoryStore) BeginGeneration(_ context.Context, sessionID string, maxAttempts int, staleAfter time.Duration) (*domain.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	task, ok := m.generations[sessionID]
	if !ok {
		task = &domain.GenerationTask{
			SessionID: sessionID,
			Status:    domain.GenerationPending,
			Attempts:  1,
			StartedAt: now,
			UpdatedAt: now,
		}
		m.generations[sessionID] = task
		c := *task
		return &c, nil
	}

	stale := task.Stale(now, staleAfter)
	reclaimable := task.Status == domain.GenerationFailed || stale
	if !reclaimable || (maxAttempts > 0 && task.Attempts >= maxAttempts) {
		c := *task
		return &c, claimError(task, maxAttempts, stale)
	}

	task.Status = domain.GenerationPending
	task.Attempts++
	task.StartedAt = now
	task.UpdatedAt = now
	c := *task
	return &c, nil
}

// FinishGeneration records the outcome of a claimed generation task.
func (m *MemoryStore) FinishGeneration(_ context.Context, sessionID string, status domain.GenerationStatus, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.generations[sessionID]
	if !ok {
		return fmt.Errorf("generation task for %s: %w", sessionID, ErrNotFound)
	}
	task.Status = status
	task.LastError = errMsg
	task.UpdatedAt = time.Now()
	return nil
}

// GetGeneration retrieves the generation task of a session.
func (m *MemoryStore) GetGeneration(_ context.Context, sessionID string) (*domain.GenerationTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.generations[sessionID]
	if !ok {
		return nil, nil
	}
	c := *task
	return &c, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

var _ Repository = (*MemoryStore)(nil)
