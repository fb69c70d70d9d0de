package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func repositories(t *testing.T) map[string]Repository {
	t.Helper()

	sqlite, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Repository{
		"sqlite": sqlite,
		"memory": NewMemory(),
	}
}

func newSession(phone string, state domain.SessionState, createdAt time.Time) *domain.Session {
	return &domain.Session{
		ID:        uuid.NewString(),
		Phone:     phone,
		State:     state,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
}

func TestRepositoryContract(t *testing.T) {
	for name, repo := range repositories(t) {
		t.Run(name, func(t *testing.T) {
			t.Run("one active session per phone", func(t *testing.T) {
				testOneActiveSession(t, repo)
			})
			t.Run("sessions by phone newest first", func(t *testing.T) {
				testSessionsNewestFirst(t, repo)
			})
			t.Run("transition compare and swap", func(t *testing.T) {
				testTransitionCAS(t, repo)
			})
			t.Run("concurrent transitions have one winner", func(t *testing.T) {
				testConcurrentTransitions(t, repo)
			})
			t.Run("stop by phone", func(t *testing.T) {
				testStopByPhone(t, repo)
			})
			t.Run("messages ordered", func(t *testing.T) {
				testMessagesOrdered(t, repo)
			})
			t.Run("sites", func(t *testing.T) {
				testSites(t, repo)
			})
			t.Run("generation tasks", func(t *testing.T) {
				testGenerationTasks(t, repo)
			})
		})
	}
}

func testOneActiveSession(t *testing.T, repo Repository) {
	ctx := context.Background()
	now := time.Now()

	first := newSession("+15550000001", domain.StateConsentPending, now)
	require.NoError(t, repo.CreateSession(ctx, first))

	second := newSession("+15550000001", domain.StateConsentPending, now.Add(time.Second))
	err := repo.CreateSession(ctx, second)
	assert.ErrorIs(t, err, ErrActiveSessionExists)

	// Terminal records may coexist with the active one.
	stopped := newSession("+15550000001", domain.StateStopped, now.Add(2*time.Second))
	require.NoError(t, repo.CreateSession(ctx, stopped))
}

func testSessionsNewestFirst(t *testing.T, repo Repository) {
	ctx := context.Background()
	now := time.Now()
	phone := "+15550000002"

	older := newSession(phone, domain.StateCompleted, now)
	newer := newSession(phone, domain.StateInterviewing, now.Add(time.Minute))
	require.NoError(t, repo.CreateSession(ctx, older))
	require.NoError(t, repo.CreateSession(ctx, newer))

	sessions, err := repo.FindSessionsByPhone(ctx, phone)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, newer.ID, sessions[0].ID)
	assert.Equal(t, newer.ID, ActiveSession(sessions).ID)

	missing, err := repo.GetSession(ctx, "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func testTransitionCAS(t *testing.T, repo Repository) {
	ctx := context.Background()
	s := newSession("+15550000003", domain.StateConsentPending, time.Now())
	require.NoError(t, repo.CreateSession(ctx, s))

	require.NoError(t, repo.TransitionSession(ctx, s.ID, domain.StateConsentPending, 0, domain.StateInterviewing, 1))

	err := repo.TransitionSession(ctx, s.ID, domain.StateConsentPending, 0, domain.StateInterviewing, 1)
	assert.ErrorIs(t, err, ErrStaleState)

	err = repo.TransitionSession(ctx, s.ID, domain.StateInterviewing, 1, domain.StateConsentPending, 0)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = repo.TransitionSession(ctx, "missing", domain.StateInterviewing, 1, domain.StateInterviewing, 2)
	assert.ErrorIs(t, err, ErrNotFound)

	got, err := repo.GetSession(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateInterviewing, got.State)
	assert.Equal(t, 1, got.QuestionIndex)
}

func testConcurrentTransitions(t *testing.T, repo Repository) {
	ctx := context.Background()
	s := newSession("+15550000004", domain.StateInterviewing, time.Now())
	s.QuestionIndex = 2
	require.NoError(t, repo.CreateSession(ctx, s))

	const workers = 8
	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := repo.TransitionSession(ctx, s.ID, domain.StateInterviewing, 2, domain.StateGeneratingSite, 3)
			if err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
				return
			}
			assert.True(t, errors.Is(err, ErrStaleState), "unexpected error: %v", err)
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
}

func testStopByPhone(t *testing.T, repo Repository) {
	ctx := context.Background()
	phone := "+15550000005"
	completed := newSession(phone, domain.StateCompleted, time.Now())
	active := newSession(phone, domain.StateInterviewing, time.Now().Add(time.Second))
	require.NoError(t, repo.CreateSession(ctx, completed))
	require.NoError(t, repo.CreateSession(ctx, active))

	n, err := repo.StopSessionsByPhone(ctx, phone)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := repo.GetSession(ctx, completed.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateCompleted, got.State)

	got, err = repo.GetSession(ctx, active.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StateStopped, got.State)
}

func testMessagesOrdered(t *testing.T, repo Repository) {
	ctx := context.Background()
	s := newSession("+15550000006", domain.StateInterviewing, time.Now())
	require.NoError(t, repo.CreateSession(ctx, s))

	base := time.Now()
	bodies := []string{"second", "first", "third"}
	offsets := []time.Duration{time.Second, 0, 2 * time.Second}
	for i, body := range bodies {
		require.NoError(t, repo.AppendMessage(ctx, &domain.Message{
			ID:        uuid.NewString(),
			SessionID: s.ID,
			Direction: domain.DirectionInbound,
			Body:      body,
			CreatedAt: base.Add(offsets[i]),
		}))
	}

	msgs, err := repo.ListMessages(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Body)
	assert.Equal(t, "second", msgs[1].Body)
	assert.Equal(t, "third", msgs[2].Body)
}

func testSites(t *testing.T, repo Repository) {
	ctx := context.Background()
	s := newSession("+15550000007", domain.StateGeneratingSite, time.Now())
	require.NoError(t, repo.CreateSession(ctx, s))

	site := &domain.Site{
		ID:         uuid.NewString(),
		SessionID:  s.ID,
		Template:   domain.TemplateCalm,
		Content:    domain.SiteContent{Name: "Alex", ImageTags: []string{"outdoors"}},
		HeroImages: []string{"/media/a.png", "/media/b.png"},
		ImageIDs:   []string{"outdoors-1"},
		CreatedAt:  time.Now(),
	}
	require.NoError(t, repo.CreateSite(ctx, site))

	dup := *site
	dup.ID = uuid.NewString()
	assert.ErrorIs(t, repo.CreateSite(ctx, &dup), ErrSiteExists)

	got, err := repo.GetSiteBySession(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, site.ID, got.ID)
	assert.Equal(t, "Alex", got.Content.Name)
	assert.Equal(t, site.HeroImages, got.HeroImages)

	byID, err := repo.GetSite(ctx, site.ID)
	require.NoError(t, err)
	require.NotNil(t, byID)
	assert.Equal(t, domain.TemplateCalm, byID.Template)
}

func testGenerationTasks(t *testing.T, repo Repository) {
	ctx := context.Background()
	s := newSession("+15550000008", domain.StateGeneratingSite, time.Now())
	require.NoError(t, repo.CreateSession(ctx, s))

	task, err := repo.BeginGeneration(ctx, s.ID, 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationPending, task.Status)
	assert.Equal(t, 1, task.Attempts)

	_, err = repo.BeginGeneration(ctx, s.ID, 2, time.Hour)
	assert.ErrorIs(t, err, ErrGenerationInProgress)

	require.NoError(t, repo.FinishGeneration(ctx, s.ID, domain.GenerationFailed, "model timeout"))

	task, err = repo.BeginGeneration(ctx, s.ID, 2, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 2, task.Attempts)

	require.NoError(t, repo.FinishGeneration(ctx, s.ID, domain.GenerationFailed, "model timeout"))
	_, err = repo.BeginGeneration(ctx, s.ID, 2, time.Hour)
	assert.ErrorIs(t, err, ErrGenerationExhausted)

	// Unlimited attempts for operator retries.
	_, err = repo.BeginGeneration(ctx, s.ID, 0, time.Hour)
	require.NoError(t, err)
	require.NoError(t, repo.FinishGeneration(ctx, s.ID, domain.GenerationSucceeded, ""))

	_, err = repo.BeginGeneration(ctx, s.ID, 0, time.Hour)
	assert.ErrorIs(t, err, ErrAlreadyGenerated)

	got, err := repo.GetGeneration(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.GenerationSucceeded, got.Status)
	assert.Equal(t, 3, got.Attempts)
}
