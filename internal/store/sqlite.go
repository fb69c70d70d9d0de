package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/whoareyou/internal/domain"
	"github.com/ashureev/whoareyou/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent webhook deliveries.
	dsn := "file:" + dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		phone TEXT NOT NULL,
		state TEXT NOT NULL DEFAULT 'CONSENT_PENDING',
		question_index INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_phone ON sessions(phone, created_at);
	CREATE INDEX IF NOT EXISTS idx_sessions_state ON sessions(state);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_sessions_active_phone ON sessions(phone)
		WHERE state IN ('CONSENT_PENDING', 'INTERVIEWING', 'GENERATING_SITE');

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id),
		direction TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, created_at);

	CREATE TABLE IF NOT EXISTS sites (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL UNIQUE REFERENCES sessions(id),
		template TEXT NOT NULL,
		content_json TEXT NOT NULL,
		hero_images_json TEXT NOT NULL,
		image_ids_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS generation_tasks (
		session_id TEXT PRIMARY KEY REFERENCES sessions(id),
		status TEXT NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NOT NULL DEFAULT '',
		started_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

const sessionColumns = `id, phone, state, question_index, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var session domain.Session
	var state string
	var createdAt, updatedAt int64
	if err := row.Scan(&session.ID, &session.Phone, &state, &session.QuestionIndex, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	session.State = domain.SessionState(state)
	session.CreatedAt = time.Unix(0, createdAt)
	session.UpdatedAt = time.Unix(0, updatedAt)
	return &session, nil
}

func (s *SQLiteStore) querySessions(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// CreateSession inserts a new session.
func (s *SQLiteStore) CreateSession(ctx context.Context, session *domain.Session) error {
	query := `INSERT INTO sessions (` + sessionColumns + `) VALUES (?, ?, ?, ?, ?, ?)`
	err := shared.RetryOnConflict(ctx, s.retry, "create_session", func() error {
		_, err := s.db.ExecContext(ctx, query,
			session.ID, session.Phone, string(session.State), session.QuestionIndex,
			session.CreatedAt.UnixNano(), session.UpdatedAt.UnixNano(),
		)
		return err
	})
	if shared.IsSQLiteUniqueError(err) {
		return ErrActiveSessionExists
	}
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}
	return session, nil
}

// FindSessionsByPhone returns every session for a phone, newest first.
func (s *SQLiteStore) FindSessionsByPhone(ctx context.Context, phone string) ([]*domain.Session, error) {
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE phone = ? ORDER BY created_at DESC, rowid DESC`, phone)
}

// ListSessionsByState returns sessions in any of the given states, oldest first.
func (s *SQLiteStore) ListSessionsByState(ctx context.Context, states ...domain.SessionState) ([]*domain.Session, error) {
	if len(states) == 0 {
		return s.querySessions(ctx, `SELECT `+sessionColumns+` FROM sessions ORDER BY created_at, rowid`)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(states)), ",")
	args := make([]any, len(states))
	for i, st := range states {
		args[i] = string(st)
	}
	return s.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE state IN (`+placeholders+`) ORDER BY created_at, rowid`, args...)
}

// TransitionSession performs a compare-and-swap on (state, question_index).
func (s *SQLiteStore) TransitionSession(ctx context.Context, id string, from domain.SessionState, fromIndex int, to domain.SessionState, toIndex int) error {
	if !domain.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}

	query := `UPDATE sessions SET state = ?, question_index = ?, updated_at = ?
		WHERE id = ? AND state = ? AND question_index = ?`

	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "transition_session", func() error {
		result, err := s.db.ExecContext(ctx, query,
			string(to), toIndex, time.Now().UnixNano(), id, string(from), fromIndex)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update session state: %w", err)
	}
	if rows > 0 {
		return nil
	}

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return err
	}
	if current == nil {
		return fmt.Errorf("session %s: %w", id, ErrNotFound)
	}
	slog.Warn("TransitionSession affected 0 rows",
		"session_id", id,
		"expected_state", from,
		"actual_state", current.State,
		"expected_index", fromIndex,
		"actual_index", current.QuestionIndex,
	)
	return ErrStaleState
}

// StopSessionsByPhone forces every non-terminal session of a phone to STOPPED.
func (s *SQLiteStore) StopSessionsByPhone(ctx context.Context, phone string) (int64, error) {
	query := `UPDATE sessions SET state = ?, updated_at = ?
		WHERE phone = ? AND state IN ('CONSENT_PENDING', 'INTERVIEWING', 'GENERATING_SITE')`

	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "stop_sessions_by_phone", func() error {
		result, err := s.db.ExecContext(ctx, query, string(domain.StateStopped), time.Now().UnixNano(), phone)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("stop sessions: %w", err)
	}
	return rows, nil
}

// StopActiveSessions forces every non-terminal session to STOPPED.
func (s *SQLiteStore) StopActiveSessions(ctx context.Context) ([]*domain.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, `SELECT `+sessionColumns+` FROM sessions
		WHERE state IN ('CONSENT_PENDING', 'INTERVIEWING', 'GENERATING_SITE') ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	var stopped []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan active session: %w", err)
		}
		stopped = append(stopped, session)
	}
	if err := rows.Close(); err != nil {
		return nil, fmt.Errorf("close active session rows: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sessions SET state = ?, updated_at = ?
		WHERE state IN ('CONSENT_PENDING', 'INTERVIEWING', 'GENERATING_SITE')`,
		string(domain.StateStopped), time.Now().UnixNano()); err != nil {
		return nil, fmt.Errorf("stop active sessions: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return stopped, nil
}

// AppendMessage adds a message to a session transcript.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) error {
	query := `INSERT INTO messages (id, session_id, direction, body, created_at) VALUES (?, ?, ?, ?, ?)`
	err := shared.RetryOnConflict(ctx, s.retry, "append_message", func() error {
		_, err := s.db.ExecContext(ctx, query,
			msg.ID, msg.SessionID, string(msg.Direction), msg.Body, msg.CreatedAt.UnixNano())
		return err
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns a session transcript ordered by creation time.
func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, direction, body, created_at
		FROM messages WHERE session_id = ? ORDER BY created_at, rowid`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	var msgs []*domain.Message
	for rows.Next() {
		var msg domain.Message
		var direction string
		var createdAt int64
		if err := rows.Scan(&msg.ID, &msg.SessionID, &direction, &msg.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		msg.Direction = domain.Direction(direction)
		msg.CreatedAt = time.Unix(0, createdAt)
		msgs = append(msgs, &msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return msgs, nil
}

// CreateSite stores a generated site.
func (s *SQLiteStore) CreateSite(ctx context.Context, site *domain.Site) error {
	contentJSON, err := json.Marshal(site.Content)
	if err != nil {
		return fmt.Errorf("marshal site content: %w", err)
	}
	heroJSON, err := json.Marshal(site.HeroImages)
	if err != nil {
		return fmt.Errorf("marshal hero images: %w", err)
	}
	imageIDsJSON, err := json.Marshal(site.ImageIDs)
	if err != nil {
		return fmt.Errorf("marshal image ids: %w", err)
	}

	query := `INSERT INTO sites (id, session_id, template, content_json, hero_images_json, image_ids_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	err = shared.RetryOnConflict(ctx, s.retry, "create_site", func() error {
		_, err := s.db.ExecContext(ctx, query,
			site.ID, site.SessionID, string(site.Template),
			string(contentJSON), string(heroJSON), string(imageIDsJSON),
			site.CreatedAt.UnixNano())
		return err
	})
	if shared.IsSQLiteUniqueError(err) {
		return ErrSiteExists
	}
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

func (s *SQLiteStore) getSite(ctx context.Context, where string, arg string) (*domain.Site, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, session_id, template, content_json, hero_images_json, image_ids_json, created_at
		FROM sites WHERE `+where+` = ?`, arg)

	var site domain.Site
	var template, contentJSON, heroJSON, imageIDsJSON string
	var createdAt int64
	err := row.Scan(&site.ID, &site.SessionID, &template, &contentJSON, &heroJSON, &imageIDsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan site: %w", err)
	}

	site.Template = domain.Template(template)
	site.CreatedAt = time.Unix(0, createdAt)
	if err := json.Unmarshal([]byte(contentJSON), &site.Content); err != nil {
		return nil, fmt.Errorf("decode site content: %w", err)
	}
	if err := json.Unmarshal([]byte(heroJSON), &site.HeroImages); err != nil {
		return nil, fmt.Errorf("decode hero images: %w", err)
	}
	if err := json.Unmarshal([]byte(imageIDsJSON), &site.ImageIDs); err != nil {
		return nil, fmt.Errorf("decode image ids: %w", err)
	}
	return &site, nil
}

// GetSite retrieves a site by ID.
func (s *SQLiteStore) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	return s.getSite(ctx, "id", id)
}

// GetSiteBySession retrieves the site generated for a session.
func (s *SQLiteStore) GetSiteBySession(ctx context.Context, sessionID string) (*domain.Site, error) {
	return s.getSite(ctx, "session_id", sessionID)
}

// BeginGeneration claims the generation task of a session.
func (s *SQLiteStore) BeginGeneration(ctx context.Context, sessionID string, maxAttempts int, staleAfter time.Duration) (*domain.GenerationTask, error) {
	now := time.Now()

	var claimed bool
	err := shared.RetryOnConflict(ctx, s.retry, "begin_generation", func() error {
		result, err := s.db.ExecContext(ctx, `INSERT INTO generation_tasks
			(session_id, status, attempts, last_error, started_at, updated_at)
			VALUES (?, ?, 1, '', ?, ?) ON CONFLICT(session_id) DO NOTHING`,
			sessionID, string(domain.GenerationPending), now.UnixNano(), now.UnixNano())
		if err != nil {
			return err
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rows > 0 {
			claimed = true
			return nil
		}

		result, err = s.db.ExecContext(ctx, `UPDATE generation_tasks
			SET status = ?, attempts = attempts + 1, started_at = ?, updated_at = ?
			WHERE session_id = ?
			  AND (status = ? OR (status = ? AND updated_at < ?))
			  AND (? <= 0 OR attempts < ?)`,
			string(domain.GenerationPending), now.UnixNano(), now.UnixNano(),
			sessionID,
			string(domain.GenerationFailed), string(domain.GenerationPending), now.Add(-staleAfter).UnixNano(),
			maxAttempts, maxAttempts)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		if err != nil {
			return err
		}
		claimed = rows > 0
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("claim generation task: %w", err)
	}

	task, err := s.GetGeneration(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if task == nil {
		return nil, fmt.Errorf("generation task for %s: %w", sessionID, ErrNotFound)
	}
	if !claimed {
		return task, claimError(task, maxAttempts, task.Stale(now, staleAfter))
	}
	return task, nil
}

// FinishGeneration records the outcome of a claimed generation task.
func (s *SQLiteStore) FinishGeneration(ctx context.Context, sessionID string, status domain.GenerationStatus, errMsg string) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, "finish_generation", func() error {
		result, err := s.db.ExecContext(ctx, `UPDATE generation_tasks SET status = ?, last_error = ?, updated_at = ?
			WHERE session_id = ?`, string(status), errMsg, time.Now().UnixNano(), sessionID)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return fmt.Errorf("update generation task: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("generation task for %s: %w", sessionID, ErrNotFound)
	}
	return nil
}

// GetGeneration retrieves the generation task of a session.
func (s *SQLiteStore) GetGeneration(ctx context.Context, sessionID string) (*domain.GenerationTask, error) {
	row := s.db.QueryRowContext(ctx, `SELECT session_id, status, attempts, last_error, started_at, updated_at
		FROM generation_tasks WHERE session_id = ?`, sessionID)

	var task domain.GenerationTask
	var status string
	var startedAt, updatedAt int64
	err := row.Scan(&task.SessionID, &status, &task.Attempts, &task.LastError, &startedAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan generation task: %w", err)
	}
	task.Status = domain.GenerationStatus(status)
	task.StartedAt = time.Unix(0, startedAt)
	task.UpdatedAt = time.Unix(0, updatedAt)
	return &task, nil
}

var _ Repository = (*SQLiteStore)(nil)
