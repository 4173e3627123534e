package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/compumacy/visolearn-local/internal/domain"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		settings_json TEXT NOT NULL,
		image_json TEXT,
		conversation_json TEXT NOT NULL,
		checklist_json TEXT NOT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		degraded INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_updated ON sessions(updated_at);
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
	return s.db.Close()
}

// SaveSession creates or updates a saved session record.
func (s *SQLiteStore) SaveSession(ctx context.Context, sess *domain.Session) error {
	settings, err := json.Marshal(sess.Settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	conversation, err := json.Marshal(sess.Conversation)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	checklist, err := json.Marshal(sess.Checklist)
	if err != nil {
		return fmt.Errorf("encode checklist: %w", err)
	}
	var image interface{}
	if sess.Image != nil {
		encoded, err := json.Marshal(sess.Image)
		if err != nil {
			return fmt.Errorf("encode image: %w", err)
		}
		image = string(encoded)
	}

	query := `
	INSERT INTO sessions (id, settings_json, image_json, conversation_json, checklist_json,
		attempt_count, degraded, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		settings_json = excluded.settings_json,
		image_json = excluded.image_json,
		conversation_json = excluded.conversation_json,
		checklist_json = excluded.checklist_json,
		attempt_count = excluded.attempt_count,
		degraded = excluded.degraded,
		updated_at = excluded.updated_at`

	_, err = s.db.ExecContext(ctx, query,
		sess.ID, string(settings), image, string(conversation), string(checklist),
		sess.AttemptCount, boolToInt(sess.Degraded),
		sess.CreatedAt.Unix(), sess.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession retrieves a saved session by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, id string) (*domain.Session, error) {
	query := `
		SELECT id, settings_json, image_json, conversation_json, checklist_json,
		       attempt_count, degraded, created_at, updated_at
		FROM sessions WHERE id = ?`

	sess, err := scanSession(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}
	return sess, nil
}

// ListSessions returns saved sessions, most recently updated first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]*domain.Session, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, settings_json, image_json, conversation_json, checklist_json,
		       attempt_count, degraded, created_at, updated_at
		FROM sessions ORDER BY updated_at DESC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// DeleteSession removes a saved session.
func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// CleanupExpired removes sessions not updated within ttl.
func (s *SQLiteStore) CleanupExpired(ctx context.Context, ttl time.Duration) (int64, error) {
	cutoff := time.Now().Add(-ttl).Unix()
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleanup expired sessions: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("get rows affected: %w", err)
	}
	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*domain.Session, error) {
	var sess domain.Session
	var settings, conversation, checklist string
	var image sql.NullString
	var degraded int
	var createdAt, updatedAt int64

	err := row.Scan(
		&sess.ID, &settings, &image, &conversation, &checklist,
		&sess.AttemptCount, &degraded, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(settings), &sess.Settings); err != nil {
		return nil, fmt.Errorf("decode settings: %w", err)
	}
	if err := json.Unmarshal([]byte(conversation), &sess.Conversation); err != nil {
		return nil, fmt.Errorf("decode conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(checklist), &sess.Checklist); err != nil {
		return nil, fmt.Errorf("decode checklist: %w", err)
	}
	if image.Valid {
		var img domain.ImageData
		if err := json.Unmarshal([]byte(image.String), &img); err != nil {
			return nil, fmt.Errorf("decode image: %w", err)
		}
		sess.Image = &img
	}
	sess.Degraded = degraded != 0
	sess.CreatedAt = time.Unix(createdAt, 0)
	sess.UpdatedAt = time.Unix(updatedAt, 0)
	return &sess, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
