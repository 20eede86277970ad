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
	"time"

	"github.com/ashureev/seven-days-calm/internal/domain"
	"github.com/ashureev/seven-days-calm/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
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
	CREATE TABLE IF NOT EXISTS users (
		user_id TEXT PRIMARY KEY,
		current_day INTEGER NOT NULL DEFAULT 0,
		last_completed_day INTEGER NOT NULL DEFAULT 0,
		prefs_json TEXT NOT NULL DEFAULT '{}',
		reminders_json TEXT NOT NULL DEFAULT '[]',
		created_at INTEGER NOT NULL,
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

// execQueryer is satisfied by *sql.DB and *sql.Conn.
type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// GetUser retrieves a user by their user ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	return getUser(ctx, s.db, userID)
}

func getUser(ctx context.Context, q execQueryer, userID string) (*domain.User, error) {
	query := `
		SELECT user_id, current_day, last_completed_day,
		       prefs_json, reminders_json, created_at, updated_at
		FROM users WHERE user_id = ?`

	row := q.QueryRowContext(ctx, query, userID)

	var user domain.User
	var prefsJSON, remindersJSON string
	var createdAt, updatedAt int64

	err := row.Scan(
		&user.UserID, &user.Challenge.CurrentDay, &user.Challenge.LastCompletedDay,
		&prefsJSON, &remindersJSON, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}

	if err := json.Unmarshal([]byte(prefsJSON), &user.Prefs); err != nil {
		return nil, fmt.Errorf("decode prefs for %s: %w", userID, err)
	}
	if err := json.Unmarshal([]byte(remindersJSON), &user.Reminders); err != nil {
		return nil, fmt.Errorf("decode reminders for %s: %w", userID, err)
	}
	if user.Prefs == nil {
		user.Prefs = map[string]any{}
	}
	if user.Reminders == nil {
		user.Reminders = []domain.Reminder{}
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	user.UpdatedAt = time.Unix(updatedAt, 0)

	return &user, nil
}

func upsertUser(ctx context.Context, q execQueryer, user *domain.User) error {
	prefs, err := json.Marshal(user.Prefs)
	if err != nil {
		return fmt.Errorf("encode prefs: %w", err)
	}
	reminders := user.Reminders
	if reminders == nil {
		reminders = []domain.Reminder{}
	}
	remindersJSON, err := json.Marshal(reminders)
	if err != nil {
		return fmt.Errorf("encode reminders: %w", err)
	}

	query := `
	INSERT INTO users (user_id, current_day, last_completed_day, prefs_json, reminders_json, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_id) DO UPDATE SET
		current_day = excluded.current_day,
		last_completed_day = excluded.last_completed_day,
		prefs_json = excluded.prefs_json,
		reminders_json = excluded.reminders_json,
		updated_at = excluded.updated_at`

	_, err = q.ExecContext(ctx, query,
		user.UserID, user.Challenge.CurrentDay, user.Challenge.LastCompletedDay,
		string(prefs), string(remindersJSON),
		user.CreatedAt.Unix(), user.UpdatedAt.Unix(),
	)
	return err
}

// retryOnConflict runs op, retrying with exponential backoff when SQLite
// reports a lock conflict.
func retryOnConflict(ctx context.Context, what string, op func() error) error {
	maxRetries := 3
	baseDelay := 50 * time.Millisecond

	var err error
	for i := 0; i < maxRetries; i++ {
		if err = op(); err == nil {
			return nil
		}
		if !shared.IsSQLiteConflictError(err) || i == maxRetries-1 {
			break
		}
		delay := baseDelay * time.Duration(1<<i) // 50ms, 100ms
		slog.Debug("SQLite lock conflict, retrying",
			"op", what,
			"attempt", i+1,
			"delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

// UpsertUser creates or updates a user record.
// Retries with exponential backoff when SQLite reports a lock conflict.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	err := retryOnConflict(ctx, "upsert "+user.UserID, func() error {
		return upsertUser(ctx, s.db, user)
	})
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// UpdateUser runs the read, fn and write inside a BEGIN IMMEDIATE
// transaction on a dedicated connection, so the write lock is held from the
// read onward.
func (s *SQLiteStore) UpdateUser(ctx context.Context, userID string, fn func(*domain.User) error) (*domain.User, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	err = retryOnConflict(ctx, "begin "+userID, func() error {
		_, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE")
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("begin update: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if _, rbErr := conn.ExecContext(context.Background(), "ROLLBACK"); rbErr != nil {
				slog.Debug("Rollback failed", "user_id", userID, "error", rbErr)
			}
		}
	}()

	user, err := getUser(ctx, conn, userID)
	if err != nil {
		return nil, err
	}
	created := user == nil
	if created {
		user = domain.NewUser(userID, time.Now())
	}

	if err := fn(user); err != nil {
		if !errors.Is(err, ErrNoChange) {
			return nil, err
		}
		if !created {
			return user, nil
		}
	}

	if err := upsertUser(ctx, conn, user); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("commit update: %w", err)
	}
	committed = true
	return user, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
