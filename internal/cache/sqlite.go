// Package cache is the durable local copy of the active conversation.
// It survives restarts so an unsaved chat can be restored.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"goalbreaker/internal/domain/models/goal"
)

// Keys of the two cached values
const (
	KeyHistory = "goal_cracker_chat_history"
	KeyChatID  = "goal_cracker_chat_id"
)

// ErrClosed indicates the cache database is unavailable.
var ErrClosed = errors.New("cache: closed")

const schema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Store is a small key/value table in SQLite. It is safe for concurrent use;
// Close waits for running queries.
type Store struct {
	mu sync.RWMutex
	db *sql.DB
}

// Open creates or opens the cache database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	// one writer is all a single CLI process needs
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialize cache: %w", err)
		}
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// withDB runs fn while the database is guaranteed to stay open.
func (s *Store) withDB(fn func(db *sql.DB) error) error {
	if s == nil {
		return ErrClosed
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}
	return fn(s.db)
}

// SaveHistory replaces the cached conversation.
func (s *Store) SaveHistory(ctx context.Context, turns []goal.Turn) error {
	if turns == nil {
		turns = []goal.Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	return s.set(ctx, KeyHistory, string(data))
}

// LoadHistory returns the cached conversation, or nil when there is none.
func (s *Store) LoadHistory(ctx context.Context) ([]goal.Turn, error) {
	value, ok, err := s.get(ctx, KeyHistory)
	if err != nil || !ok {
		return nil, err
	}
	var turns []goal.Turn
	if err := json.Unmarshal([]byte(value), &turns); err != nil {
		return nil, fmt.Errorf("decode cached history: %w", err)
	}
	return turns, nil
}

func (s *Store) SaveChatID(ctx context.Context, chatID string) error {
	if chatID == "" {
		return s.delete(ctx, KeyChatID)
	}
	return s.set(ctx, KeyChatID, chatID)
}

// ChatID returns the cached conversation id, or "".
func (s *Store) ChatID(ctx context.Context) (string, error) {
	value, _, err := s.get(ctx, KeyChatID)
	return value, err
}

// Clear forgets the cached conversation and its id.
func (s *Store) Clear(ctx context.Context) error {
	return s.withDB(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key IN (?, ?)`, KeyHistory, KeyChatID)
		return err
	})
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.withDB(func(db *sql.DB) error {
		return db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (s *Store) set(ctx context.Context, key, value string) error {
	return s.withDB(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO kv (key, value, updated_at)
			VALUES (?, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
		`, key, value)
		return err
	})
}

func (s *Store) delete(ctx context.Context, key string) error {
	return s.withDB(func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key)
		return err
	})
}
