// Package sqlite persists conversations in a local SQLite database via
// modernc.org/sqlite. It shares the per-message wire format with the json
// package so both stores stay interchangeable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fwojciec/pulse"
	"github.com/fwojciec/pulse/json"
	_ "modernc.org/sqlite"
)

// Interface compliance check.
var _ pulse.Store = (*Store)(nil)

// Store implements [pulse.Store] on a SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at path, applies pragmas
// and ensures the schema exists.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	pragmas := []string{
		"PRAGMA foreign_keys = ON;",
		"PRAGMA busy_timeout = 5000;",
		"PRAGMA journal_mode = WAL;",
		"PRAGMA synchronous = NORMAL;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(pctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	db.SetMaxOpenConns(1)

	if err := bootstrap(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func bootstrap(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id         TEXT PRIMARY KEY,
			dataset_id TEXT,
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS messages (
			conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
			position        INTEGER NOT NULL,
			payload         JSON NOT NULL,
			PRIMARY KEY (conversation_id, position)
		);`,
	}

	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("bootstrap sqlite: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save upserts the conversation and rewrites its message rows in one
// transaction.
func (s *Store) Save(ctx context.Context, conv pulse.Conversation) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, dataset_id, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET dataset_id = excluded.dataset_id, updated_at = excluded.updated_at`,
		conv.ID, conv.DatasetID, conv.CreatedAt.UTC().Format(time.RFC3339Nano), conv.UpdatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, conv.ID); err != nil {
		return fmt.Errorf("clear messages: %w", err)
	}
	for i, msg := range conv.Messages {
		payload, err := json.MarshalMessage(msg)
		if err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (conversation_id, position, payload) VALUES (?, ?, ?)`,
			conv.ID, i, payload)
		if err != nil {
			return fmt.Errorf("insert message %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// List returns persisted conversation ids, most recently updated first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM conversations ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return ids, nil
}

// Load reads a conversation and its messages in position order. An unknown
// id maps to [pulse.ErrConversationNotFound].
func (s *Store) Load(ctx context.Context, id string) (pulse.Conversation, error) {
	var conv pulse.Conversation
	var createdAt, updatedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, dataset_id, created_at, updated_at FROM conversations WHERE id = ?`, id).
		Scan(&conv.ID, &conv.DatasetID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return pulse.Conversation{}, pulse.ErrConversationNotFound
	}
	if err != nil {
		return pulse.Conversation{}, fmt.Errorf("query conversation: %w", err)
	}
	if conv.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return pulse.Conversation{}, fmt.Errorf("parse created_at: %w", err)
	}
	if conv.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return pulse.Conversation{}, fmt.Errorf("parse updated_at: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT payload FROM messages WHERE conversation_id = ? ORDER BY position`, id)
	if err != nil {
		return pulse.Conversation{}, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return pulse.Conversation{}, fmt.Errorf("scan message: %w", err)
		}
		msg, err := json.UnmarshalMessage(payload)
		if err != nil {
			return pulse.Conversation{}, err
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return pulse.Conversation{}, fmt.Errorf("iterate messages: %w", err)
	}
	return conv, nil
}
