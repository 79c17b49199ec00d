// Package store provides durable persistence for the kernel's domain map.
//
// The layout is a single keyed blob: one row holding the serialized domain
// map, upserted after every completed cycle. On load the blob is deep-merged
// against compiled-in defaults by the state store, so schema evolution never
// produces an absent domain.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultStateKey is the row key used by a single-institution deployment.
const DefaultStateKey = "charter"

// SQLiteBlobStore persists the domain map in a sqlite table.
type SQLiteBlobStore struct {
	db  *sql.DB
	key string
}

// Open opens (creating if needed) a sqlite database at path.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	return db, nil
}

// NewSQLiteBlobStore prepares the schema and returns a store writing under
// the given key. An empty key falls back to DefaultStateKey.
func NewSQLiteBlobStore(db *sql.DB, key string) (*SQLiteBlobStore, error) {
	if key == "" {
		key = DefaultStateKey
	}
	s := &SQLiteBlobStore{db: db, key: key}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteBlobStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS kernel_state (
        state_key  TEXT PRIMARY KEY,
        domains    JSON NOT NULL,
        updated_at DATETIME NOT NULL
    );`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Save upserts the serialized domain map under the store's key.
func (s *SQLiteBlobStore) Save(ctx context.Context, domains map[string]map[string]any) error {
	blob, err := json.Marshal(domains)
	if err != nil {
		return fmt.Errorf("store: marshal domains: %w", err)
	}
	query := `
        INSERT INTO kernel_state (state_key, domains, updated_at)
        VALUES (?, ?, ?)
        ON CONFLICT(state_key) DO UPDATE SET
            domains = excluded.domains,
            updated_at = excluded.updated_at
    `
	_, err = s.db.ExecContext(ctx, query, s.key, string(blob), time.Now().UTC())
	return err
}

// Load returns the stored domain map, or nil when nothing has been saved
// yet. Callers merge the result over defaults at state-store construction.
func (s *SQLiteBlobStore) Load(ctx context.Context) (map[string]map[string]any, error) {
	var blob string
	query := `SELECT domains FROM kernel_state WHERE state_key = ?`
	err := s.db.QueryRowContext(ctx, query, s.key).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var domains map[string]map[string]any
	if err := json.Unmarshal([]byte(blob), &domains); err != nil {
		return nil, fmt.Errorf("store: unmarshal domains: %w", err)
	}
	return domains, nil
}
