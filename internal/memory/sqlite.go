package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Compile-time interface checks.
var (
	_ Factory = (*SQLiteDB)(nil)
	_ Store   = (*sqliteStore)(nil)
)

// SQLiteDB holds every worker's session document in a single SQLite file, one
// row per session ID.
type SQLiteDB struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and applies the
// schema.
func OpenSQLite(path string) (*SQLiteDB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("memory: create data dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("memory: open sqlite: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: ping sqlite: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("memory: exec %s: %w", p, err)
		}
	}

	s := &SQLiteDB{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("memory: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteDB) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS memory (
		session_id  TEXT PRIMARY KEY,
		document    TEXT NOT NULL,
		updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
	)`)
	return err
}

// ForSession returns the Store for one session row.
func (s *SQLiteDB) ForSession(sessionID string) (Store, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("memory: empty session id")
	}
	return &sqliteStore{db: s.db, sessionID: sessionID}, nil
}

// Close closes the database.
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

type sqliteStore struct {
	db        *sql.DB
	sessionID string
}

func (s *sqliteStore) Load(ctx context.Context) (map[string]any, error) {
	var raw string
	err := s.db.QueryRowContext(ctx,
		`SELECT document FROM memory WHERE session_id = ?`, s.sessionID).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return map[string]any{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("memory: load %s: %w", s.sessionID, err)
	}

	doc := map[string]any{}
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc == nil {
		return map[string]any{}, nil
	}
	return doc, nil
}

func (s *sqliteStore) Save(ctx context.Context, doc map[string]any) error {
	if doc == nil {
		doc = map[string]any{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("memory: marshal: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO memory (session_id, document, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id) DO UPDATE SET document = excluded.document, updated_at = CURRENT_TIMESTAMP`,
		s.sessionID, string(data))
	if err != nil {
		return fmt.Errorf("memory: save %s: %w", s.sessionID, err)
	}
	return nil
}

func (s *sqliteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM memory WHERE session_id = ?`, s.sessionID); err != nil {
		return fmt.Errorf("memory: clear %s: %w", s.sessionID, err)
	}
	return nil
}
