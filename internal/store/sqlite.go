// Package store owns all persisted state: memory records, links between
// them, the raw chunk journal and runtime configuration. It is the single
// shared mutable resource; every mutation is an individually atomic SQL
// statement so a crash can never leave a record whose embedding disagrees
// with its content.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0750); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	queries := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA busy_timeout=5000;`,
		`PRAGMA foreign_keys=ON;`,
		`CREATE TABLE IF NOT EXISTS memories (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			content TEXT NOT NULL,
			embedding BLOB NOT NULL,
			importance INTEGER NOT NULL DEFAULT 3 CHECK(importance >= 1 AND importance <= 5),
			memory_type TEXT NOT NULL DEFAULT 'general',
			topic_tags TEXT NOT NULL DEFAULT '[]',
			source_session TEXT NOT NULL DEFAULT '',
			created_at INTEGER NOT NULL,
			last_accessed INTEGER,
			access_count INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE TABLE IF NOT EXISTS memory_links (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			from_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			to_id INTEGER NOT NULL REFERENCES memories(id) ON DELETE CASCADE,
			relationship TEXT NOT NULL,
			created_at INTEGER NOT NULL,
			UNIQUE(from_id, to_id, relationship)
		);`,
		`CREATE TABLE IF NOT EXISTS raw_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session TEXT NOT NULL DEFAULT '',
			chunk_text TEXT NOT NULL,
			chunk_index INTEGER NOT NULL DEFAULT 0,
			ingested_at INTEGER NOT NULL,
			memory_ids TEXT NOT NULL DEFAULT '[]'
		);`,
		`CREATE TABLE IF NOT EXISTS configuration (
			key TEXT PRIMARY KEY,
			value TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_type ON memories(memory_type);`,
		`CREATE INDEX IF NOT EXISTS idx_memories_created ON memories(created_at);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_links_from ON memory_links(from_id);`,
		`CREATE INDEX IF NOT EXISTS idx_memory_links_to ON memory_links(to_id);`,
		`CREATE INDEX IF NOT EXISTS idx_raw_chunks_session ON raw_chunks(session);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to init schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Configuration Implementation

func (s *SQLiteStore) SetConfig(key, value string) error {
	query := `INSERT INTO configuration (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`
	_, err := s.db.Exec(query, key, value)
	return err
}

func (s *SQLiteStore) GetConfig(key string) (string, error) {
	query := `SELECT value FROM configuration WHERE key = ?`
	row := s.db.QueryRow(query, key)
	var value string
	if err := row.Scan(&value); err != nil {
		if err == sql.ErrNoRows {
			return "", nil
		}
		return "", err
	}
	return value, nil
}
