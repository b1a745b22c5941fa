package store

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/engram/internal/memory"
)

// Link records a directed, typed edge between two existing records.
// Duplicate edges are ignored.
func (s *SQLiteStore) Link(ctx context.Context, fromID, toID int64, rel memory.Relationship) error {
	if !rel.Valid() {
		return fmt.Errorf("invalid relationship %q", rel)
	}
	if fromID == toID {
		return fmt.Errorf("cannot link memory %d to itself", fromID)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO memory_links (from_id, to_id, relationship, created_at) VALUES (?, ?, ?, ?)`,
		fromID, toID, string(rel), time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to link %d -> %d: %w", fromID, toID, err)
	}
	return nil
}

// LinksFrom returns the outgoing edges of a record.
func (s *SQLiteStore) LinksFrom(ctx context.Context, id int64) ([]memory.Link, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT from_id, to_id, relationship, created_at FROM memory_links WHERE from_id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read links for %d: %w", id, err)
	}
	defer rows.Close()

	var links []memory.Link
	for rows.Next() {
		var l memory.Link
		var createdAt int64
		if err := rows.Scan(&l.FromID, &l.ToID, &l.Relationship, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		l.CreatedAt = time.UnixMilli(createdAt)
		links = append(links, l)
	}
	return links, rows.Err()
}
