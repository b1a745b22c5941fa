package store

import (
	"context"
	"fmt"
)

// Stats summarizes the state of the store.
type Stats struct {
	TotalMemories int            `json:"total_memories"`
	TotalLinks    int            `json:"total_links"`
	RawChunks     int            `json:"raw_chunks"`
	ByType        map[string]int `json:"by_type"`
	ByImportance  map[int]int    `json:"by_importance"`
	AvgImportance float64        `json:"avg_importance"`
}

func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByType:       make(map[string]int),
		ByImportance: make(map[int]int),
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(importance), 0) FROM memories`)
	if err := row.Scan(&st.TotalMemories, &st.AvgImportance); err != nil {
		return nil, fmt.Errorf("failed to count memories: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM memory_links`).Scan(&st.TotalLinks); err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM raw_chunks`).Scan(&st.RawChunks); err != nil {
		return nil, fmt.Errorf("failed to count raw chunks: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT memory_type, COUNT(*) FROM memories GROUP BY memory_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to group by type: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, err
		}
		st.ByType[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	impRows, err := s.db.QueryContext(ctx, `SELECT importance, COUNT(*) FROM memories GROUP BY importance`)
	if err != nil {
		return nil, fmt.Errorf("failed to group by importance: %w", err)
	}
	defer impRows.Close()
	for impRows.Next() {
		var imp, n int
		if err := impRows.Scan(&imp, &n); err != nil {
			return nil, err
		}
		st.ByImportance[imp] = n
	}
	return st, impRows.Err()
}
