package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/engram/internal/memory"
)

const memoryColumns = `id, content, embedding, importance, memory_type, topic_tags,
	source_session, created_at, last_accessed, access_count`

// Insert persists a new record together with its embedding and returns the
// assigned id. The embedding must already match the content; the store
// never computes embeddings itself.
func (s *SQLiteStore) Insert(ctx context.Context, m *memory.Memory) (int64, error) {
	if len(m.Embedding) == 0 {
		return 0, fmt.Errorf("insert requires an embedding")
	}

	typ := m.Type
	if typ == "" {
		typ = memory.TypeGeneral
	}
	tagsJSON, err := json.Marshal(tagsOrEmpty(m.TopicTags))
	if err != nil {
		return 0, fmt.Errorf("failed to marshal topic tags: %w", err)
	}

	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	query := `INSERT INTO memories
		(content, embedding, importance, memory_type, topic_tags, source_session, created_at, access_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0)`
	res, err := s.db.ExecContext(ctx, query,
		m.Content,
		encodeVector(m.Embedding),
		memory.ClampImportance(m.Importance),
		string(typ),
		string(tagsJSON),
		m.SourceSession,
		createdAt.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert memory: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read insert id: %w", err)
	}
	m.ID = id
	m.CreatedAt = createdAt
	return id, nil
}

// Get returns a single record by id, or memory.ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*memory.Memory, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+memoryColumns+` FROM memories WHERE id = ?`, id)

	m, err := scanMemory(row)
	if err == sql.ErrNoRows {
		return nil, memory.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read memory %d: %w", id, err)
	}
	return m, nil
}

// UpdateFields is a partial update. A content rewrite must arrive together
// with its refreshed embedding; both land in one statement so no reader
// can ever observe the new text with the old vector.
type UpdateFields struct {
	Content    *string
	Embedding  []float32
	Importance *int
	TopicTags  []string
}

func (s *SQLiteStore) Update(ctx context.Context, id int64, fields UpdateFields) error {
	var sets []string
	var params []interface{}

	if fields.Content != nil {
		if len(fields.Embedding) == 0 {
			return fmt.Errorf("content update requires a refreshed embedding")
		}
		sets = append(sets, "content = ?", "embedding = ?")
		params = append(params, *fields.Content, encodeVector(fields.Embedding))
	} else if len(fields.Embedding) != 0 {
		return fmt.Errorf("embedding update requires its content")
	}

	if fields.Importance != nil {
		sets = append(sets, "importance = ?")
		params = append(params, memory.ClampImportance(*fields.Importance))
	}

	if fields.TopicTags != nil {
		tagsJSON, err := json.Marshal(fields.TopicTags)
		if err != nil {
			return fmt.Errorf("failed to marshal topic tags: %w", err)
		}
		sets = append(sets, "topic_tags = ?")
		params = append(params, string(tagsJSON))
	}

	if len(sets) == 0 {
		return nil
	}

	params = append(params, id)
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET `+joinSets(sets)+` WHERE id = ?`, params...)
	if err != nil {
		return fmt.Errorf("failed to update memory %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Touch bumps access_count and sets last_accessed to now. The increment
// happens inside SQL, so concurrent touches never lose updates.
func (s *SQLiteStore) Touch(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE memories SET access_count = access_count + 1, last_accessed = ? WHERE id = ?`,
		time.Now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("failed to touch memory %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// Delete removes a record. An explicit operator action; the pipeline never
// calls it.
func (s *SQLiteStore) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete memory %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return memory.ErrNotFound
	}
	return nil
}

// List returns records with pagination, newest first.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*memory.Memory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list memories: %w", err)
	}
	defer rows.Close()

	var out []*memory.Memory
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SaveRawChunk journals an ingested chunk with the ids it produced, for
// provenance and future reprocessing.
func (s *SQLiteStore) SaveRawChunk(ctx context.Context, session, text string, index int, memoryIDs []int64) (int64, error) {
	if memoryIDs == nil {
		memoryIDs = []int64{}
	}
	idsJSON, err := json.Marshal(memoryIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal memory ids: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO raw_chunks (session, chunk_text, chunk_index, ingested_at, memory_ids) VALUES (?, ?, ?, ?, ?)`,
		session, text, index, time.Now().UnixMilli(), string(idsJSON))
	if err != nil {
		return 0, fmt.Errorf("failed to save raw chunk: %w", err)
	}
	return res.LastInsertId()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMemory(row rowScanner) (*memory.Memory, error) {
	var m memory.Memory
	var blob []byte
	var tagsJSON string
	var typ string
	var createdAt int64
	var lastAccessed sql.NullInt64

	err := row.Scan(&m.ID, &m.Content, &blob, &m.Importance, &typ, &tagsJSON,
		&m.SourceSession, &createdAt, &lastAccessed, &m.AccessCount)
	if err != nil {
		return nil, err
	}

	m.Type = memory.Type(typ)
	m.Embedding = decodeVector(blob)
	m.CreatedAt = time.UnixMilli(createdAt)
	if lastAccessed.Valid {
		m.LastAccessed = time.UnixMilli(lastAccessed.Int64)
	}
	if err := json.Unmarshal([]byte(tagsJSON), &m.TopicTags); err != nil {
		return nil, fmt.Errorf("failed to unmarshal topic tags: %w", err)
	}
	return &m, nil
}

func tagsOrEmpty(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func joinSets(sets []string) string {
	out := sets[0]
	for _, s := range sets[1:] {
		out += ", " + s
	}
	return out
}
