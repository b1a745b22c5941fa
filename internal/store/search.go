package store

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"github.com/felixgeelhaar/engram/internal/memory"
)

// Search computes exact cosine similarity between the query vector and
// every stored record, returning up to limit hits at or above minScore in
// descending score order, ties broken by created_at descending.
//
// A brute-force scan is the intended algorithm: at tens of thousands of
// records the exact ranking is worth more than the latency an approximate
// index would save.
func (s *SQLiteStore) Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.SearchResult, error) {
	if len(vector) == 0 {
		return nil, fmt.Errorf("search requires a query vector")
	}
	if limit <= 0 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+memoryColumns+` FROM memories`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan memories: %w", err)
	}
	defer rows.Close()

	var results []memory.SearchResult
	for rows.Next() {
		m, err := scanMemory(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan memory: %w", err)
		}

		score := cosineSimilarity(vector, m.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, memory.SearchResult{Memory: *m, Similarity: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate memories: %w", err)
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		// Equal scores: prefer newer.
		return results[i].Memory.CreatedAt.After(results[j].Memory.CreatedAt)
	})

	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func cosineSimilarity(a []float32, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

func encodeVector(vector []float32) []byte {
	buf := new(bytes.Buffer)
	// binary.Write on a bytes.Buffer cannot fail for a float32 slice.
	_ = binary.Write(buf, binary.LittleEndian, vector)
	return buf.Bytes()
}

func decodeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vector); err != nil {
		return nil
	}
	return vector
}
