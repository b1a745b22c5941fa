package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/engram/internal/memory"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "engram-store-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := NewSQLiteStore(filepath.Join(tmpDir, "memories.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	t.Run("InsertAndGet", func(t *testing.T) {
		m := &memory.Memory{
			Content:       "Chose SQLite over Postgres for the memory store",
			Embedding:     []float32{1, 0, 0},
			Importance:    4,
			Type:          memory.TypeDecision,
			TopicTags:     []string{"storage"},
			SourceSession: "sess-1",
		}
		id, err := s.Insert(ctx, m)
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		if id == 0 {
			t.Fatal("Expected non-zero id")
		}

		got, err := s.Get(ctx, id)
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if got.Content != m.Content {
			t.Errorf("Expected content %q, got %q", m.Content, got.Content)
		}
		if got.Importance != 4 {
			t.Errorf("Expected importance 4, got %d", got.Importance)
		}
		if got.Type != memory.TypeDecision {
			t.Errorf("Expected type decision, got %s", got.Type)
		}
		if len(got.Embedding) != 3 || got.Embedding[0] != 1 {
			t.Errorf("Embedding did not round-trip: %v", got.Embedding)
		}
		if got.AccessCount != 0 {
			t.Errorf("Expected access_count 0, got %d", got.AccessCount)
		}
		if len(got.TopicTags) != 1 || got.TopicTags[0] != "storage" {
			t.Errorf("Tags did not round-trip: %v", got.TopicTags)
		}
	})

	t.Run("InsertRequiresEmbedding", func(t *testing.T) {
		_, err := s.Insert(ctx, &memory.Memory{Content: "no vector", Importance: 3, Type: memory.TypeFact})
		if err == nil {
			t.Error("Expected error inserting without embedding")
		}
	})

	t.Run("InsertClampsImportance", func(t *testing.T) {
		id, err := s.Insert(ctx, &memory.Memory{
			Content:    "overweighted",
			Embedding:  []float32{0, 1, 0},
			Importance: 9,
			Type:       memory.TypeFact,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
		got, _ := s.Get(ctx, id)
		if got.Importance != memory.MaxImportance {
			t.Errorf("Expected importance clamped to %d, got %d", memory.MaxImportance, got.Importance)
		}
	})

	t.Run("GetNotFound", func(t *testing.T) {
		_, err := s.Get(ctx, 99999)
		if !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Update", func(t *testing.T) {
		id, err := s.Insert(ctx, &memory.Memory{
			Content:    "original wording",
			Embedding:  []float32{0, 0, 1},
			Importance: 2,
			Type:       memory.TypeFact,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		content := "original wording plus the version number"
		err = s.Update(ctx, id, UpdateFields{Content: &content, Embedding: []float32{0, 0.5, 1}})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		got, _ := s.Get(ctx, id)
		if got.Content != content {
			t.Errorf("Expected updated content, got %q", got.Content)
		}
		if got.Embedding[1] != 0.5 {
			t.Errorf("Expected updated embedding, got %v", got.Embedding)
		}

		imp := 5
		if err := s.Update(ctx, id, UpdateFields{Importance: &imp}); err != nil {
			t.Fatalf("Importance update failed: %v", err)
		}
		got, _ = s.Get(ctx, id)
		if got.Importance != 5 {
			t.Errorf("Expected importance 5, got %d", got.Importance)
		}
	})

	t.Run("UpdateContentRequiresEmbedding", func(t *testing.T) {
		id, _ := s.Insert(ctx, &memory.Memory{
			Content: "pinned", Embedding: []float32{1, 1, 0}, Importance: 3, Type: memory.TypeFact,
		})

		content := "rewritten"
		if err := s.Update(ctx, id, UpdateFields{Content: &content}); err == nil {
			t.Error("Expected error updating content without embedding")
		}
		if err := s.Update(ctx, id, UpdateFields{Embedding: []float32{1, 0, 1}}); err == nil {
			t.Error("Expected error updating embedding without content")
		}

		// The rejected updates must not have touched the row.
		got, _ := s.Get(ctx, id)
		if got.Content != "pinned" {
			t.Errorf("Content changed despite rejected update: %q", got.Content)
		}
	})

	t.Run("UpdateNotFound", func(t *testing.T) {
		imp := 4
		err := s.Update(ctx, 99999, UpdateFields{Importance: &imp})
		if !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("Touch", func(t *testing.T) {
		id, _ := s.Insert(ctx, &memory.Memory{
			Content: "touched", Embedding: []float32{0.2, 0.4, 0.6}, Importance: 3, Type: memory.TypeFact,
		})

		if err := s.Touch(ctx, id); err != nil {
			t.Fatalf("Touch failed: %v", err)
		}
		got, _ := s.Get(ctx, id)
		if got.AccessCount != 1 {
			t.Errorf("Expected access_count 1, got %d", got.AccessCount)
		}
		if got.LastAccessed.IsZero() {
			t.Error("Expected last_accessed to be set")
		}

		if err := s.Touch(ctx, 99999); !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound, got %v", err)
		}
	})

	t.Run("TouchConcurrent", func(t *testing.T) {
		id, _ := s.Insert(ctx, &memory.Memory{
			Content: "hot record", Embedding: []float32{0.9, 0.1, 0}, Importance: 3, Type: memory.TypeFact,
		})

		const n = 20
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := s.Touch(ctx, id); err != nil {
					t.Errorf("Concurrent touch failed: %v", err)
				}
			}()
		}
		wg.Wait()

		got, _ := s.Get(ctx, id)
		if got.AccessCount != n {
			t.Errorf("Expected access_count %d after %d touches, got %d", n, n, got.AccessCount)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		id, _ := s.Insert(ctx, &memory.Memory{
			Content: "ephemeral", Embedding: []float32{0.5, 0.5, 0.5}, Importance: 1, Type: memory.TypeConversation,
		})

		if err := s.Delete(ctx, id); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if _, err := s.Get(ctx, id); !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound after delete, got %v", err)
		}
		if err := s.Delete(ctx, id); !errors.Is(err, memory.ErrNotFound) {
			t.Errorf("Expected ErrNotFound deleting twice, got %v", err)
		}
	})

	t.Run("RawChunks", func(t *testing.T) {
		id, err := s.SaveRawChunk(ctx, "sess-raw", "the raw conversation text", 0, []int64{1, 2})
		if err != nil {
			t.Fatalf("SaveRawChunk failed: %v", err)
		}
		if id == 0 {
			t.Error("Expected non-zero chunk id")
		}

		if _, err := s.SaveRawChunk(ctx, "sess-raw", "second chunk", 1, nil); err != nil {
			t.Fatalf("SaveRawChunk with nil ids failed: %v", err)
		}
	})

	t.Run("Config", func(t *testing.T) {
		if err := s.SetConfig("openai.api_key", "sk-test"); err != nil {
			t.Fatalf("SetConfig failed: %v", err)
		}
		val, err := s.GetConfig("openai.api_key")
		if err != nil {
			t.Fatalf("GetConfig failed: %v", err)
		}
		if val != "sk-test" {
			t.Errorf("Expected 'sk-test', got %q", val)
		}

		if err := s.SetConfig("openai.api_key", "sk-new"); err != nil {
			t.Fatalf("SetConfig overwrite failed: %v", err)
		}
		val, _ = s.GetConfig("openai.api_key")
		if val != "sk-new" {
			t.Errorf("Expected 'sk-new', got %q", val)
		}

		val, err = s.GetConfig("missing")
		if err != nil || val != "" {
			t.Errorf("Expected empty value for missing key, got %q (%v)", val, err)
		}
	})
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		_, err := s.Insert(ctx, &memory.Memory{
			Content:    "memory",
			Embedding:  []float32{float32(i), 1, 0},
			Importance: 3,
			Type:       memory.TypeFact,
			CreatedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	mems, err := s.List(ctx, 3, 0)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(mems) != 3 {
		t.Fatalf("Expected 3 memories, got %d", len(mems))
	}
	if !mems[0].CreatedAt.After(mems[1].CreatedAt) {
		t.Error("Expected newest first")
	}

	rest, err := s.List(ctx, 10, 3)
	if err != nil {
		t.Fatalf("List with offset failed: %v", err)
	}
	if len(rest) != 2 {
		t.Errorf("Expected 2 memories after offset 3, got %d", len(rest))
	}
}
