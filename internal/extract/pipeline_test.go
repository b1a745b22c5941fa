package extract

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/engram/internal/dedup"
	"github.com/felixgeelhaar/engram/internal/embed"
	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/provider"
	"github.com/felixgeelhaar/engram/internal/store"
)

// fakeEmbedder gives every text the same vector unless told otherwise, so
// similarity in pipeline tests is predictable.
type fakeEmbedder struct {
	vectors   map[string][]float32
	failTexts map[string]bool
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string, role embed.Role) ([]float32, error) {
	if f.failTexts[text] {
		return nil, memory.ErrProviderUnavailable
	}
	if vec, ok := f.vectors[text]; ok {
		return vec, nil
	}
	return []float32{1, 0, 0}, nil
}

type pipelineFixture struct {
	pipeline    *Pipeline
	store       *store.SQLiteStore
	gateStub    *provider.StubProvider
	extractStub *provider.StubProvider
	embedder    *fakeEmbedder
}

func newPipelineFixture(t *testing.T) *pipelineFixture {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "engram-pipeline-*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	s, err := store.NewSQLiteStore(filepath.Join(tmpDir, "memories.db"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	emb := &fakeEmbedder{failTexts: map[string]bool{}}
	d, err := dedup.New(s, emb, 0.85, 0.60, nil)
	if err != nil {
		t.Fatalf("dedup.New failed: %v", err)
	}

	gateStub := provider.NewStubProvider()
	extractStub := provider.NewStubProvider()

	p := NewPipeline(
		NewGate(gateStub, time.Second),
		NewExtractor(extractStub, time.Second),
		d,
		emb,
		s,
		nil,
		Config{},
	)

	return &pipelineFixture{
		pipeline:    p,
		store:       s,
		gateStub:    gateStub,
		extractStub: extractStub,
		embedder:    emb,
	}
}

func gateYes() provider.Response {
	return provider.Response{Content: `{"remember": true, "reason": "worth keeping"}`}
}

func gateNo() provider.Response {
	return provider.Response{Content: `{"remember": false, "reason": "filler"}`}
}

func TestProcessChunk(t *testing.T) {
	ctx := context.Background()

	t.Run("GateNoSkipsExtraction", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.gateStub.Responses = []provider.Response{gateNo()}

		ids, err := f.pipeline.ProcessChunk(ctx, Chunk{Session: "s", Text: "hi there"})
		if err != nil {
			t.Fatalf("ProcessChunk failed: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("Expected no memories, got %d", len(ids))
		}
		if len(f.extractStub.ChatCalls) != 0 {
			t.Error("Extractor must not run for a gated-out chunk")
		}

		c := f.pipeline.Snapshot()
		if c.ChunksProcessed != 1 || c.ChunksPassed != 0 {
			t.Errorf("Unexpected counters: %+v", c)
		}
	})

	t.Run("StoresExtractedCandidates", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.gateStub.Responses = []provider.Response{gateYes()}
		f.extractStub.Responses = []provider.Response{
			{Content: `[
				{"content": "decided on sqlite", "importance": 4, "memory_type": "decision", "topic_tags": ["db"]},
				{"content": "nightly backups run at 02:00", "importance": 3, "memory_type": "fact"}
			]`},
		}
		// Distinct vectors so the second candidate does not merge onto the first.
		f.embedder.vectors = map[string][]float32{
			"decided on sqlite":            {1, 0, 0},
			"nightly backups run at 02:00": {0, 1, 0},
		}

		ids, err := f.pipeline.ProcessChunk(ctx, Chunk{Session: "s1", Index: 0, Text: "we talked about storage"})
		if err != nil {
			t.Fatalf("ProcessChunk failed: %v", err)
		}
		if len(ids) != 2 {
			t.Fatalf("Expected 2 memory ids, got %d", len(ids))
		}

		got, err := f.store.Get(ctx, ids[0])
		if err != nil {
			t.Fatalf("Stored memory not readable: %v", err)
		}
		if got.SourceSession != "s1" {
			t.Errorf("Expected session tag, got %q", got.SourceSession)
		}

		st, _ := f.store.Stats(ctx)
		if st.RawChunks != 1 {
			t.Errorf("Expected raw chunk journal entry, got %d", st.RawChunks)
		}

		c := f.pipeline.Snapshot()
		if c.Extracted != 2 || c.Stored != 2 || c.Dropped != 0 {
			t.Errorf("Unexpected counters: %+v", c)
		}
	})

	t.Run("FailingCandidateDoesNotStopSiblings", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.gateStub.Responses = []provider.Response{gateYes()}
		f.extractStub.Responses = []provider.Response{
			{Content: `[
				{"content": "this one cannot embed", "importance": 3, "memory_type": "fact"},
				{"content": "this one is fine", "importance": 3, "memory_type": "fact"}
			]`},
		}
		f.embedder.failTexts["this one cannot embed"] = true

		ids, err := f.pipeline.ProcessChunk(ctx, Chunk{Session: "s2", Text: "mixed bag"})
		if err != nil {
			t.Fatalf("ProcessChunk failed: %v", err)
		}
		if len(ids) != 1 {
			t.Fatalf("Expected 1 surviving memory, got %d", len(ids))
		}

		got, _ := f.store.Get(ctx, ids[0])
		if got.Content != "this one is fine" {
			t.Errorf("Wrong memory survived: %q", got.Content)
		}

		c := f.pipeline.Snapshot()
		if c.Dropped != 1 || c.Stored != 1 {
			t.Errorf("Unexpected counters: %+v", c)
		}
	})

	t.Run("GateFailureSkipsChunk", func(t *testing.T) {
		f := newPipelineFixture(t)
		f.gateStub.ChatErr = errors.New("model crashed")

		_, err := f.pipeline.ProcessChunk(ctx, Chunk{Session: "s3", Text: "anything"})
		if !errors.Is(err, memory.ErrProviderUnavailable) {
			t.Errorf("Expected ErrProviderUnavailable, got %v", err)
		}

		c := f.pipeline.Snapshot()
		if c.ChunksFailed != 1 {
			t.Errorf("Expected 1 failed chunk, got %d", c.ChunksFailed)
		}
	})

	t.Run("NeighborHintsReachExtractor", func(t *testing.T) {
		f := newPipelineFixture(t)

		// Pre-store a memory; every fake vector is identical, so the
		// prefetch will find it above the floor.
		id, err := f.store.Insert(ctx, &memory.Memory{
			Content: "previously stored fact", Embedding: []float32{1, 0, 0},
			Importance: 3, Type: memory.TypeFact,
		})
		if err != nil {
			t.Fatalf("Insert failed: %v", err)
		}

		f.gateStub.Responses = []provider.Response{gateYes()}
		f.extractStub.Responses = []provider.Response{{Content: "[]"}}

		if _, err := f.pipeline.ProcessChunk(ctx, Chunk{Session: "s4", Text: "related talk"}); err != nil {
			t.Fatalf("ProcessChunk failed: %v", err)
		}

		if len(f.extractStub.ChatCalls) != 1 {
			t.Fatalf("Expected 1 extract call, got %d", len(f.extractStub.ChatCalls))
		}
		prompt := f.extractStub.ChatCalls[0]
		if !strings.Contains(prompt, "previously stored fact") {
			t.Error("Expected neighbor content in the extraction prompt")
		}
		if !strings.Contains(prompt, "[ID=") {
			t.Errorf("Expected neighbor id marker in prompt, id %d", id)
		}
	})
}

func TestReconcileDirect(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	res, err := f.pipeline.Reconcile(ctx, memory.Candidate{
		Content: "hand-written memory", Importance: 3, Type: memory.TypeFact,
	})
	if err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	if res.Outcome != dedup.OutcomeInserted {
		t.Errorf("Expected inserted, got %s", res.Outcome)
	}

	_, err = f.pipeline.Reconcile(ctx, memory.Candidate{Content: "", Importance: 3, Type: memory.TypeFact})
	if !errors.Is(err, memory.ErrMalformedCandidate) {
		t.Errorf("Expected ErrMalformedCandidate, got %v", err)
	}

	c := f.pipeline.Snapshot()
	if c.Stored != 1 {
		t.Errorf("Expected 1 stored, got %d", c.Stored)
	}
}

func TestPipelineRun(t *testing.T) {
	ctx := context.Background()
	f := newPipelineFixture(t)

	f.gateStub.Responses = []provider.Response{gateYes(), gateNo()}
	f.extractStub.Responses = []provider.Response{
		{Content: `[{"content": "streamed memory", "importance": 3, "memory_type": "fact"}]`},
	}

	chunks := make(chan Chunk)
	go func() {
		defer close(chunks)
		chunks <- Chunk{Session: "run", Index: 0, Text: "chunk with substance"}
		chunks <- Chunk{Session: "run", Index: 1, Text: "hello hello"}
	}()

	if err := f.pipeline.Run(ctx, chunks); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	c := f.pipeline.Snapshot()
	if c.ChunksProcessed != 2 {
		t.Errorf("Expected 2 processed, got %d", c.ChunksProcessed)
	}
	if c.ChunksPassed != 1 {
		t.Errorf("Expected 1 passed, got %d", c.ChunksPassed)
	}
	if c.Stored != 1 {
		t.Errorf("Expected 1 stored, got %d", c.Stored)
	}

	st, _ := f.store.Stats(ctx)
	if st.TotalMemories != 1 {
		t.Errorf("Expected 1 memory in store, got %d", st.TotalMemories)
	}
}

func TestEventBus(t *testing.T) {
	f := newPipelineFixture(t)
	f.gateStub.Responses = []provider.Response{gateYes()}
	f.extractStub.Responses = []provider.Response{
		{Content: `[{"content": "evented", "importance": 3, "memory_type": "fact"}]`},
	}

	var types []EventType
	f.pipeline.Events().SubscribeAll(func(e Event) {
		types = append(types, e.Type)
	})

	var stored int
	f.pipeline.Events().Subscribe(EventMemoryStored, func(e Event) {
		stored++
	})

	if _, err := f.pipeline.ProcessChunk(context.Background(), Chunk{Session: "ev", Text: "text"}); err != nil {
		t.Fatalf("ProcessChunk failed: %v", err)
	}

	if stored != 1 {
		t.Errorf("Expected 1 stored event, got %d", stored)
	}

	want := map[EventType]bool{EventChunkReceived: false, EventChunkPassedGate: false, EventMemoryStored: false}
	for _, typ := range types {
		if _, ok := want[typ]; ok {
			want[typ] = true
		}
	}
	for typ, seen := range want {
		if !seen {
			t.Errorf("Expected event %s to fire", typ)
		}
	}
}
