// Package extract turns raw conversation chunks into reconciled memories.
// It is an explicit two-stage pipeline, a cheap gate followed by a richer
// extraction, connected by channels, with every candidate handed to the
// deduplicator individually.
package extract

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/engram/internal/dedup"
	"github.com/felixgeelhaar/engram/internal/embed"
	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/observe"
)

// Chunk is a bounded span of conversation text with its session tag.
type Chunk struct {
	Session string
	Index   int
	Text    string
}

// Store is the read/journal slice of the store the pipeline needs; all
// writes go through the deduplicator.
type Store interface {
	Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.SearchResult, error)
	SaveRawChunk(ctx context.Context, session, text string, index int, memoryIDs []int64) (int64, error)
}

// Config tunes the pipeline. Zero values pick the defaults below.
type Config struct {
	NeighborLimit int     // neighbors shown to the extractor
	NeighborFloor float64 // similarity floor for the neighbor prefetch
	GateBuffer    int     // channel depth between gate and extract stages
}

func (c Config) withDefaults() Config {
	if c.NeighborLimit <= 0 {
		c.NeighborLimit = 5
	}
	if c.NeighborFloor <= 0 {
		c.NeighborFloor = 0.60
	}
	if c.GateBuffer <= 0 {
		c.GateBuffer = 16
	}
	return c
}

// Counters are the pipeline's running totals. Read them with Snapshot.
type Counters struct {
	ChunksProcessed int64 `json:"chunks_processed"`
	ChunksPassed    int64 `json:"chunks_passed_gate"`
	ChunksFailed    int64 `json:"chunks_failed"`
	Extracted       int64 `json:"memories_extracted"`
	Stored          int64 `json:"memories_stored"`
	Merged          int64 `json:"memories_merged"`
	Linked          int64 `json:"memories_linked"`
	Dropped         int64 `json:"candidates_dropped"`
}

// Pipeline wires gate, extractor and deduplicator over one store.
type Pipeline struct {
	gate      *Gate
	extractor *Extractor
	dedup     *dedup.Deduplicator
	embedder  embed.Embedder
	store     Store
	obs       *observe.Observer
	events    *EventBus
	cfg       Config

	chunksProcessed atomic.Int64
	chunksPassed    atomic.Int64
	chunksFailed    atomic.Int64
	extracted       atomic.Int64
	stored          atomic.Int64
	merged          atomic.Int64
	linked          atomic.Int64
	dropped         atomic.Int64
}

func NewPipeline(g *Gate, e *Extractor, d *dedup.Deduplicator, emb embed.Embedder, s Store, obs *observe.Observer, cfg Config) *Pipeline {
	if obs == nil {
		obs = observe.Nop()
	}
	return &Pipeline{
		gate:      g,
		extractor: e,
		dedup:     d,
		embedder:  emb,
		store:     s,
		obs:       obs,
		events:    NewEventBus(),
		cfg:       cfg.withDefaults(),
	}
}

// Events returns the pipeline's event bus for subscribers.
func (p *Pipeline) Events() *EventBus {
	return p.events
}

// Snapshot returns the current counter values.
func (p *Pipeline) Snapshot() Counters {
	return Counters{
		ChunksProcessed: p.chunksProcessed.Load(),
		ChunksPassed:    p.chunksPassed.Load(),
		ChunksFailed:    p.chunksFailed.Load(),
		Extracted:       p.extracted.Load(),
		Stored:          p.stored.Load(),
		Merged:          p.merged.Load(),
		Linked:          p.linked.Load(),
		Dropped:         p.dropped.Load(),
	}
}

// ProcessChunk runs one chunk through gate, extraction and reconciliation
// synchronously and returns the ids it stored or merged onto. A transient
// provider failure skips the whole chunk; a failing candidate never rolls
// back its siblings.
func (p *Pipeline) ProcessChunk(ctx context.Context, chunk Chunk) ([]int64, error) {
	pass, err := p.gateChunk(ctx, chunk)
	if err != nil || !pass {
		return nil, err
	}
	return p.extractChunk(ctx, chunk)
}

// Reconcile runs a single externally-built candidate through validation
// and the deduplicator, updating the pipeline counters. The CLI and the
// HTTP store endpoint use this so hand-written memories cannot bypass the
// merge/insert decision.
func (p *Pipeline) Reconcile(ctx context.Context, cand memory.Candidate) (*dedup.Result, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}

	res, err := p.dedup.Reconcile(ctx, cand)
	if err != nil {
		return nil, err
	}

	switch res.Outcome {
	case dedup.OutcomeMerged:
		p.merged.Add(1)
		p.events.publish(EventMemoryMerged, cand.SourceSession, map[string]interface{}{"id": res.ID})
	default:
		p.stored.Add(1)
		p.events.publish(EventMemoryStored, cand.SourceSession, map[string]interface{}{"id": res.ID})
		if res.LinkedTo != 0 {
			p.linked.Add(1)
			p.events.publish(EventMemoryLinked, cand.SourceSession, map[string]interface{}{"id": res.ID, "to": res.LinkedTo})
		}
	}
	return res, nil
}

// Run consumes chunks until the channel closes or the context is
// cancelled. The gate stage and the extract/reconcile stage run
// concurrently, connected by a channel; reconciliation stays the single
// writer.
func (p *Pipeline) Run(ctx context.Context, chunks <-chan Chunk) error {
	gated := make(chan Chunk, p.cfg.GateBuffer)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(gated)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case chunk, ok := <-chunks:
				if !ok {
					return nil
				}
				pass, err := p.gateChunk(ctx, chunk)
				if err != nil {
					p.obs.Log().Warn().Str("session", chunk.Session).Err(err).Msg("gate failed, chunk skipped")
					continue
				}
				if !pass {
					continue
				}
				select {
				case <-ctx.Done():
					return ctx.Err()
				case gated <- chunk:
				}
			}
		}
	})

	g.Go(func() error {
		for chunk := range gated {
			if _, err := p.extractChunk(ctx, chunk); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				p.obs.Log().Warn().Str("session", chunk.Session).Err(err).Msg("extraction failed, chunk skipped")
			}
		}
		return nil
	})

	return g.Wait()
}

func (p *Pipeline) gateChunk(ctx context.Context, chunk Chunk) (bool, error) {
	p.chunksProcessed.Add(1)
	p.events.publish(EventChunkReceived, chunk.Session, nil)

	ctx, span := p.obs.StartSpan(ctx, "pipeline.gate")
	defer span.End()

	pass, reason, err := p.gate.Classify(ctx, chunk.Text)
	if err != nil {
		p.chunksFailed.Add(1)
		p.events.publish(EventChunkFailed, chunk.Session, map[string]interface{}{"error": err.Error()})
		return false, err
	}
	if !pass {
		p.events.publish(EventChunkDiscarded, chunk.Session, map[string]interface{}{"reason": reason})
		return false, nil
	}

	p.chunksPassed.Add(1)
	p.events.publish(EventChunkPassedGate, chunk.Session, map[string]interface{}{"reason": reason})
	return true, nil
}

func (p *Pipeline) extractChunk(ctx context.Context, chunk Chunk) ([]int64, error) {
	ctx, span := p.obs.StartSpan(ctx, "pipeline.extract")
	defer span.End()

	hints, err := p.neighborHints(ctx, chunk.Text)
	if err != nil {
		p.chunksFailed.Add(1)
		p.events.publish(EventChunkFailed, chunk.Session, map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	cands, err := p.extractor.Extract(ctx, chunk.Text, hints)
	if err != nil {
		p.chunksFailed.Add(1)
		p.events.publish(EventChunkFailed, chunk.Session, map[string]interface{}{"error": err.Error()})
		return nil, err
	}
	p.extracted.Add(int64(len(cands)))

	var ids []int64
	for _, cand := range cands {
		cand.SourceSession = chunk.Session

		res, err := p.Reconcile(ctx, cand)
		if err != nil {
			// One candidate failing must not take its siblings with it.
			p.dropped.Add(1)
			p.events.publish(EventCandidateDrop, chunk.Session, map[string]interface{}{"error": err.Error()})
			p.obs.Log().Warn().Str("session", chunk.Session).Err(err).Msg("candidate dropped")
			continue
		}
		ids = append(ids, res.ID)
	}

	if _, err := p.store.SaveRawChunk(ctx, chunk.Session, chunk.Text, chunk.Index, ids); err != nil {
		// Journal only; losing it does not invalidate the stored memories.
		p.obs.Log().Warn().Str("session", chunk.Session).Err(err).Msg("failed to journal raw chunk")
	}

	return ids, nil
}

// neighborHints prefetches the chunk's nearest stored memories and formats
// them for the extraction prompt, ids included.
func (p *Pipeline) neighborHints(ctx context.Context, text string) (string, error) {
	head := text
	if len(head) > 500 {
		head = head[:500]
	}

	vec, err := p.embedder.Embed(ctx, head, embed.RoleQuery)
	if err != nil {
		return "", err
	}

	hits, err := p.store.Search(ctx, vec, p.cfg.NeighborLimit, p.cfg.NeighborFloor)
	if err != nil {
		return "", fmt.Errorf("neighbor prefetch failed: %w", err)
	}

	var b strings.Builder
	for _, h := range hits {
		content := h.Memory.Content
		if len(content) > 150 {
			content = content[:150]
		}
		fmt.Fprintf(&b, "[ID=%d] (type=%s, imp=%d) %s\n", h.Memory.ID, h.Memory.Type, h.Memory.Importance, content)
	}
	return b.String(), nil
}
