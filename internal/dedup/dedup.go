// Package dedup decides, for every candidate write, whether the store
// already knows the fact. All mutation funnels through Reconcile so no
// caller can bypass the merge/insert decision.
package dedup

import (
	"context"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/engram/internal/embed"
	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/observe"
	"github.com/felixgeelhaar/engram/internal/store"
)

// Store is the slice of the memory store reconciliation needs.
type Store interface {
	Insert(ctx context.Context, m *memory.Memory) (int64, error)
	Update(ctx context.Context, id int64, fields store.UpdateFields) error
	Touch(ctx context.Context, id int64) error
	Link(ctx context.Context, fromID, toID int64, rel memory.Relationship) error
	Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.SearchResult, error)
}

// Outcome says what Reconcile did with a candidate.
type Outcome string

const (
	OutcomeInserted Outcome = "inserted"
	OutcomeMerged   Outcome = "merged"
)

// Result reports the reconciliation decision. LinkedTo is non-zero when
// the candidate was inserted with a "related" link to an existing record.
type Result struct {
	Outcome  Outcome
	ID       int64
	LinkedTo int64
}

// Deduplicator consults the store on every write. Dedup searches with a
// materially higher floor than retrieval: retrieval wants "related", dedup
// wants "the same fact restated".
type Deduplicator struct {
	store    Store
	embedder embed.Embedder
	obs      *observe.Observer

	mergeThreshold   float64
	relatedThreshold float64
}

// New validates the thresholds: merge must be strictly above related, or
// the two decisions collapse into over- or under-merging.
func New(s Store, e embed.Embedder, mergeThreshold, relatedThreshold float64, obs *observe.Observer) (*Deduplicator, error) {
	if mergeThreshold <= relatedThreshold {
		return nil, fmt.Errorf("merge threshold %.2f must be strictly above related threshold %.2f",
			mergeThreshold, relatedThreshold)
	}
	if obs == nil {
		obs = observe.Nop()
	}
	return &Deduplicator{
		store:            s,
		embedder:         e,
		obs:              obs,
		mergeThreshold:   mergeThreshold,
		relatedThreshold: relatedThreshold,
	}, nil
}

// Reconcile embeds the candidate if needed, then merges it onto a
// near-duplicate, inserts it with a related link, or inserts it plain.
func (d *Deduplicator) Reconcile(ctx context.Context, cand memory.Candidate) (*Result, error) {
	if err := cand.Validate(); err != nil {
		return nil, err
	}

	if len(cand.Embedding) == 0 {
		vec, err := d.embedder.Embed(ctx, cand.Content, embed.RoleDocument)
		if err != nil {
			return nil, err
		}
		cand.Embedding = vec
	}

	hits, err := d.store.Search(ctx, cand.Embedding, 1, d.relatedThreshold)
	if err != nil {
		return nil, err
	}

	if len(hits) > 0 && hits[0].Similarity >= d.mergeThreshold {
		top := hits[0]
		if err := d.merge(ctx, &top.Memory, cand); err != nil {
			return nil, err
		}
		d.obs.Log().Info().
			Int("id", int(top.Memory.ID)).
			Str("similarity", fmt.Sprintf("%.3f", top.Similarity)).
			Msg("candidate merged onto existing memory")
		return &Result{Outcome: OutcomeMerged, ID: top.Memory.ID}, nil
	}

	id, err := d.store.Insert(ctx, &memory.Memory{
		Content:       cand.Content,
		Embedding:     cand.Embedding,
		Importance:    cand.Importance,
		Type:          cand.Type,
		TopicTags:     cand.TopicTags,
		SourceSession: cand.SourceSession,
	})
	if err != nil {
		return nil, err
	}

	res := &Result{Outcome: OutcomeInserted, ID: id}
	if len(hits) > 0 {
		// Related but distinct: keep both, remember the neighborhood.
		if err := d.store.Link(ctx, id, hits[0].Memory.ID, memory.RelRelated); err != nil {
			return nil, err
		}
		res.LinkedTo = hits[0].Memory.ID
		d.obs.Log().Info().
			Int("id", int(id)).
			Int("related_to", int(hits[0].Memory.ID)).
			Msg("candidate inserted with related link")
	}
	return res, nil
}

// merge updates the existing record in place: importance moves up toward
// the candidate's, last_accessed refreshes, and when the candidate
// strictly extends the stored wording the content is rewritten, which is
// the one path that recomputes an embedding after insert.
func (d *Deduplicator) merge(ctx context.Context, existing *memory.Memory, cand memory.Candidate) error {
	fields := store.UpdateFields{}

	if cand.Importance > existing.Importance {
		imp := cand.Importance
		fields.Importance = &imp
	}

	if refines(existing.Content, cand.Content) {
		content := cand.Content
		fields.Content = &content
		fields.Embedding = cand.Embedding
	}

	if fields.Importance != nil || fields.Content != nil {
		if err := d.store.Update(ctx, existing.ID, fields); err != nil {
			return err
		}
	}

	return d.store.Touch(ctx, existing.ID)
}

// refines reports whether the candidate wording carries the existing
// content plus new distinguishing detail.
func refines(existing, candidate string) bool {
	e := strings.TrimSpace(existing)
	c := strings.TrimSpace(candidate)
	return len(c) > len(e) && strings.Contains(strings.ToLower(c), strings.ToLower(e))
}
