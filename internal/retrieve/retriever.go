// Package retrieve surfaces stored memories relevant to a live
// conversation, ranked and trimmed to a hard size budget. Silence is the
// correct answer when nothing is relevant.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/felixgeelhaar/engram/internal/embed"
	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/observe"
)

// Store is the read slice of the memory store retrieval needs. Touch is
// called only for records actually surfaced.
type Store interface {
	Search(ctx context.Context, vector []float32, limit int, minScore float64) ([]memory.SearchResult, error)
	Touch(ctx context.Context, id int64) error
}

// Result is a surfaced memory with its ranking breakdown.
type Result struct {
	Memory     memory.Memory `json:"memory"`
	Similarity float64       `json:"similarity"`
	Score      float64       `json:"score"`
}

// Config tunes ranking. Zero values pick the defaults below.
type Config struct {
	// Floor excludes low-relevance noise before ranking. It sits below
	// the deduplicator's related threshold: retrieval tolerates broader
	// recall than dedup does.
	Floor float64

	// CandidateLimit caps how many hits are considered per call.
	CandidateLimit int

	// FreshWindow is the age within which recency weight stays at 1.0.
	FreshWindow time.Duration

	// HalfLife controls how fast the decaying half of the recency weight
	// falls off. The weight never drops below 0.5, so old-but-important
	// memories stay reachable.
	HalfLife time.Duration
}

func (c Config) withDefaults() Config {
	if c.Floor <= 0 {
		c.Floor = 0.40
	}
	if c.CandidateLimit <= 0 {
		c.CandidateLimit = 20
	}
	if c.FreshWindow <= 0 {
		c.FreshWindow = 7 * 24 * time.Hour
	}
	if c.HalfLife <= 0 {
		c.HalfLife = 120 * 24 * time.Hour
	}
	return c
}

// Retriever embeds conversation context, searches the store and packs the
// best-scoring whole records into the caller's budget. It remembers what
// it already surfaced per session so repeated calls do not repeat
// themselves.
type Retriever struct {
	store    Store
	embedder embed.Embedder
	obs      *observe.Observer
	cfg      Config

	mu   sync.Mutex
	seen map[string]map[int64]bool // session -> surfaced ids
}

func New(s Store, e embed.Embedder, obs *observe.Observer, cfg Config) *Retriever {
	if obs == nil {
		obs = observe.Nop()
	}
	return &Retriever{
		store:    s,
		embedder: e,
		obs:      obs,
		cfg:      cfg.withDefaults(),
		seen:     make(map[string]map[int64]bool),
	}
}

// Retrieve returns memories relevant to contextText whose combined content
// size fits within budget (in characters). Results come score-descending
// and are a strict prefix of the ranking: once a record would overflow the
// budget, packing stops; records are never truncated. A transient
// provider failure degrades to an empty result rather than blocking the
// conversation.
func (r *Retriever) Retrieve(ctx context.Context, session, contextText string, budget int) ([]Result, error) {
	if budget <= 0 {
		return nil, fmt.Errorf("budget must be positive")
	}

	ctx, span := r.obs.StartSpan(ctx, "retrieve")
	defer span.End()

	vec, err := r.embedder.Embed(ctx, contextText, embed.RoleQuery)
	if err != nil {
		if errors.Is(err, memory.ErrProviderUnavailable) {
			r.obs.Log().Warn().Err(err).Msg("embedding unavailable, returning no memories")
			return nil, nil
		}
		return nil, err
	}

	hits, err := r.store.Search(ctx, vec, r.cfg.CandidateLimit, r.cfg.Floor)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	now := time.Now()
	results := make([]Result, 0, len(hits))
	for _, h := range hits {
		results = append(results, Result{
			Memory:     h.Memory,
			Similarity: h.Similarity,
			Score:      h.Similarity * (float64(h.Memory.Importance) / 3.0) * r.recencyWeight(&h.Memory, now),
		})
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	r.mu.Lock()
	surfaced := r.seen[session]
	if surfaced == nil {
		surfaced = make(map[int64]bool)
		r.seen[session] = surfaced
	}

	var out []Result
	used := 0
	for _, res := range results {
		if surfaced[res.Memory.ID] {
			continue
		}
		if used+len(res.Memory.Content) > budget {
			break
		}
		used += len(res.Memory.Content)
		surfaced[res.Memory.ID] = true
		out = append(out, res)
	}
	r.mu.Unlock()

	for _, res := range out {
		if err := r.store.Touch(ctx, res.Memory.ID); err != nil {
			r.obs.Log().Warn().Int("id", int(res.Memory.ID)).Err(err).Msg("failed to touch surfaced memory")
		}
	}

	return out, nil
}

// ResetSession clears the repetition-suppression state for a session,
// typically when its conversation ends.
func (r *Retriever) ResetSession(session string) {
	r.mu.Lock()
	delete(r.seen, session)
	r.mu.Unlock()
}

// recencyWeight is 1.0 inside the fresh window, then 0.5 + 0.5*exp(-age/halfLife):
// an exponential glide from 1.0 toward a floor of 0.5, with half the decaying
// part gone per half-life. It never reaches zero.
func (r *Retriever) recencyWeight(m *memory.Memory, now time.Time) float64 {
	age := m.AgeDays(now)
	freshDays := r.cfg.FreshWindow.Hours() / 24
	if age <= freshDays {
		return 1.0
	}
	halfLifeDays := r.cfg.HalfLife.Hours() / 24
	return 0.5 + 0.5*math.Exp(-(age-freshDays)*math.Ln2/halfLifeDays)
}
