// Package embed wraps a provider's text-to-vector capability behind the
// role framing the retrieval model expects: stored facts and queries are
// prefixed differently, and mixing them up quietly degrades ranking.
package embed

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/provider"
)

// Role selects the framing prefix applied before text reaches the model.
type Role string

const (
	RoleDocument Role = "document"
	RoleQuery    Role = "query"
)

// nomic-embed-text task prefixes; other models tolerate them.
const (
	documentPrefix = "search_document: "
	queryPrefix    = "search_query: "
)

// Embedder is the contract the deduplicator and retriever depend on.
type Embedder interface {
	Embed(ctx context.Context, text string, role Role) ([]float32, error)
}

// Gateway turns text into fixed-dimension vectors via a provider, with a
// per-call timeout and a cache for repeated text. The vector dimension is
// pinned on first use; a provider change that alters it is an explicit
// migration, never silent.
type Gateway struct {
	p       provider.Provider
	timeout time.Duration
	cache   *ristretto.Cache

	mu  sync.Mutex
	dim int
}

// New creates a Gateway. timeout bounds each provider call; zero means 30s.
func New(p provider.Provider, timeout time.Duration) (*Gateway, error) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		MaxCost:     64 << 20, // 64 MiB of vectors
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding cache: %w", err)
	}

	return &Gateway{
		p:       p,
		timeout: timeout,
		cache:   cache,
	}, nil
}

// Embed returns the vector for text under the given role. Provider
// failures and timeouts wrap memory.ErrProviderUnavailable; callers treat
// them as transient, never as "no embedding exists".
func (g *Gateway) Embed(ctx context.Context, text string, role Role) ([]float32, error) {
	var prefixed string
	switch role {
	case RoleQuery:
		prefixed = queryPrefix + text
	case RoleDocument:
		prefixed = documentPrefix + text
	default:
		return nil, fmt.Errorf("unknown embedding role %q", role)
	}

	if cached, ok := g.cache.Get(prefixed); ok {
		if vec, ok := cached.([]float32); ok {
			return vec, nil
		}
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	vec, err := g.p.Embed(ctx, prefixed)
	if err != nil {
		return nil, fmt.Errorf("%w: %s embed: %v", memory.ErrProviderUnavailable, g.p.Name(), err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("%w: %s returned an empty vector", memory.ErrProviderUnavailable, g.p.Name())
	}

	if err := g.checkDimension(len(vec)); err != nil {
		return nil, err
	}

	g.cache.Set(prefixed, vec, int64(len(vec)*4))
	return vec, nil
}

// Dimension returns the pinned vector dimensionality, or 0 before the
// first successful call.
func (g *Gateway) Dimension() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.dim
}

func (g *Gateway) checkDimension(n int) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.dim == 0 {
		g.dim = n
		return nil
	}
	if g.dim != n {
		return fmt.Errorf("embedding dimension changed from %d to %d; the store must be re-embedded before switching models", g.dim, n)
	}
	return nil
}
