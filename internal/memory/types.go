// Package memory defines the domain types shared by the store, the
// extraction pipeline and the retriever: persisted memory records, links
// between them, and not-yet-reconciled candidates.
package memory

import (
	"fmt"
	"strings"
	"time"
)

// Type classifies what kind of knowledge a record holds. It informs
// downstream filtering only; retrieval math never depends on it.
type Type string

const (
	TypeDecision     Type = "decision"
	TypeInsight      Type = "insight"
	TypeFact         Type = "fact"
	TypePreference   Type = "preference"
	TypeProject      Type = "project"
	TypeConversation Type = "conversation"
	TypeGeneral      Type = "general"
)

// Valid reports whether t is one of the closed set of memory types.
func (t Type) Valid() bool {
	switch t {
	case TypeDecision, TypeInsight, TypeFact, TypePreference, TypeProject, TypeConversation, TypeGeneral:
		return true
	}
	return false
}

// Relationship is the type of a directed link between two records.
type Relationship string

const (
	RelRelated     Relationship = "related"
	RelSupersedes  Relationship = "supersedes"
	RelContradicts Relationship = "contradicts"
	RelElaborates  Relationship = "elaborates"
)

// Valid reports whether r is a known relationship.
func (r Relationship) Valid() bool {
	switch r {
	case RelRelated, RelSupersedes, RelContradicts, RelElaborates:
		return true
	}
	return false
}

const (
	// MinImportance and MaxImportance bound the importance scale:
	// 1 is trivial, 5 is a critical decision or insight.
	MinImportance = 1
	MaxImportance = 5

	// DefaultImportance is assigned when extraction does not say otherwise.
	DefaultImportance = 3
)

// ClampImportance forces v into the valid importance range.
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// Memory is the atomic unit of persisted knowledge.
type Memory struct {
	ID            int64     `json:"id"`
	Content       string    `json:"content"`
	Embedding     []float32 `json:"-"`
	Importance    int       `json:"importance"`
	Type          Type      `json:"memory_type"`
	TopicTags     []string  `json:"topic_tags"`
	SourceSession string    `json:"source_session"`
	CreatedAt     time.Time `json:"created_at"`
	LastAccessed  time.Time `json:"last_accessed,omitzero"`
	AccessCount   int       `json:"access_count"`
}

// AgeDays returns the record's age in days, measured from the last access
// when one exists, otherwise from creation.
func (m *Memory) AgeDays(now time.Time) float64 {
	ref := m.CreatedAt
	if !m.LastAccessed.IsZero() && m.LastAccessed.After(ref) {
		ref = m.LastAccessed
	}
	return now.Sub(ref).Hours() / 24
}

// Link is a directed, typed edge between two records.
type Link struct {
	FromID       int64        `json:"from_id"`
	ToID         int64        `json:"to_id"`
	Relationship Relationship `json:"relationship"`
	CreatedAt    time.Time    `json:"created_at"`
}

// Candidate is a structured, not-yet-reconciled memory proposed by the
// extraction step. Embedding is filled lazily by the deduplicator if the
// pipeline has not embedded it already.
type Candidate struct {
	Content       string
	Importance    int
	Type          Type
	TopicTags     []string
	SourceSession string
	Embedding     []float32
}

// Validate checks the candidate for the fields extraction must supply.
// A failing candidate is dropped, never stored.
func (c *Candidate) Validate() error {
	if strings.TrimSpace(c.Content) == "" {
		return fmt.Errorf("%w: empty content", ErrMalformedCandidate)
	}
	if c.Importance < MinImportance || c.Importance > MaxImportance {
		return fmt.Errorf("%w: importance %d out of range", ErrMalformedCandidate, c.Importance)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: unknown memory type %q", ErrMalformedCandidate, c.Type)
	}
	return nil
}

// SearchResult pairs a record with its raw cosine similarity to a query
// vector. Scores are in [-1, 1].
type SearchResult struct {
	Memory     Memory  `json:"memory"`
	Similarity float64 `json:"similarity"`
}
