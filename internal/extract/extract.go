package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/provider"
)

// extractInputCap bounds the chunk text handed to the richer model.
const extractInputCap = 3000

const extractSystem = `You are a memory manager. Given a conversation chunk and a list of existing related memories, extract the new facts worth keeping.

For each memory, provide:
- content: A clear, standalone statement (should make sense without context)
- importance: 1 (trivial) to 5 (critical decision or insight)
- memory_type: one of [decision, insight, fact, preference, project, conversation]
- topic_tags: 1-3 short tags

Rules:
- Only extract genuinely new information not covered by the existing memories shown
- Each memory should be a single, atomic piece of information
- Write memories as clear declarative statements, not conversation fragments
- Be concise but complete — future retrieval depends on the wording
- Include WHO, WHAT, WHY when relevant
- 0-5 memories per chunk (don't over-extract)
- If nothing new is worth remembering, return an empty array []

Respond with ONLY a JSON array:
[{"content": "...", "importance": N, "memory_type": "...", "topic_tags": ["...", "..."]}]`

const extractPrompt = `Here are existing related memories (if any):
%s

Extract memories from this conversation:

---
%s
---`

// Extractor is the richer second stage. It sees the candidates' nearest
// existing neighbors so it can avoid proposing near-duplicates before the
// deduplicator ever runs.
type Extractor struct {
	p       provider.Provider
	timeout time.Duration
}

func NewExtractor(p provider.Provider, timeout time.Duration) *Extractor {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Extractor{p: p, timeout: timeout}
}

// Extract produces zero or more structured candidates from a chunk.
// Items the model returns without content are dropped here; full
// validation happens per candidate in the pipeline.
func (e *Extractor) Extract(ctx context.Context, chunk, neighborHints string) ([]memory.Candidate, error) {
	if neighborHints == "" {
		neighborHints = "(none)"
	}
	if len(chunk) > extractInputCap {
		chunk = chunk[:extractInputCap]
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.p.Chat(ctx, []provider.Message{
		provider.System(extractSystem),
		provider.User(fmt.Sprintf(extractPrompt, neighborHints, chunk)),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: extract: %v", memory.ErrProviderUnavailable, err)
	}

	arr := extractJSONArray(resp.Content)
	if arr == "" {
		return nil, nil
	}

	var items []struct {
		Content    string   `json:"content"`
		Importance int      `json:"importance"`
		MemoryType string   `json:"memory_type"`
		TopicTags  []string `json:"topic_tags"`
	}
	if err := json.Unmarshal([]byte(arr), &items); err != nil {
		return nil, fmt.Errorf("unparseable extraction output: %w", err)
	}

	var cands []memory.Candidate
	for _, item := range items {
		if item.Content == "" {
			continue
		}
		typ := memory.Type(item.MemoryType)
		if !typ.Valid() {
			typ = memory.TypeGeneral
		}
		imp := item.Importance
		if imp == 0 {
			imp = memory.DefaultImportance
		}
		cands = append(cands, memory.Candidate{
			Content:    item.Content,
			Importance: memory.ClampImportance(imp),
			Type:       typ,
			TopicTags:  item.TopicTags,
		})
	}
	return cands, nil
}
