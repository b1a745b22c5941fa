package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/provider"
)

func TestGateClassify(t *testing.T) {
	ctx := context.Background()

	t.Run("RememberTrue", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: `{"remember": true, "reason": "contains a decision"}`},
		}
		g := NewGate(stub, time.Second)

		pass, reason, err := g.Classify(ctx, "we decided to use sqlite")
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if !pass {
			t.Error("Expected chunk to pass the gate")
		}
		if reason != "contains a decision" {
			t.Errorf("Unexpected reason: %q", reason)
		}
	})

	t.Run("RememberFalse", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: `{"remember": false, "reason": "just greetings"}`},
		}
		g := NewGate(stub, time.Second)

		pass, _, err := g.Classify(ctx, "hi, how are you")
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if pass {
			t.Error("Expected chunk to be discarded")
		}
	})

	t.Run("FencedJSON", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: "```json\n{\"remember\": true, \"reason\": \"insight\"}\n```"},
		}
		g := NewGate(stub, time.Second)

		pass, _, err := g.Classify(ctx, "realization about caching")
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if !pass {
			t.Error("Expected fenced JSON to parse")
		}
	})

	t.Run("KeywordFallback", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: "Yes, this should be remembered."},
		}
		g := NewGate(stub, time.Second)

		pass, _, err := g.Classify(ctx, "something notable")
		if err != nil {
			t.Fatalf("Classify failed: %v", err)
		}
		if !pass {
			t.Error("Expected keyword fallback to pass")
		}
	})

	t.Run("ProviderFailure", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.ChatErr = errors.New("model not loaded")
		g := NewGate(stub, time.Second)

		_, _, err := g.Classify(ctx, "anything")
		if !errors.Is(err, memory.ErrProviderUnavailable) {
			t.Errorf("Expected ErrProviderUnavailable, got %v", err)
		}
	})
}

func TestExtractorExtract(t *testing.T) {
	ctx := context.Background()

	t.Run("ParsesCandidates", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: `[
				{"content": "User prefers tabs over spaces", "importance": 2, "memory_type": "preference", "topic_tags": ["style"]},
				{"content": "The deploy pipeline runs on GitHub Actions", "importance": 3, "memory_type": "fact", "topic_tags": ["ci"]}
			]`},
		}
		e := NewExtractor(stub, time.Second)

		cands, err := e.Extract(ctx, "a chunk", "")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(cands) != 2 {
			t.Fatalf("Expected 2 candidates, got %d", len(cands))
		}
		if cands[0].Type != memory.TypePreference || cands[0].Importance != 2 {
			t.Errorf("Unexpected candidate: %+v", cands[0])
		}
	})

	t.Run("EmptyArray", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{{Content: "[]"}}
		e := NewExtractor(stub, time.Second)

		cands, err := e.Extract(ctx, "nothing new here", "")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(cands) != 0 {
			t.Errorf("Expected no candidates, got %d", len(cands))
		}
	})

	t.Run("InvalidTypeFallsBackToGeneral", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: `[{"content": "something", "importance": 3, "memory_type": "rumor"}]`},
		}
		e := NewExtractor(stub, time.Second)

		cands, err := e.Extract(ctx, "chunk", "")
		if err != nil {
			t.Fatalf("Extract failed: %v", err)
		}
		if len(cands) != 1 || cands[0].Type != memory.TypeGeneral {
			t.Errorf("Expected general type fallback, got %+v", cands)
		}
	})

	t.Run("MissingImportanceDefaults", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: `[{"content": "something", "memory_type": "fact"}]`},
		}
		e := NewExtractor(stub, time.Second)

		cands, _ := e.Extract(ctx, "chunk", "")
		if len(cands) != 1 || cands[0].Importance != memory.DefaultImportance {
			t.Errorf("Expected default importance, got %+v", cands)
		}
	})

	t.Run("ContentlessItemsDropped", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{
			{Content: `[{"content": "", "importance": 3}, {"content": "kept", "importance": 3, "memory_type": "fact"}]`},
		}
		e := NewExtractor(stub, time.Second)

		cands, _ := e.Extract(ctx, "chunk", "")
		if len(cands) != 1 || cands[0].Content != "kept" {
			t.Errorf("Expected only the contentful item, got %+v", cands)
		}
	})

	t.Run("UnparseableOutput", func(t *testing.T) {
		stub := provider.NewStubProvider()
		stub.Responses = []provider.Response{{Content: `[{"content": broken}]`}}
		e := NewExtractor(stub, time.Second)

		if _, err := e.Extract(ctx, "chunk", ""); err == nil {
			t.Error("Expected error for unparseable output")
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	if got := extractJSONObject("noise {\"a\": 1} trailing"); got != `{"a": 1}` {
		t.Errorf("extractJSONObject: got %q", got)
	}
	if got := extractJSONObject("no braces"); got != "" {
		t.Errorf("Expected empty, got %q", got)
	}
	if got := extractJSONArray("```\n[1, 2]\n```"); got != "[1, 2]" {
		t.Errorf("extractJSONArray: got %q", got)
	}
}
