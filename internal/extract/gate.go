package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/engram/internal/memory"
	"github.com/felixgeelhaar/engram/internal/provider"
)

// gateInputCap bounds what the cheap classifier sees; a verdict does not
// need the whole chunk.
const gateInputCap = 2000

const gateSystem = `You are a memory filter. Your job is to decide if a conversation chunk contains anything worth storing as a long-term memory.

Worth remembering:
- Decisions made (chose X over Y, decided not to do Z)
- New information learned (technical facts, how things work)
- Insights or realizations (philosophical, technical, creative)
- Project plans, goals, or status updates
- Preferences expressed (likes, dislikes, approaches preferred)
- Important context about people, systems, or tools
- Problems encountered and solutions found

NOT worth remembering:
- Casual greetings, pleasantries, filler
- Tool outputs, raw data dumps, error messages
- Repetitive back-and-forth during debugging
- Questions without answers (unless the question itself is important)
- Content that's purely procedural with no lasting value

Respond with ONLY a JSON object:
{"remember": true/false, "reason": "brief explanation"}`

const gatePrompt = `Evaluate this conversation chunk:

---
%s
---

Should any part of this be saved as a long-term memory?`

// Gate is the cheap first-pass filter. It is a pure classification over
// the raw chunk; a "no" stops all further cost for that chunk.
type Gate struct {
	p       provider.Provider
	timeout time.Duration
}

func NewGate(p provider.Provider, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Gate{p: p, timeout: timeout}
}

// Classify answers "does this chunk contain anything worth remembering?"
// and returns the model's reason for audit logging.
func (g *Gate) Classify(ctx context.Context, chunk string) (bool, string, error) {
	if len(chunk) > gateInputCap {
		chunk = chunk[:gateInputCap]
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.p.Chat(ctx, []provider.Message{
		provider.System(gateSystem),
		provider.User(fmt.Sprintf(gatePrompt, chunk)),
	})
	if err != nil {
		return false, "", fmt.Errorf("%w: gate classify: %v", memory.ErrProviderUnavailable, err)
	}

	var verdict struct {
		Remember bool   `json:"remember"`
		Reason   string `json:"reason"`
	}
	if obj := extractJSONObject(resp.Content); obj != "" {
		if err := json.Unmarshal([]byte(obj), &verdict); err == nil {
			return verdict.Remember, verdict.Reason, nil
		}
	}

	// Model ignored the format; fall back to a keyword read.
	lower := strings.ToLower(resp.Content)
	if strings.Contains(lower, "true") || strings.Contains(lower, "yes") {
		return true, truncate(resp.Content, 100), nil
	}
	return false, truncate(resp.Content, 100), nil
}

// extractJSONObject pulls the outermost {...} from model output, tolerating
// markdown code fences around it.
func extractJSONObject(text string) string {
	text = stripFences(text)
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

// extractJSONArray pulls the outermost [...] from model output.
func extractJSONArray(text string) string {
	text = stripFences(text)
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return ""
	}
	return text[start : end+1]
}

func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	if idx := strings.Index(text, "\n"); idx >= 0 {
		text = text[idx+1:]
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
