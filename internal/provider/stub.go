package provider

import (
	"context"
	"strings"
	"sync"
)

// StubProvider is a deterministic provider for testing. Chat replies are
// consumed in order; embeddings come from the Vectors map, keyed by the
// exact text (prefix included), falling back to Default.
type StubProvider struct {
	mu        sync.Mutex
	Responses []Response
	Vectors   map[string][]float32
	Default   []float32
	ChatErr   error
	EmbedErr  error

	ChatCalls  []string // last user message of each Chat call
	EmbedCalls []string
}

func NewStubProvider() *StubProvider {
	return &StubProvider{
		Vectors: make(map[string][]float32),
		Default: []float32{0.1, 0.2, 0.3},
	}
}

func (m *StubProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var lastUser string
	for _, msg := range messages {
		if msg.Role == "user" {
			lastUser = msg.Content
		}
	}
	m.ChatCalls = append(m.ChatCalls, lastUser)

	if m.ChatErr != nil {
		return nil, m.ChatErr
	}
	if len(m.Responses) == 0 {
		return &Response{Content: "[]"}, nil
	}

	resp := m.Responses[0]
	m.Responses = m.Responses[1:]
	return &resp, nil
}

func (m *StubProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.EmbedCalls = append(m.EmbedCalls, text)

	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	if vec, ok := m.Vectors[text]; ok {
		return vec, nil
	}
	// Prefix-insensitive lookup so tests can key vectors by raw text.
	for key, vec := range m.Vectors {
		if strings.HasSuffix(text, key) {
			return vec, nil
		}
	}
	return m.Default, nil
}

func (m *StubProvider) Name() string {
	return "stub"
}
