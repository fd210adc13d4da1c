package stages

import (
	"context"
	"sync"

	"github.com/custodia-labs/ruleforge/internal/core/ports/driven"
)

// mockLLMService implements driven.LLMService for testing.
// Responses are returned in order; the last one repeats.
type mockLLMService struct {
	mu        sync.Mutex
	responses []string
	err       error
	block     bool
	calls     [][]driven.ChatMessage
	opts      []driven.ChatOptions
}

func (m *mockLLMService) Generate(_ context.Context, _ string, _ driven.GenerateOptions) (string, error) {
	return "", nil
}

func (m *mockLLMService) Chat(ctx context.Context, messages []driven.ChatMessage, opts driven.ChatOptions) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, messages)
	m.opts = append(m.opts, opts)
	n := len(m.calls)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if m.err != nil {
		return "", m.err
	}
	if len(m.responses) == 0 {
		return "", nil
	}
	if n > len(m.responses) {
		n = len(m.responses)
	}
	return m.responses[n-1], nil
}

func (m *mockLLMService) ModelName() string {
	return "mock-llm"
}

func (m *mockLLMService) Ping(_ context.Context) error {
	return nil
}

func (m *mockLLMService) Close() error {
	return nil
}

func (m *mockLLMService) lastUserMessage() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.calls) == 0 {
		return ""
	}
	msgs := m.calls[len(m.calls)-1]
	return msgs[len(msgs)-1].Content
}
