package llm

import (
	"context"
	"io"
	"sync"

	"github.com/voxkit/voxbridge/domain/repositories"
)

// MockDialogue scripts model responses for tests. Every chat started from it
// streams the same Deltas.
type MockDialogue struct {
	mu sync.Mutex
	// Deltas are yielded one per Next call.
	Deltas []string
	// Err aborts the stream after the deltas.
	Err error
	// StartErr fails StartChat itself.
	StartErr error
	// BeforeDelta, when set, runs before delta i is yielded. Tests use it to
	// block generation until some downstream event has been observed.
	BeforeDelta func(i int)

	sends int
}

var _ repositories.DialogueModel = (*MockDialogue)(nil)

func (m *MockDialogue) StartChat(ctx context.Context, history []repositories.ChatMessage) (repositories.ChatSession, error) {
	if m.StartErr != nil {
		return nil, m.StartErr
	}
	return &mockChatSession{src: m, history: append([]repositories.ChatMessage(nil), history...)}, nil
}

// Sends reports how many SendStreaming calls were made across all sessions.
func (m *MockDialogue) Sends() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sends
}

type mockChatSession struct {
	src     *MockDialogue
	history []repositories.ChatMessage
}

func (s *mockChatSession) SendStreaming(ctx context.Context, message repositories.ChatMessage) (repositories.DeltaStream, error) {
	s.src.mu.Lock()
	s.src.sends++
	s.src.mu.Unlock()
	s.history = append(s.history, message)
	return &mockDeltaStream{src: s.src, session: s, ctx: ctx}, nil
}

func (s *mockChatSession) History() ([]repositories.ChatMessage, error) {
	return append([]repositories.ChatMessage(nil), s.history...), nil
}

type mockDeltaStream struct {
	src     *MockDialogue
	session *mockChatSession
	ctx     context.Context
	pos     int
	reply   string
}

func (d *mockDeltaStream) Next() (string, error) {
	if err := d.ctx.Err(); err != nil {
		return "", err
	}
	if d.pos < len(d.src.Deltas) {
		if d.src.BeforeDelta != nil {
			d.src.BeforeDelta(d.pos)
		}
		if err := d.ctx.Err(); err != nil {
			return "", err
		}
		delta := d.src.Deltas[d.pos]
		d.pos++
		d.reply += delta
		return delta, nil
	}
	if d.src.Err != nil {
		return "", d.src.Err
	}
	if d.reply != "" {
		d.session.history = append(d.session.history, repositories.ChatMessage{
			Role:    repositories.AssistantRole,
			Content: d.reply,
		})
		d.reply = ""
	}
	return "", io.EOF
}

func (d *mockDeltaStream) Close() error { return nil }
