package asr

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// MockSpeechToText scripts transcript sequences for tests and local runs
// without a speech backend.
type MockSpeechToText struct {
	mu sync.Mutex
	// Partials are emitted before the final event.
	Partials []string
	// Final is the committed transcript. Empty means "nothing understood".
	Final string
	// Err aborts the stream mid-way, after the partials.
	Err error
	// SubmitErr fails the initial submission (exercises the retry path).
	SubmitErr error
	// Delay is applied before each event, to make pipelining observable.
	Delay time.Duration

	calls int
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

func (m *MockSpeechToText) Transcribe(ctx context.Context, pcm []byte, config repositories.AudioConfig) (repositories.TranscriptStream, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.SubmitErr != nil {
		return nil, m.SubmitErr
	}
	return &mockTranscriptStream{src: m, ctx: ctx}, nil
}

// Calls reports how many times Transcribe was invoked.
func (m *MockSpeechToText) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

type mockTranscriptStream struct {
	src *MockSpeechToText
	ctx context.Context
	pos int
}

func (s *mockTranscriptStream) Next() (entities.TranscriptEvent, error) {
	if s.src.Delay > 0 {
		select {
		case <-s.ctx.Done():
			return entities.TranscriptEvent{}, s.ctx.Err()
		case <-time.After(s.src.Delay):
		}
	}

	if s.pos < len(s.src.Partials) {
		ev := entities.TranscriptEvent{Text: s.src.Partials[s.pos], EmittedAt: time.Now()}
		s.pos++
		return ev, nil
	}
	if s.pos == len(s.src.Partials) {
		s.pos++
		if s.src.Err != nil {
			return entities.TranscriptEvent{}, s.src.Err
		}
		return entities.TranscriptEvent{Text: s.src.Final, IsFinal: true, EmittedAt: time.Now()}, nil
	}
	return entities.TranscriptEvent{}, io.EOF
}

func (s *mockTranscriptStream) Close() error { return nil }
