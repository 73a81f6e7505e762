package tts

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/voxkit/voxbridge/domain/repositories"
)

// MockSynthesizer scripts synthesis output for tests. Each Synthesize call
// yields Chunks in order at Rate.
type MockSynthesizer struct {
	mu sync.Mutex
	// Chunks to yield per sentence. Nil means one 320-byte chunk.
	Chunks [][]byte
	// Rate is the reported sample rate. Zero means 16000.
	Rate int
	// Err fails Synthesize itself.
	Err error
	// Delay before each chunk.
	Delay time.Duration
	// OnChunk, when set, runs after chunk i of a sentence is yielded. Tests
	// use it to observe synthesis progress relative to generation.
	OnChunk func(text string, i int)

	texts []string
}

var _ repositories.SpeechSynthesizer = (*MockSynthesizer)(nil)

func (m *MockSynthesizer) Synthesize(ctx context.Context, text string, config repositories.VoiceConfig) (repositories.AudioStream, error) {
	m.mu.Lock()
	m.texts = append(m.texts, text)
	m.mu.Unlock()
	if m.Err != nil {
		return nil, m.Err
	}
	chunks := m.Chunks
	if chunks == nil {
		chunks = [][]byte{make([]byte, 320)}
	}
	rate := m.Rate
	if rate == 0 {
		rate = 16000
	}
	return &mockAudioStream{src: m, ctx: ctx, text: text, chunks: chunks, rate: rate}, nil
}

// Texts reports the sentences synthesized so far, in call order.
func (m *MockSynthesizer) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

type mockAudioStream struct {
	src    *MockSynthesizer
	ctx    context.Context
	text   string
	chunks [][]byte
	rate   int
	pos    int
}

func (s *mockAudioStream) Next() ([]byte, error) {
	if s.src.Delay > 0 {
		select {
		case <-s.ctx.Done():
			return nil, s.ctx.Err()
		case <-time.After(s.src.Delay):
		}
	}
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.chunks) {
		return nil, io.EOF
	}
	chunk := s.chunks[s.pos]
	if s.src.OnChunk != nil {
		s.src.OnChunk(s.text, s.pos)
	}
	s.pos++
	return chunk, nil
}

func (s *mockAudioStream) SampleRate() int { return s.rate }

func (s *mockAudioStream) Close() error { return nil }
