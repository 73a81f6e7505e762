package vad

import (
	"context"
	"sync"
	"time"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// MockDetector scripts VAD outcomes for tests.
type MockDetector struct {
	mu sync.Mutex
	// Intervals to return. Nil/empty means "no speech".
	Intervals []entities.SpeechInterval
	// Err simulates an unreachable backend (exercises fail-open).
	Err error
	// Delay before answering.
	Delay time.Duration

	calls int
}

var _ repositories.VoiceActivityDetector = (*MockDetector)(nil)

// SpeechEverywhere is a detector that always reports speech.
func SpeechEverywhere() *MockDetector {
	return &MockDetector{Intervals: []entities.SpeechInterval{{Start: 0, End: time.Second}}}
}

func (m *MockDetector) DetectSpeech(ctx context.Context, pcm []byte, config repositories.AudioConfig) ([]entities.SpeechInterval, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()

	if m.Delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(m.Delay):
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Intervals, nil
}

func (m *MockDetector) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
