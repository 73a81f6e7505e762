package repositories

import (
	"context"

	"github.com/voxkit/voxbridge/domain/entities"
)

// SpeechToText abstracts speech recognition services. Batch and streaming
// backends are consumed through the same lazy sequence: Transcribe submits
// the utterance and returns a TranscriptStream that yields zero or more
// partial events followed by exactly one final event.
type SpeechToText interface {
	Transcribe(ctx context.Context, pcm []byte, config AudioConfig) (TranscriptStream, error)
}

// TranscriptStream is a finite, non-restartable sequence of transcript
// events. Next blocks until the next event is available and returns io.EOF
// after the final event has been consumed. A mid-stream error is fatal for
// the turn; the stream must not be read again afterwards.
type TranscriptStream interface {
	Next() (entities.TranscriptEvent, error)
	// Close releases the backend stream. Safe to call more than once.
	Close() error
}
