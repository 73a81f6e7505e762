package repositories

import (
	"context"

	"github.com/voxkit/voxbridge/domain/entities"
)

// VoiceActivityDetector classifies a complete utterance as speech or silence.
//
// It is a cost-control gate in front of ASR, not an end-pointing mechanism:
// end of utterance is decided upstream (explicit control message or silence
// timeout). Callers treat detector failure as "speech present" (fail open) so
// an unreachable VAD service never swallows user input.
type VoiceActivityDetector interface {
	// DetectSpeech submits the full reassembled utterance and returns the
	// detected speech intervals. An empty slice means no speech.
	DetectSpeech(ctx context.Context, pcm []byte, config AudioConfig) ([]entities.SpeechInterval, error)
}

// AudioConfig describes the raw PCM handed to the speech services.
type AudioConfig struct {
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Encoding   string `json:"encoding"`
	Language   string `json:"language"`
}
