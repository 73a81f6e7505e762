package repositories

import "context"

// SpeechSynthesizer abstracts text-to-speech services. It is called one
// sentence at a time so synthesis of sentence k can overlap generation of
// sentence k+1. Batch (whole WAV) and streaming (incremental PCM) backends
// both surface as an AudioStream.
type SpeechSynthesizer interface {
	Synthesize(ctx context.Context, text string, config VoiceConfig) (AudioStream, error)
}

// AudioStream yields raw PCM at the backend's native sample rate. Next
// returns io.EOF when synthesis of the sentence is complete.
type AudioStream interface {
	Next() ([]byte, error)
	// SampleRate is the PCM rate of the yielded audio. The pipeline resamples
	// to the device rate; devices never see the backend's native format.
	SampleRate() int
	Close() error
}

// VoiceConfig selects the synthesis voice.
type VoiceConfig struct {
	Voice     string `json:"voice"`
	Language  string `json:"language"`
	SpeakRate string `json:"speak_rate"`
}
