package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/repositories"
	"github.com/voxkit/voxbridge/internal/audio"
)

// WAVSynthesizer implements the batch backend shape against a piper-style
// server: JSON {"text": "..."} request, complete WAV file response. The WAV
// surfaces as a single-chunk stream at the rate declared in its header.
type WAVSynthesizer struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*WAVSynthesizer)(nil)

func NewWAVSynthesizer(endpoint string, timeout time.Duration, logger *zap.Logger) *WAVSynthesizer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WAVSynthesizer{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type wavRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (w *WAVSynthesizer) Synthesize(ctx context.Context, text string, config repositories.VoiceConfig) (repositories.AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	payload, err := json.Marshal(wavRequest{Text: text, Voice: config.Voice})
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to synthesis server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read synthesis response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("synthesis server returned status %d: %s", resp.StatusCode, body)
	}

	pcm, info, err := audio.DecodeWAV(body)
	if err != nil {
		return nil, fmt.Errorf("decode synthesized audio: %w", err)
	}

	w.logger.Debug("batch synthesis complete",
		zap.Int("pcm_bytes", len(pcm)),
		zap.Int("sample_rate", info.SampleRate))

	return &wavStream{pcm: pcm, sampleRate: info.SampleRate}, nil
}

// wavStream yields the decoded PCM as one chunk, then EOF.
type wavStream struct {
	pcm        []byte
	sampleRate int
	done       bool
}

func (s *wavStream) Next() ([]byte, error) {
	if s.done {
		return nil, io.EOF
	}
	s.done = true
	return s.pcm, nil
}

func (s *wavStream) SampleRate() int { return s.sampleRate }

func (s *wavStream) Close() error { return nil }
