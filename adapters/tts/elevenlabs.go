// Package tts provides the speech synthesis adapters. The streaming backend
// speaks the Eleven Labs API; the batch backend speaks a piper-style WAV
// server. Both yield PCM through an AudioStream and leave resampling to the
// pipeline.
package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/repositories"
)

const (
	defaultAPIBaseURL   = "https://api.elevenlabs.io/v1"
	defaultVoiceID      = "21m00Tcm4TlvDq8ikWAM"
	defaultModelID      = "eleven_multilingual_v2"
	defaultOutputFormat = "pcm_24000"
	defaultChunkSize    = 4096
	defaultStability    = 0.5
	defaultClarity      = 0.75
)

// ElevenLabsConfig holds configuration for the streaming synthesizer. Only
// APIKey is required; everything else falls back to defaults.
type ElevenLabsConfig struct {
	APIKey       string
	APIBaseURL   string
	VoiceID      string
	ModelID      string
	OutputFormat string
	ChunkSize    int
	Stability    float64
	Clarity      float64
}

// ElevenLabsSynthesizer implements SpeechSynthesizer against the Eleven Labs
// streaming endpoint. PCM arrives incrementally, so playback of a sentence
// can begin before its synthesis finishes.
type ElevenLabsSynthesizer struct {
	config     ElevenLabsConfig
	sampleRate int
	client     *http.Client
	logger     *zap.Logger
}

var _ repositories.SpeechSynthesizer = (*ElevenLabsSynthesizer)(nil)

func NewElevenLabsSynthesizer(config ElevenLabsConfig, logger *zap.Logger) (*ElevenLabsSynthesizer, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("eleven labs API key is required")
	}
	if config.Stability < 0 || config.Stability > 1 {
		return nil, fmt.Errorf("stability must be between 0 and 1, got %f", config.Stability)
	}
	if config.Clarity < 0 || config.Clarity > 1 {
		return nil, fmt.Errorf("clarity must be between 0 and 1, got %f", config.Clarity)
	}
	if config.APIBaseURL == "" {
		config.APIBaseURL = defaultAPIBaseURL
	}
	if config.VoiceID == "" {
		config.VoiceID = defaultVoiceID
	}
	if config.ModelID == "" {
		config.ModelID = defaultModelID
	}
	if config.OutputFormat == "" {
		config.OutputFormat = defaultOutputFormat
	}
	if config.ChunkSize == 0 {
		config.ChunkSize = defaultChunkSize
	}
	if config.Stability == 0 {
		config.Stability = defaultStability
	}
	if config.Clarity == 0 {
		config.Clarity = defaultClarity
	}

	rate, err := pcmRate(config.OutputFormat)
	if err != nil {
		return nil, err
	}

	return &ElevenLabsSynthesizer{
		config:     config,
		sampleRate: rate,
		client:     &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}, nil
}

// pcmRate extracts the sample rate from an output format like "pcm_24000".
func pcmRate(format string) (int, error) {
	rest, ok := strings.CutPrefix(format, "pcm_")
	if !ok {
		return 0, fmt.Errorf("output format %q is not raw PCM", format)
	}
	rate, err := strconv.Atoi(rest)
	if err != nil || rate <= 0 {
		return 0, fmt.Errorf("output format %q has no valid sample rate", format)
	}
	return rate, nil
}

type elevenLabsRequest struct {
	Text          string `json:"text"`
	ModelID       string `json:"model_id"`
	LanguageCode  string `json:"language_code,omitempty"`
	VoiceSettings struct {
		Stability       float64 `json:"stability"`
		SimilarityBoost float64 `json:"similarity_boost"`
	} `json:"voice_settings"`
}

func (e *ElevenLabsSynthesizer) Synthesize(ctx context.Context, text string, config repositories.VoiceConfig) (repositories.AudioStream, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("text cannot be empty")
	}

	voiceID := config.Voice
	if voiceID == "" {
		voiceID = e.config.VoiceID
	}

	request := elevenLabsRequest{Text: text, ModelID: e.config.ModelID, LanguageCode: config.Language}
	request.VoiceSettings.Stability = e.config.Stability
	request.VoiceSettings.SimilarityBoost = e.config.Clarity

	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/text-to-speech/%s/stream?output_format=%s&enable_logging=false",
		e.config.APIBaseURL, voiceID, e.config.OutputFormat)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(requestBody))
	if err != nil {
		return nil, fmt.Errorf("build synthesis request: %w", err)
	}
	req.Header.Set("Accept", "audio/pcm")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", e.config.APIKey)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to synthesis server: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		errorBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("synthesis server returned status %d: %s", resp.StatusCode, errorBody)
	}

	e.logger.Debug("synthesis stream opened",
		zap.String("voice_id", voiceID),
		zap.Int("text_runes", len([]rune(text))))

	return &elevenLabsStream{
		body:       resp.Body,
		sampleRate: e.sampleRate,
		chunkSize:  e.config.ChunkSize,
	}, nil
}

// elevenLabsStream reads the chunked PCM response body.
type elevenLabsStream struct {
	body       io.ReadCloser
	sampleRate int
	chunkSize  int
}

func (s *elevenLabsStream) Next() ([]byte, error) {
	buffer := make([]byte, s.chunkSize)
	n, err := s.body.Read(buffer)
	if n > 0 {
		return buffer[:n], nil
	}
	if err == nil {
		err = io.EOF
	}
	return nil, err
}

func (s *elevenLabsStream) SampleRate() int { return s.sampleRate }

func (s *elevenLabsStream) Close() error { return s.body.Close() }
