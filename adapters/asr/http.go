package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
	"github.com/voxkit/voxbridge/internal/audio"
)

// HTTPSpeechToText implements the batch backend shape against a whisper-style
// inference server: multipart "file" upload, JSON {"text": "..."} response.
// The single response surfaces as a one-final-event stream.
type HTTPSpeechToText struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

var _ repositories.SpeechToText = (*HTTPSpeechToText)(nil)

func NewHTTPSpeechToText(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPSpeechToText {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSpeechToText{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type batchResponse struct {
	Text string `json:"text"`
}

func (h *HTTPSpeechToText) Transcribe(ctx context.Context, pcm []byte, config repositories.AudioConfig) (repositories.TranscriptStream, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", "utterance.wav")
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := fw.Write(audio.EncodeWAV(pcm, config.SampleRate, config.Channels)); err != nil {
		return nil, fmt.Errorf("write audio to form: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint, &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to asr server: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read asr response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("asr server returned status %d: %s", resp.StatusCode, respBody)
	}

	var parsed batchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal asr response: %w", err)
	}

	h.logger.Debug("batch transcription complete", zap.Int("audio_bytes", len(pcm)))
	return &batchTranscriptStream{text: parsed.Text}, nil
}

// batchTranscriptStream yields the single final event, then EOF.
type batchTranscriptStream struct {
	text string
	done bool
}

func (s *batchTranscriptStream) Next() (entities.TranscriptEvent, error) {
	if s.done {
		return entities.TranscriptEvent{}, io.EOF
	}
	s.done = true
	return entities.TranscriptEvent{
		Text:      s.text,
		IsFinal:   true,
		EmittedAt: time.Now(),
	}, nil
}

func (s *batchTranscriptStream) Close() error { return nil }
