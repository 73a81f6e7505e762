// Package vad provides the voice-activity-detection adapters. Deployments
// select either the batch HTTP backend or the streaming websocket backend by
// configuration; both answer the same question: which spans of the utterance
// contain speech.
package vad

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// HTTPDetector submits the whole utterance in one JSON request and reads the
// detected speech intervals back.
type HTTPDetector struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

var _ repositories.VoiceActivityDetector = (*HTTPDetector)(nil)

func NewHTTPDetector(endpoint string, timeout time.Duration, logger *zap.Logger) *HTTPDetector {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDetector{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

type detectRequest struct {
	Audio      string `json:"audio"` // base64 PCM16
	SampleRate int    `json:"sample_rate"`
}

type detectResponse struct {
	Intervals []struct {
		StartMs int `json:"start_ms"`
		EndMs   int `json:"end_ms"`
	} `json:"intervals"`
}

func (d *HTTPDetector) DetectSpeech(ctx context.Context, pcm []byte, config repositories.AudioConfig) ([]entities.SpeechInterval, error) {
	payload, err := json.Marshal(detectRequest{
		Audio:      base64.StdEncoding.EncodeToString(pcm),
		SampleRate: config.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("encode vad request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build vad request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post to vad server: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read vad response: %w", err)
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("vad server returned status %d: %s", resp.StatusCode, body)
	}

	var parsed detectResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal vad response: %w", err)
	}

	intervals := make([]entities.SpeechInterval, 0, len(parsed.Intervals))
	for _, iv := range parsed.Intervals {
		intervals = append(intervals, entities.SpeechInterval{
			Start: time.Duration(iv.StartMs) * time.Millisecond,
			End:   time.Duration(iv.EndMs) * time.Millisecond,
		})
	}
	d.logger.Debug("vad detection complete", zap.Int("intervals", len(intervals)))
	return intervals, nil
}
