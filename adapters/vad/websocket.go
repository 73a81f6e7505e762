package vad

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// frameBytes is how much PCM goes into one websocket binary message.
const frameBytes = 8192

// WebsocketDetector speaks the streaming VAD protocol: a config message,
// binary PCM frames, a finalize message, then one JSON result. A fresh
// connection is dialed per utterance; VAD sessions are short and the backend
// treats connections as sessions.
type WebsocketDetector struct {
	endpoint string
	dialer   *websocket.Dialer
	logger   *zap.Logger
}

var _ repositories.VoiceActivityDetector = (*WebsocketDetector)(nil)

func NewWebsocketDetector(endpoint string, handshakeTimeout time.Duration, logger *zap.Logger) *WebsocketDetector {
	if handshakeTimeout <= 0 {
		handshakeTimeout = 5 * time.Second
	}
	return &WebsocketDetector{
		endpoint: endpoint,
		dialer:   &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		logger:   logger,
	}
}

type wsConfigMessage struct {
	Event      string `json:"event"`
	SampleRate int    `json:"sample_rate"`
}

type wsResultMessage struct {
	Event     string `json:"event"`
	Intervals []struct {
		StartMs int `json:"start_ms"`
		EndMs   int `json:"end_ms"`
	} `json:"intervals"`
	Error string `json:"error,omitempty"`
}

func (d *WebsocketDetector) DetectSpeech(ctx context.Context, pcm []byte, config repositories.AudioConfig) ([]entities.SpeechInterval, error) {
	conn, _, err := d.dialer.DialContext(ctx, d.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("dial vad server: %w", err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}

	if err := conn.WriteJSON(wsConfigMessage{Event: "start", SampleRate: config.SampleRate}); err != nil {
		return nil, fmt.Errorf("send vad config: %w", err)
	}

	for off := 0; off < len(pcm); off += frameBytes {
		end := off + frameBytes
		if end > len(pcm) {
			end = len(pcm)
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:end]); err != nil {
			return nil, fmt.Errorf("send vad audio: %w", err)
		}
	}

	if err := conn.WriteJSON(wsConfigMessage{Event: "finalize"}); err != nil {
		return nil, fmt.Errorf("finalize vad stream: %w", err)
	}

	// Interim messages may precede the final result; skip them.
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return nil, fmt.Errorf("read vad result: %w", err)
		}

		var result wsResultMessage
		if err := json.Unmarshal(message, &result); err != nil {
			return nil, fmt.Errorf("unmarshal vad result: %w", err)
		}
		if result.Event != "result" {
			continue
		}
		if result.Error != "" {
			return nil, fmt.Errorf("vad server error: %s", result.Error)
		}

		intervals := make([]entities.SpeechInterval, 0, len(result.Intervals))
		for _, iv := range result.Intervals {
			intervals = append(intervals, entities.SpeechInterval{
				Start: time.Duration(iv.StartMs) * time.Millisecond,
				End:   time.Duration(iv.EndMs) * time.Millisecond,
			})
		}
		d.logger.Debug("vad stream complete", zap.Int("intervals", len(intervals)))
		return intervals, nil
	}
}
