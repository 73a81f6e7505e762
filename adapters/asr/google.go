// Package asr provides the speech-recognition adapters. Both backend shapes
// (gRPC streaming and batch HTTP) surface as the same lazy transcript
// sequence, so the session pipeline never branches on the backend.
package asr

import (
	"context"
	"fmt"
	"io"
	"time"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
)

// GoogleSpeechToText implements the streaming backend shape on Google Cloud
// Speech. Interim results are forwarded as partial transcript events.
type GoogleSpeechToText struct {
	logger *zap.Logger
}

var _ repositories.SpeechToText = (*GoogleSpeechToText)(nil)

func NewGoogleSpeechToText(logger *zap.Logger) *GoogleSpeechToText {
	return &GoogleSpeechToText{logger: logger}
}

// Transcribe opens a streaming recognize session, feeds it the whole
// utterance, and returns the event sequence. The stream carries interim
// events followed by exactly one final event.
func (g *GoogleSpeechToText) Transcribe(ctx context.Context, pcm []byte, config repositories.AudioConfig) (repositories.TranscriptStream, error) {
	client, err := speech.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}

	stream, err := client.StreamingRecognize(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("open streaming recognize: %w", err)
	}

	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz: int32(config.SampleRate),
					LanguageCode:    config.Language,
				},
				InterimResults:  true,
				SingleUtterance: true,
			},
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("send streaming config: %w", err)
	}

	// The utterance is already complete when we get it (the jitter buffer
	// reassembled it), so submit it in one write and close the send side.
	if err := stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: pcm,
		},
	}); err != nil {
		stream.CloseSend()
		client.Close()
		return nil, fmt.Errorf("send audio: %w", err)
	}
	if err := stream.CloseSend(); err != nil {
		client.Close()
		return nil, fmt.Errorf("close send: %w", err)
	}

	return &googleTranscriptStream{
		client: client,
		stream: stream,
		logger: g.logger,
	}, nil
}

type googleTranscriptStream struct {
	client *speech.Client
	stream speechpb.Speech_StreamingRecognizeClient
	logger *zap.Logger

	finalSent bool
	lastFinal string
	closed    bool
}

func (s *googleTranscriptStream) Next() (entities.TranscriptEvent, error) {
	if s.finalSent {
		return entities.TranscriptEvent{}, io.EOF
	}

	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			// Backend closed without an explicit final result; commit
			// whatever final text we saw (possibly empty).
			s.finalSent = true
			return entities.TranscriptEvent{
				Text:      s.lastFinal,
				IsFinal:   true,
				EmittedAt: time.Now(),
			}, nil
		}
		if err != nil {
			return entities.TranscriptEvent{}, fmt.Errorf("receive transcript: %w", err)
		}

		for _, result := range resp.Results {
			if len(result.Alternatives) == 0 {
				continue
			}
			text := result.Alternatives[0].Transcript
			if result.IsFinal {
				s.lastFinal = text
				continue
			}
			return entities.TranscriptEvent{
				Text:      text,
				IsFinal:   false,
				EmittedAt: time.Now(),
			}, nil
		}
	}
}

func (s *googleTranscriptStream) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.client.Close()
}
