package entities

import "time"

// AudioFrame is one decoded data-plane packet. Sequence numbers are monotonic
// per session and used only for reordering inside the jitter window.
type AudioFrame struct {
	SessionID      string
	DeviceID       string
	SequenceNumber uint32
	Payload        []byte
	EndOfUtterance bool
	Silence        bool
	ReceivedAt     time.Time
}

// TranscriptEvent is one element of the ASR result sequence. Partial events
// (IsFinal=false) are advisory feedback only; the committed transcript is the
// single final event.
type TranscriptEvent struct {
	SessionID string
	Text      string
	IsFinal   bool
	EmittedAt time.Time
}

// DialogueChunk is a slice of the dialogue model's streamed response, emitted
// at sentence boundaries so synthesis can start before generation finishes.
type DialogueChunk struct {
	SessionID          string
	DeltaText          string
	IsSentenceBoundary bool
	IsFinal            bool
}

// SynthesisChunk is fixed-duration playback audio already resampled to the
// device rate. Chunks are delivered in index order.
type SynthesisChunk struct {
	SessionID  string
	AudioBytes []byte
	ChunkIndex int
	IsLast     bool
}

// SpeechInterval is one (start, end) span of detected speech inside an
// utterance, relative to the start of the reassembled audio.
type SpeechInterval struct {
	Start time.Duration `json:"start"`
	End   time.Duration `json:"end"`
}
