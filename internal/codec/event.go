package codec

import (
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// EventType tags the server-to-device event union.
type EventType uint8

const (
	EventPartialTranscript EventType = iota + 1
	EventFinalTranscript
	EventStartAudio
	EventAudioChunk
	EventEndAudio
	EventEndResponse
	EventError
	EventHelloStart
	EventHelloChunk
	EventHelloEnd
)

func (t EventType) String() string {
	switch t {
	case EventPartialTranscript:
		return "partial_transcript"
	case EventFinalTranscript:
		return "final_transcript"
	case EventStartAudio:
		return "start_audio"
	case EventAudioChunk:
		return "audio_chunk"
	case EventEndAudio:
		return "end_audio"
	case EventEndResponse:
		return "end_response"
	case EventError:
		return "error"
	case EventHelloStart:
		return "hello_start"
	case EventHelloChunk:
		return "hello_chunk"
	case EventHelloEnd:
		return "hello_end"
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// Event is the tagged union sent to the device. Only the fields relevant to
// the variant are populated; msgpack keeps the envelope compact.
type Event struct {
	Type       EventType `msgpack:"t"`
	SessionID  string    `msgpack:"s,omitempty"`
	Text       string    `msgpack:"x,omitempty"`
	Audio      []byte    `msgpack:"a,omitempty"`
	ChunkIndex int       `msgpack:"i,omitempty"`
	IsLast     bool      `msgpack:"l,omitempty"`
	Code       string    `msgpack:"c,omitempty"`
	Message    string    `msgpack:"m,omitempty"`
}

var ErrUnknownEvent = errors.New("codec: unknown event type")

// EncodeEvent serializes an event to its binary form.
func EncodeEvent(ev *Event) ([]byte, error) {
	if ev.Type == 0 {
		return nil, ErrUnknownEvent
	}
	data, err := msgpack.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("codec: encode %s event: %w", ev.Type, err)
	}
	return data, nil
}

// DecodeEvent parses an event from its binary form.
func DecodeEvent(data []byte) (*Event, error) {
	var ev Event
	if err := msgpack.Unmarshal(data, &ev); err != nil {
		return nil, fmt.Errorf("codec: decode event: %w", err)
	}
	if ev.Type == 0 || ev.Type > EventHelloEnd {
		return nil, ErrUnknownEvent
	}
	return &ev, nil
}

// Convenience constructors for the variants the pipeline emits.

func PartialTranscript(sessionID, text string) *Event {
	return &Event{Type: EventPartialTranscript, SessionID: sessionID, Text: text}
}

func FinalTranscript(sessionID, text string) *Event {
	return &Event{Type: EventFinalTranscript, SessionID: sessionID, Text: text}
}

func StartAudio(sessionID, text string) *Event {
	return &Event{Type: EventStartAudio, SessionID: sessionID, Text: text}
}

func AudioChunk(sessionID string, index int, audio []byte, isLast bool) *Event {
	return &Event{Type: EventAudioChunk, SessionID: sessionID, ChunkIndex: index, Audio: audio, IsLast: isLast}
}

func EndAudio(sessionID string) *Event {
	return &Event{Type: EventEndAudio, SessionID: sessionID}
}

func EndResponse(sessionID string) *Event {
	return &Event{Type: EventEndResponse, SessionID: sessionID}
}

func ErrorEvent(sessionID, code, message string) *Event {
	return &Event{Type: EventError, SessionID: sessionID, Code: code, Message: message}
}

func HelloStart(sessionID, text string) *Event {
	return &Event{Type: EventHelloStart, SessionID: sessionID, Text: text}
}

func HelloChunk(sessionID string, index int, audio []byte) *Event {
	return &Event{Type: EventHelloChunk, SessionID: sessionID, ChunkIndex: index, Audio: audio}
}

func HelloEnd(sessionID string) *Event {
	return &Event{Type: EventHelloEnd, SessionID: sessionID}
}
