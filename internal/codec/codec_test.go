package codec

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

func TestAudioPacketRoundTrip(t *testing.T) {
	in := &AudioPacket{
		DeviceID:       "dev-001",
		SequenceNumber: 42,
		Timestamp:      time.UnixMilli(1700000000123),
		EndOfUtterance: true,
		Payload:        []byte{0x01, 0x02, 0x03, 0x04},
	}

	data, err := EncodeAudioPacket(in)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	out, err := DecodeAudioPacket(data)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	if out.DeviceID != in.DeviceID {
		t.Errorf("device id: got %q, want %q", out.DeviceID, in.DeviceID)
	}
	if out.SequenceNumber != in.SequenceNumber {
		t.Errorf("sequence: got %d, want %d", out.SequenceNumber, in.SequenceNumber)
	}
	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("timestamp: got %v, want %v", out.Timestamp, in.Timestamp)
	}
	if !out.EndOfUtterance {
		t.Error("expected end-of-utterance flag")
	}
	if out.Silence {
		t.Error("silence flag should not be set")
	}
	if !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("payload: got %v, want %v", out.Payload, in.Payload)
	}
}

func TestDecodeAudioPacketMalformed(t *testing.T) {
	cases := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"too short", []byte{3, 'a', 'b'}},
		{"zero id length", append([]byte{0}, make([]byte, 20)...)},
		{"id length beyond packet", append([]byte{64}, make([]byte, 10)...)},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := DecodeAudioPacket(tc.data); err == nil {
				t.Error("expected error for malformed packet")
			}
		})
	}
}

func TestDecodeAudioPacketPayloadMismatch(t *testing.T) {
	good, err := EncodeAudioPacket(&AudioPacket{
		DeviceID: "d1",
		Payload:  []byte{1, 2, 3},
	})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}

	// Truncate the payload: the declared length no longer matches.
	if _, err := DecodeAudioPacket(good[:len(good)-1]); err == nil {
		t.Error("expected error for truncated payload")
	}

	// Extra trailing bytes are rejected too.
	if _, err := DecodeAudioPacket(append(good, 0xFF)); err == nil {
		t.Error("expected error for trailing bytes")
	}
}

func TestEncodeAudioPacketLimits(t *testing.T) {
	if _, err := EncodeAudioPacket(&AudioPacket{DeviceID: ""}); !errors.Is(err, ErrDeviceIDTooLong) {
		t.Errorf("empty device id: got %v", err)
	}

	long := make([]byte, 65)
	for i := range long {
		long[i] = 'x'
	}
	if _, err := EncodeAudioPacket(&AudioPacket{DeviceID: string(long)}); !errors.Is(err, ErrDeviceIDTooLong) {
		t.Errorf("long device id: got %v", err)
	}

	if _, err := EncodeAudioPacket(&AudioPacket{
		DeviceID: "d1",
		Payload:  make([]byte, maxPayloadLen+1),
	}); !errors.Is(err, ErrPayloadTooLarge) {
		t.Errorf("oversized payload: got %v", err)
	}
}

func TestEventRoundTrip(t *testing.T) {
	events := []*Event{
		PartialTranscript("s1", "hello wor"),
		FinalTranscript("s1", "hello world"),
		StartAudio("s1", "The weather is sunny."),
		AudioChunk("s1", 3, []byte{9, 8, 7}, false),
		EndAudio("s1"),
		EndResponse("s1"),
		ErrorEvent("s1", "turn_failed", "no input understood"),
	}

	for _, ev := range events {
		t.Run(ev.Type.String(), func(t *testing.T) {
			data, err := EncodeEvent(ev)
			if err != nil {
				t.Fatalf("encode failed: %v", err)
			}
			got, err := DecodeEvent(data)
			if err != nil {
				t.Fatalf("decode failed: %v", err)
			}
			if got.Type != ev.Type || got.SessionID != ev.SessionID || got.Text != ev.Text {
				t.Errorf("got %+v, want %+v", got, ev)
			}
			if got.ChunkIndex != ev.ChunkIndex || got.IsLast != ev.IsLast {
				t.Errorf("chunk fields: got %+v, want %+v", got, ev)
			}
			if !bytes.Equal(got.Audio, ev.Audio) {
				t.Errorf("audio: got %v, want %v", got.Audio, ev.Audio)
			}
		})
	}
}

func TestDecodeEventRejectsUnknownTag(t *testing.T) {
	data, err := EncodeEvent(&Event{Type: EventHelloEnd})
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := DecodeEvent(data); err != nil {
		t.Fatalf("valid tag rejected: %v", err)
	}

	if _, err := DecodeEvent([]byte{0xc0}); err == nil {
		t.Error("expected error for nil msgpack value")
	}
}
