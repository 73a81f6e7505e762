// Package codec implements the device wire formats: the little-endian audio
// packet carried on the UDP data plane and the msgpack-encoded event stream
// sent back to the device.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/voxkit/voxbridge/domain/entities"
)

// Audio packet layout, little-endian:
//
//	[0]        device id length (max 64)
//	[1..n]     device id (UTF-8)
//	[n+1..n+4] sequence number (u32)
//	[n+5..12]  timestamp, unix milliseconds (u64)
//	[+1]       flags: bit0 end-of-utterance, bit1 silence
//	[+2]       payload length (u16)
//	[...]      PCM payload
const (
	maxDeviceIDLen   = 64
	maxPayloadLen    = 0xFFFF
	packetFixedBytes = 1 + 4 + 8 + 1 + 2
)

const (
	flagEndOfUtterance = 0x01
	flagSilence        = 0x02
)

var (
	ErrPacketTooShort   = errors.New("codec: packet too short")
	ErrBadDeviceID      = errors.New("codec: invalid device id")
	ErrPayloadMismatch  = errors.New("codec: payload length mismatch")
	ErrPayloadTooLarge  = errors.New("codec: payload too large")
	ErrDeviceIDTooLong  = errors.New("codec: device id too long")
	ErrDeviceIDNotUTF8  = errors.New("codec: device id not valid utf-8")
	errTrailingGarbage  = errors.New("codec: trailing bytes after payload")
)

// AudioPacket is the decoded data-plane packet before it becomes an
// entities.AudioFrame.
type AudioPacket struct {
	DeviceID       string
	SequenceNumber uint32
	Timestamp      time.Time
	EndOfUtterance bool
	Silence        bool
	Payload        []byte
}

// DecodeAudioPacket parses a datagram. Malformed packets yield an error; the
// gateway logs and drops them without touching session state.
func DecodeAudioPacket(data []byte) (*AudioPacket, error) {
	if len(data) < packetFixedBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrPacketTooShort, len(data))
	}

	idLen := int(data[0])
	if idLen == 0 || idLen > maxDeviceIDLen {
		return nil, fmt.Errorf("%w: length %d", ErrBadDeviceID, idLen)
	}
	if len(data) < packetFixedBytes+idLen {
		return nil, fmt.Errorf("%w: truncated device id", ErrPacketTooShort)
	}

	off := 1
	deviceID := string(data[off : off+idLen])
	off += idLen

	seq := binary.LittleEndian.Uint32(data[off:])
	off += 4
	tsMillis := binary.LittleEndian.Uint64(data[off:])
	off += 8
	flags := data[off]
	off++
	payloadLen := int(binary.LittleEndian.Uint16(data[off:]))
	off += 2

	if off+payloadLen > len(data) {
		return nil, fmt.Errorf("%w: declared %d, have %d", ErrPayloadMismatch, payloadLen, len(data)-off)
	}
	if off+payloadLen < len(data) {
		return nil, errTrailingGarbage
	}

	payload := make([]byte, payloadLen)
	copy(payload, data[off:])

	return &AudioPacket{
		DeviceID:       deviceID,
		SequenceNumber: seq,
		Timestamp:      time.UnixMilli(int64(tsMillis)),
		EndOfUtterance: flags&flagEndOfUtterance != 0,
		Silence:        flags&flagSilence != 0,
		Payload:        payload,
	}, nil
}

// EncodeAudioPacket serializes a packet for the device. The device simulator
// and tests use it; the bridge itself sends events, not audio packets.
func EncodeAudioPacket(p *AudioPacket) ([]byte, error) {
	idBytes := []byte(p.DeviceID)
	if len(idBytes) == 0 || len(idBytes) > maxDeviceIDLen {
		return nil, ErrDeviceIDTooLong
	}
	if len(p.Payload) > maxPayloadLen {
		return nil, ErrPayloadTooLarge
	}

	buf := make([]byte, 0, packetFixedBytes+len(idBytes)+len(p.Payload))
	buf = append(buf, byte(len(idBytes)))
	buf = append(buf, idBytes...)
	buf = binary.LittleEndian.AppendUint32(buf, p.SequenceNumber)
	buf = binary.LittleEndian.AppendUint64(buf, uint64(p.Timestamp.UnixMilli()))

	var flags byte
	if p.EndOfUtterance {
		flags |= flagEndOfUtterance
	}
	if p.Silence {
		flags |= flagSilence
	}
	buf = append(buf, flags)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(p.Payload)))
	buf = append(buf, p.Payload...)
	return buf, nil
}

// Frame converts a decoded packet into the session-layer audio frame.
func (p *AudioPacket) Frame(sessionID string, receivedAt time.Time) entities.AudioFrame {
	return entities.AudioFrame{
		SessionID:      sessionID,
		DeviceID:       p.DeviceID,
		SequenceNumber: p.SequenceNumber,
		Payload:        p.Payload,
		EndOfUtterance: p.EndOfUtterance,
		Silence:        p.Silence,
		ReceivedAt:     receivedAt,
	}
}
