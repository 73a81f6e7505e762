package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var ErrNotWAV = errors.New("audio: not a RIFF/WAVE stream")

// WAVInfo is the subset of the fmt chunk the bridge cares about.
type WAVInfo struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// DecodeWAV extracts the PCM payload and format from a WAV container. Batch
// synthesis backends return whole files; the pipeline needs the raw samples.
func DecodeWAV(data []byte) ([]byte, WAVInfo, error) {
	var info WAVInfo
	if len(data) < 44 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, info, ErrNotWAV
	}

	pos := 12
	var pcm []byte
	seenFmt := false
	for pos+8 <= len(data) {
		id := string(data[pos : pos+4])
		size := int(binary.LittleEndian.Uint32(data[pos+4 : pos+8]))
		body := pos + 8
		if body+size > len(data) {
			return nil, info, fmt.Errorf("audio: wav chunk %q overruns stream", id)
		}

		switch id {
		case "fmt ":
			if size < 16 {
				return nil, info, fmt.Errorf("audio: short fmt chunk (%d bytes)", size)
			}
			format := binary.LittleEndian.Uint16(data[body:])
			if format != 1 {
				return nil, info, fmt.Errorf("audio: unsupported wav format %d (want PCM)", format)
			}
			info.Channels = int(binary.LittleEndian.Uint16(data[body+2:]))
			info.SampleRate = int(binary.LittleEndian.Uint32(data[body+4:]))
			info.BitDepth = int(binary.LittleEndian.Uint16(data[body+14:]))
			seenFmt = true
		case "data":
			pcm = data[body : body+size]
		}

		// Chunks are word-aligned.
		pos = body + size
		if size%2 == 1 {
			pos++
		}
	}

	if !seenFmt || pcm == nil {
		return nil, info, fmt.Errorf("audio: wav missing fmt or data chunk")
	}
	return pcm, info, nil
}

// EncodeWAV wraps 16-bit PCM in a minimal RIFF container. Used by the history
// sink and the device simulator.
func EncodeWAV(pcm []byte, sampleRate, channels int) []byte {
	dataSize := len(pcm)
	buf := make([]byte, 0, 44+dataSize)

	buf = append(buf, "RIFF"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(36+dataSize))
	buf = append(buf, "WAVE"...)

	buf = append(buf, "fmt "...)
	buf = binary.LittleEndian.AppendUint32(buf, 16)
	buf = binary.LittleEndian.AppendUint16(buf, 1) // PCM
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(sampleRate*channels*2))
	buf = binary.LittleEndian.AppendUint16(buf, uint16(channels*2))
	buf = binary.LittleEndian.AppendUint16(buf, 16)

	buf = append(buf, "data"...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(dataSize))
	buf = append(buf, pcm...)
	return buf
}
