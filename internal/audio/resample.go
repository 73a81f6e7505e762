// Package audio converts synthesis output into the device playback format:
// resampling to the device rate and re-segmenting into fixed-duration chunks.
package audio

import (
	"encoding/binary"
	"fmt"
)

// Resample converts 16-bit mono PCM from srcRate to dstRate by linear
// interpolation. Synthesis backends speak whatever rate they like; devices
// only ever see their configured playback rate.
func Resample(pcm []byte, srcRate, dstRate int) ([]byte, error) {
	if srcRate <= 0 || dstRate <= 0 {
		return nil, fmt.Errorf("audio: invalid sample rate %d -> %d", srcRate, dstRate)
	}
	if len(pcm)%2 != 0 {
		return nil, fmt.Errorf("audio: odd pcm16 length %d", len(pcm))
	}
	if srcRate == dstRate || len(pcm) == 0 {
		return pcm, nil
	}

	srcSamples := len(pcm) / 2
	dstSamples := int(int64(srcSamples) * int64(dstRate) / int64(srcRate))
	if dstSamples == 0 {
		return nil, nil
	}

	out := make([]byte, dstSamples*2)
	for i := 0; i < dstSamples; i++ {
		// Position in the source expressed as sample index + fraction.
		pos := int64(i) * int64(srcRate)
		idx := int(pos / int64(dstRate))
		frac := pos % int64(dstRate)

		s0 := sampleAt(pcm, idx)
		s1 := s0
		if idx+1 < srcSamples {
			s1 = sampleAt(pcm, idx+1)
		}

		v := int64(s0) + (int64(s1)-int64(s0))*frac/int64(dstRate)
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(v)))
	}
	return out, nil
}

func sampleAt(pcm []byte, i int) int16 {
	return int16(binary.LittleEndian.Uint16(pcm[i*2:]))
}

// Duration returns the playback duration in milliseconds of 16-bit mono PCM.
func Duration(pcm []byte, rate int) int {
	if rate <= 0 {
		return 0
	}
	samples := len(pcm) / 2
	return samples * 1000 / rate
}
