package audio

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func sine(rate int, dur time.Duration, freq float64) []byte {
	samples := int(int64(rate) * dur.Milliseconds() / 1000)
	out := make([]byte, samples*2)
	for i := 0; i < samples; i++ {
		v := int16(10000 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate)))
		binary.LittleEndian.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func TestResamplePreservesDuration(t *testing.T) {
	// 32kHz backend audio down to the 16kHz device rate.
	src := sine(32000, 750*time.Millisecond, 440)

	dst, err := Resample(src, 32000, 16000)
	if err != nil {
		t.Fatalf("resample failed: %v", err)
	}

	srcMs := Duration(src, 32000)
	dstMs := Duration(dst, 16000)
	if diff := srcMs - dstMs; diff < -1 || diff > 1 {
		t.Errorf("duration drifted: src %dms, dst %dms", srcMs, dstMs)
	}
}

func TestResampleUpAndDown(t *testing.T) {
	src := sine(16000, 200*time.Millisecond, 220)

	up, err := Resample(src, 16000, 24000)
	if err != nil {
		t.Fatalf("upsample failed: %v", err)
	}
	if got, want := len(up)/2, len(src)/2*3/2; got != want {
		t.Errorf("upsample count: got %d samples, want %d", got, want)
	}

	same, err := Resample(src, 16000, 16000)
	if err != nil {
		t.Fatalf("identity resample failed: %v", err)
	}
	if !bytes.Equal(same, src) {
		t.Error("identity resample must be a no-op")
	}
}

func TestResampleRejectsBadInput(t *testing.T) {
	if _, err := Resample([]byte{1}, 16000, 16000); err == nil {
		t.Error("expected error for odd-length pcm")
	}
	if _, err := Resample(nil, 0, 16000); err == nil {
		t.Error("expected error for zero source rate")
	}
}

func TestChunkerFixedDuration(t *testing.T) {
	const rate = 16000
	c := NewChunker(rate, 500*time.Millisecond)

	// 1.75s of audio must become 3 full chunks plus one padded chunk, with
	// total duration preserved within one chunk.
	src := sine(rate, 1750*time.Millisecond, 330)

	var chunks [][]byte
	chunks = append(chunks, c.Write(src)...)
	if tail := c.Flush(); tail != nil {
		chunks = append(chunks, tail)
	}

	if len(chunks) != 4 {
		t.Fatalf("got %d chunks, want 4", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) != c.ChunkBytes() {
			t.Errorf("chunk %d: %d bytes, want %d", i, len(chunk), c.ChunkBytes())
		}
	}

	total := 0
	for _, chunk := range chunks {
		total += Duration(chunk, rate)
	}
	if srcMs := Duration(src, rate); total < srcMs || total > srcMs+500 {
		t.Errorf("total %dms outside [%d, %d]", total, srcMs, srcMs+500)
	}
}

func TestChunkerIncrementalWrites(t *testing.T) {
	c := NewChunker(16000, 100*time.Millisecond) // 3200-byte chunks

	if got := c.Write(make([]byte, 3000)); got != nil {
		t.Errorf("premature chunk: %d", len(got))
	}
	got := c.Write(make([]byte, 3400))
	if len(got) != 2 {
		t.Fatalf("got %d chunks, want 2", len(got))
	}
	if c.Flush() != nil {
		t.Error("nothing should remain after aligned writes")
	}

	// A trailing remainder comes back as one padded chunk.
	if got := c.Write(make([]byte, 200)); got != nil {
		t.Errorf("premature chunk: %d", len(got))
	}
	tail := c.Flush()
	if len(tail) != c.ChunkBytes() {
		t.Errorf("padded flush = %d bytes, want %d", len(tail), c.ChunkBytes())
	}
}

func TestWAVRoundTrip(t *testing.T) {
	pcm := sine(22050, 120*time.Millisecond, 550)

	wav := EncodeWAV(pcm, 22050, 1)
	got, info, err := DecodeWAV(wav)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if info.SampleRate != 22050 || info.Channels != 1 || info.BitDepth != 16 {
		t.Errorf("format: %+v", info)
	}
	if !bytes.Equal(got, pcm) {
		t.Error("pcm payload corrupted in round trip")
	}
}

func TestDecodeWAVRejectsGarbage(t *testing.T) {
	if _, _, err := DecodeWAV([]byte("definitely not audio")); err == nil {
		t.Error("expected error for non-WAV input")
	}
	wav := EncodeWAV(make([]byte, 64), 16000, 1)
	if _, _, err := DecodeWAV(wav[:40]); err == nil {
		t.Error("expected error for truncated header")
	}
}
