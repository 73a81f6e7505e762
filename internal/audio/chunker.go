package audio

import "time"

// Chunker re-segments a PCM stream into fixed-duration playback chunks,
// regardless of the granularity the synthesis backend produced. The final
// partial chunk of a sentence is zero-padded to full size so total duration
// is preserved within one chunk.
type Chunker struct {
	chunkBytes int
	buf        []byte
}

// NewChunker sizes chunks for 16-bit mono PCM at the given device rate.
func NewChunker(rate int, chunk time.Duration) *Chunker {
	samples := int(int64(rate) * chunk.Milliseconds() / 1000)
	if samples < 1 {
		samples = 1
	}
	return &Chunker{chunkBytes: samples * 2}
}

// Write appends PCM and returns every complete chunk now available.
func (c *Chunker) Write(pcm []byte) [][]byte {
	c.buf = append(c.buf, pcm...)

	var chunks [][]byte
	for len(c.buf) >= c.chunkBytes {
		chunk := make([]byte, c.chunkBytes)
		copy(chunk, c.buf[:c.chunkBytes])
		c.buf = c.buf[c.chunkBytes:]
		chunks = append(chunks, chunk)
	}
	return chunks
}

// Flush pads and returns the trailing partial chunk, if any.
func (c *Chunker) Flush() []byte {
	if len(c.buf) == 0 {
		return nil
	}
	chunk := make([]byte, c.chunkBytes)
	copy(chunk, c.buf)
	c.buf = nil
	return chunk
}

// ChunkBytes is the size of every emitted chunk.
func (c *Chunker) ChunkBytes() int { return c.chunkBytes }
