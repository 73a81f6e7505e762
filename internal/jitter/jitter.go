// Package jitter reorders the loss-tolerant audio data plane into the
// contiguous byte stream the speech services expect.
package jitter

import (
	"time"

	"github.com/voxkit/voxbridge/domain/entities"
)

// Buffer is a bounded reorder window over per-session audio frames.
//
// Frames inside the window are held at their sequence position. The watermark
// (next expected sequence) advances when the head of the window is
// contiguous, when the window is full, or when the oldest pending frame has
// waited longer than MaxWait, whichever comes first. Frames below the
// watermark are dropped and counted as loss. Gaps that were skipped are
// zero-filled at the expected frame size so downstream duration stays
// correct.
//
// Buffer is owned by a single session actor and is not safe for concurrent
// use.
type Buffer struct {
	window    int
	frameSize int
	maxWait   time.Duration

	next     uint32 // watermark: next expected sequence number
	started  bool
	pending  map[uint32]pendingFrame
	out      []byte
	lost     int
	received int
}

type pendingFrame struct {
	payload []byte
	arrived time.Time
}

// Config sizes the reorder window.
type Config struct {
	// Window is the reorder span in frames. The default covers ~1s of audio
	// at a 32ms frame cadence.
	Window int
	// FrameSize is the expected payload size in bytes, used to zero-fill
	// gaps. Frames of other sizes are accepted as-is.
	FrameSize int
	// MaxWait bounds how long a gap can stall delivery.
	MaxWait time.Duration
}

const (
	defaultWindow  = 32
	defaultMaxWait = 200 * time.Millisecond
)

// New creates a buffer. Zero config fields fall back to defaults.
func New(cfg Config) *Buffer {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = defaultMaxWait
	}
	return &Buffer{
		window:    cfg.Window,
		frameSize: cfg.FrameSize,
		maxWait:   cfg.MaxWait,
		pending:   make(map[uint32]pendingFrame),
	}
}

// Push inserts one frame. The first frame seen establishes the watermark, so
// devices may start sequences at any value.
func (b *Buffer) Push(frame entities.AudioFrame) {
	b.pushAt(frame, time.Now())
}

func (b *Buffer) pushAt(frame entities.AudioFrame, now time.Time) {
	if !b.started {
		b.next = frame.SequenceNumber
		b.started = true
	}

	seq := frame.SequenceNumber
	switch {
	case seq < b.next:
		// Too late: below the watermark. Dropped, never reordered.
		b.lost++
		return
	case seq >= b.next+uint32(b.window):
		// Too far ahead: the sender outran the window. Advance the watermark
		// by draining everything pending so the new frame fits.
		b.drainThrough(seq - uint32(b.window) + 1)
	}

	if _, dup := b.pending[seq]; dup {
		return
	}
	b.pending[seq] = pendingFrame{payload: frame.Payload, arrived: now}
	b.received++
	b.advance(now)
}

// advance moves the watermark over contiguous frames and over gaps whose
// successors have waited past MaxWait.
func (b *Buffer) advance(now time.Time) {
	for {
		if f, ok := b.pending[b.next]; ok {
			b.out = append(b.out, f.payload...)
			delete(b.pending, b.next)
			b.next++
			continue
		}
		if len(b.pending) == 0 {
			return
		}
		if len(b.pending) >= b.window || b.oldestArrival().Add(b.maxWait).Before(now) {
			// Gap at the head: give up on it, preserve duration.
			b.fillGap()
			b.next++
			b.lost++
			continue
		}
		return
	}
}

func (b *Buffer) oldestArrival() time.Time {
	var oldest time.Time
	for _, f := range b.pending {
		if oldest.IsZero() || f.arrived.Before(oldest) {
			oldest = f.arrived
		}
	}
	return oldest
}

func (b *Buffer) drainThrough(newNext uint32) {
	for b.next < newNext {
		if f, ok := b.pending[b.next]; ok {
			b.out = append(b.out, f.payload...)
			delete(b.pending, b.next)
		} else {
			b.fillGap()
			b.lost++
		}
		b.next++
	}
}

func (b *Buffer) fillGap() {
	if b.frameSize > 0 {
		b.out = append(b.out, make([]byte, b.frameSize)...)
	}
}

// Read returns the contiguous bytes released so far and resets the output
// accumulator.
func (b *Buffer) Read() []byte {
	out := b.out
	b.out = nil
	return out
}

// Flush drains everything still pending in sequence order, zero-filling
// unresolved gaps, and returns the full remaining stream. Called at end of
// utterance.
func (b *Buffer) Flush() []byte {
	for len(b.pending) > 0 {
		if f, ok := b.pending[b.next]; ok {
			b.out = append(b.out, f.payload...)
			delete(b.pending, b.next)
		} else {
			b.fillGap()
			b.lost++
		}
		b.next++
	}
	return b.Read()
}

// Lost is the number of frames dropped or zero-filled so far.
func (b *Buffer) Lost() int { return b.lost }

// Received is the number of frames accepted into the window.
func (b *Buffer) Received() int { return b.received }
