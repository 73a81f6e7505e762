package jitter

import (
	"bytes"
	"testing"
	"time"

	"github.com/voxkit/voxbridge/domain/entities"
)

func frame(seq uint32, payload ...byte) entities.AudioFrame {
	return entities.AudioFrame{SessionID: "s1", SequenceNumber: seq, Payload: payload}
}

func TestInOrderDelivery(t *testing.T) {
	b := New(Config{Window: 8, FrameSize: 2})

	b.Push(frame(0, 1, 1))
	b.Push(frame(1, 2, 2))
	b.Push(frame(2, 3, 3))

	got := b.Read()
	want := []byte{1, 1, 2, 2, 3, 3}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Lost() != 0 {
		t.Errorf("lost = %d, want 0", b.Lost())
	}
}

func TestReordersWithinWindow(t *testing.T) {
	b := New(Config{Window: 8, FrameSize: 2})

	// Frames 1,3,2 arriving in that order yield output ordered 1,2,3.
	b.Push(frame(1, 1, 1))
	b.Push(frame(3, 3, 3))
	b.Push(frame(2, 2, 2))

	got := b.Read()
	want := []byte{1, 1, 2, 2, 3, 3}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestLateFrameDroppedNotReordered(t *testing.T) {
	b := New(Config{Window: 4, FrameSize: 1})

	b.Push(frame(10, 1))
	b.Push(frame(11, 2))
	// Sequence far below the watermark: dropped, counted as loss.
	b.Push(frame(3, 9))

	got := b.Read()
	want := []byte{1, 2}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Lost() != 1 {
		t.Errorf("lost = %d, want 1", b.Lost())
	}
}

func TestDuplicateFrameIgnored(t *testing.T) {
	b := New(Config{Window: 4, FrameSize: 1})

	b.Push(frame(0, 7))
	b.Push(frame(1, 8))
	b.Push(frame(1, 8))

	got := b.Read()
	want := []byte{7, 8}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Received() != 2 {
		t.Errorf("received = %d, want 2", b.Received())
	}
}

func TestGapZeroFilledOnWindowOverflow(t *testing.T) {
	b := New(Config{Window: 3, FrameSize: 2})

	b.Push(frame(0, 1, 1))
	// Frame 1 never arrives. Frames 2..4 force the watermark past the gap.
	b.Push(frame(2, 3, 3))
	b.Push(frame(3, 4, 4))
	b.Push(frame(4, 5, 5))

	got := b.Read()
	want := []byte{1, 1, 0, 0, 3, 3, 4, 4, 5, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Lost() != 1 {
		t.Errorf("lost = %d, want 1", b.Lost())
	}
}

func TestGapReleasedAfterBoundedWait(t *testing.T) {
	b := New(Config{Window: 16, FrameSize: 2, MaxWait: 50 * time.Millisecond})

	start := time.Now()
	b.pushAt(frame(0, 1, 1), start)
	b.pushAt(frame(2, 3, 3), start)

	// Before the deadline the gap holds frame 2 back.
	if got := b.Read(); !bytes.Equal(got, []byte{1, 1}) {
		t.Fatalf("premature release: %v", got)
	}

	// A later arrival past the deadline forces the gap closed.
	b.pushAt(frame(3, 4, 4), start.Add(100*time.Millisecond))

	got := b.Read()
	want := []byte{0, 0, 3, 3, 4, 4}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Lost() != 1 {
		t.Errorf("lost = %d, want 1", b.Lost())
	}
}

func TestFlushDrainsPendingWithZeroFill(t *testing.T) {
	b := New(Config{Window: 16, FrameSize: 2})

	b.Push(frame(0, 1, 1))
	b.Push(frame(2, 3, 3))
	b.Push(frame(4, 5, 5))

	got := b.Flush()
	want := []byte{1, 1, 0, 0, 3, 3, 0, 0, 5, 5}
	if !bytes.Equal(got, want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if b.Lost() != 2 {
		t.Errorf("lost = %d, want 2", b.Lost())
	}
}

func TestFirstFrameEstablishesWatermark(t *testing.T) {
	b := New(Config{Window: 4, FrameSize: 1})

	b.Push(frame(1000, 1))
	b.Push(frame(1001, 2))

	got := b.Read()
	if !bytes.Equal(got, []byte{1, 2}) {
		t.Errorf("got %v", got)
	}
}
