package session

import (
	"reflect"
	"testing"
)

func TestSplitterBasicSentences(t *testing.T) {
	sp := NewSplitter(0)

	got := sp.Push("Hello there. How are you?")
	want := []string{"Hello there."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Push returned %v, want %v", got, want)
	}

	// The trailing sentence ends at the delta boundary, so it stays pending
	// until Flush confirms the terminator run is over.
	tail, ok := sp.Flush()
	if !ok || tail != "How are you?" {
		t.Fatalf("Flush = %q, %v", tail, ok)
	}
	if _, ok := sp.Flush(); ok {
		t.Fatal("expected nothing pending after the final flush")
	}
}

func TestSplitterDeltaSpansBoundary(t *testing.T) {
	sp := NewSplitter(0)

	if got := sp.Push("The weather is ni"); got != nil {
		t.Fatalf("incomplete sentence yielded %v", got)
	}
	got := sp.Push("ce today. Tomorrow looks")
	if len(got) != 1 || got[0] != "The weather is nice today." {
		t.Fatalf("got %v", got)
	}

	tail, ok := sp.Flush()
	if !ok || tail != "Tomorrow looks" {
		t.Fatalf("Flush = %q, %v", tail, ok)
	}
}

func TestSplitterCJKTerminators(t *testing.T) {
	sp := NewSplitter(0)

	got := sp.Push("你好。今天天气如何？")
	want := []string{"你好。"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Push returned %v, want %v", got, want)
	}

	tail, ok := sp.Flush()
	if !ok || tail != "今天天气如何？" {
		t.Fatalf("Flush = %q, %v", tail, ok)
	}
}

func TestSplitterForceFlushAtMaxRunes(t *testing.T) {
	sp := NewSplitter(10)

	got := sp.Push("abcdefghij klmno")
	if len(got) != 1 {
		t.Fatalf("expected one forced sentence, got %v", got)
	}
	if got[0] != "abcdefghij" {
		t.Fatalf("forced sentence = %q", got[0])
	}
	if sp.Pending() != 6 {
		t.Fatalf("pending runes = %d, want 6", sp.Pending())
	}
}

func TestSplitterWhitespaceOnlySegmentsDropped(t *testing.T) {
	sp := NewSplitter(0)

	if got := sp.Push("Done. "); len(got) != 1 || got[0] != "Done." {
		t.Fatalf("got %v", got)
	}
	// Remaining buffer holds only the trailing space.
	if _, ok := sp.Flush(); ok {
		t.Fatal("whitespace-only tail should not flush as a sentence")
	}
}

func TestSplitterConsecutiveTerminators(t *testing.T) {
	sp := NewSplitter(0)

	// An ellipsis stays attached to its sentence instead of shattering into
	// bare punctuation fragments.
	got := sp.Push("Wait... I think so.")
	want := []string{"Wait..."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	tail, ok := sp.Flush()
	if !ok || tail != "I think so." {
		t.Fatalf("Flush = %q, %v", tail, ok)
	}
}

func TestSplitterTerminatorRunSpansDeltas(t *testing.T) {
	sp := NewSplitter(0)

	if got := sp.Push("Hold on."); got != nil {
		t.Fatalf("run still open, got %v", got)
	}
	got := sp.Push(".. Sure thing.")
	want := []string{"Hold on..."}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	tail, ok := sp.Flush()
	if !ok || tail != "Sure thing." {
		t.Fatalf("Flush = %q, %v", tail, ok)
	}
}
