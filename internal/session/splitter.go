// Package session holds the live-session core: the per-device actor that
// drives an utterance through detection, transcription, generation, and
// synthesis, the manager that arbitrates which session is live, and the
// sentence splitter that feeds synthesis while generation is still running.
package session

import (
	"strings"
)

// defaultMaxSentenceRunes bounds how long a sentence may grow before it is
// force-flushed. Keeps synthesis latency bounded when a model emits long
// stretches without terminal punctuation.
const defaultMaxSentenceRunes = 120

// sentenceTerminators end a sentence in both ASCII and CJK punctuation.
const sentenceTerminators = ".!?。！？"

// Splitter accumulates model text deltas and cuts them into sentences at
// terminal punctuation. Runs of terminators ("Wait...") stay attached to
// their sentence: the cut happens at the first non-terminator rune after the
// run, even when the run spans deltas. Not safe for concurrent use; it lives
// inside a single session actor.
type Splitter struct {
	maxRunes   int
	pending    strings.Builder
	runes      int
	terminated bool
}

// NewSplitter returns a splitter with the given rune cap per sentence.
// A non-positive cap selects the default.
func NewSplitter(maxRunes int) *Splitter {
	if maxRunes <= 0 {
		maxRunes = defaultMaxSentenceRunes
	}
	return &Splitter{maxRunes: maxRunes}
}

// Push appends one delta and returns any sentences it completed, in order.
// A sentence whose terminator run ends exactly at the delta boundary stays
// pending until the next delta or Flush decides the run is over.
func (s *Splitter) Push(delta string) []string {
	var sentences []string
	for _, r := range delta {
		terminator := strings.ContainsRune(sentenceTerminators, r)
		if s.terminated && !terminator {
			if sentence := s.cut(); sentence != "" {
				sentences = append(sentences, sentence)
			}
		}
		s.pending.WriteRune(r)
		s.runes++
		if terminator {
			s.terminated = true
		} else if s.runes >= s.maxRunes {
			if sentence := s.cut(); sentence != "" {
				sentences = append(sentences, sentence)
			}
		}
	}
	return sentences
}

// Flush returns the trailing partial sentence, if any. Called once the model
// signals end of generation.
func (s *Splitter) Flush() (string, bool) {
	sentence := s.cut()
	return sentence, sentence != ""
}

// Pending reports how many runes are buffered toward the next cut.
func (s *Splitter) Pending() int {
	return s.runes
}

func (s *Splitter) cut() string {
	sentence := strings.TrimSpace(s.pending.String())
	s.pending.Reset()
	s.runes = 0
	s.terminated = false
	return sentence
}
