package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/adapters/asr"
	"github.com/voxkit/voxbridge/adapters/llm"
	"github.com/voxkit/voxbridge/adapters/tts"
	"github.com/voxkit/voxbridge/adapters/vad"
	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/internal/codec"
)

// recordedEvent is one event captured by the recorder sink, stamped with its
// arrival order.
type recordedEvent struct {
	deviceID string
	event    codec.Event
	at       time.Time
}

// recorderSink captures device events for assertions.
type recorderSink struct {
	mu      sync.Mutex
	events  []recordedEvent
	onEvent func(ev *codec.Event)
}

func (r *recorderSink) Send(deviceID string, ev *codec.Event) error {
	r.mu.Lock()
	r.events = append(r.events, recordedEvent{deviceID: deviceID, event: *ev, at: time.Now()})
	cb := r.onEvent
	r.mu.Unlock()
	if cb != nil {
		cb(ev)
	}
	return nil
}

func (r *recorderSink) snapshot() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

func (r *recorderSink) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// memoryStore collects terminal sessions and signals each append.
type memoryStore struct {
	mu       sync.Mutex
	sessions []entities.Session
	appended chan entities.Session
}

func newMemoryStore() *memoryStore {
	return &memoryStore{appended: make(chan entities.Session, 16)}
}

func (s *memoryStore) Append(ctx context.Context, session *entities.Session) error {
	s.mu.Lock()
	s.sessions = append(s.sessions, *session)
	s.mu.Unlock()
	select {
	case s.appended <- *session:
	default:
	}
	return nil
}

func (s *memoryStore) RecentByDevice(ctx context.Context, deviceID string, limit int) ([]*entities.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*entities.Session
	for i := len(s.sessions) - 1; i >= 0 && len(out) < limit; i-- {
		if s.sessions[i].DeviceID == deviceID {
			sess := s.sessions[i]
			out = append(out, &sess)
		}
	}
	return out, nil
}

func (s *memoryStore) appends(sessionID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, sess := range s.sessions {
		if sess.ID == sessionID {
			n++
		}
	}
	return n
}

func (s *memoryStore) waitTerminal(t *testing.T, sessionID string) entities.Session {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case sess := <-s.appended:
			if sess.ID == sessionID || sessionID == "" {
				return sess
			}
		case <-deadline:
			t.Fatalf("session %q never reached a terminal state", sessionID)
		}
	}
}

// testFixture wires a manager with mock adapters and fast timeouts.
type testFixture struct {
	manager  *Manager
	sink     *recorderSink
	store    *memoryStore
	detector *vad.MockDetector
	speech   *asr.MockSpeechToText
	dialogue *llm.MockDialogue
	synth    *tts.MockSynthesizer
}

func newFixture(t *testing.T, mutate func(*testFixture, *Config)) *testFixture {
	t.Helper()
	f := &testFixture{
		sink:     &recorderSink{},
		store:    newMemoryStore(),
		detector: vad.SpeechEverywhere(),
		speech:   &asr.MockSpeechToText{Final: "hello there"},
		dialogue: &llm.MockDialogue{Deltas: []string{"Hi."}},
		synth:    &tts.MockSynthesizer{Rate: 16000},
	}
	cfg := Config{
		DeviceSampleRate: 16000,
		Channels:         1,
		FrameSize:        320,
		SilenceTimeout:   40 * time.Millisecond,
		IdleTimeout:      2 * time.Second,
		PlayTimeout:      30 * time.Millisecond,
		ChunkDuration:    20 * time.Millisecond,
	}
	if mutate != nil {
		mutate(f, &cfg)
	}
	f.manager = NewManager(cfg, Adapters{
		Detector:    f.detector,
		Transcriber: f.speech,
		Dialogue:    f.dialogue,
		Synthesizer: f.synth,
		History:     f.store,
	}, f.sink, nil, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		f.manager.Close(ctx)
	})
	return f
}

// speak pushes a short utterance for the device and marks end of utterance.
func (f *testFixture) speak(deviceID string) {
	payload := make([]byte, 320)
	for seq := uint32(0); seq < 4; seq++ {
		f.manager.DeliverFrame(entities.AudioFrame{
			DeviceID:       deviceID,
			SequenceNumber: seq,
			Payload:        payload,
			EndOfUtterance: seq == 3,
			ReceivedAt:     time.Now(),
		})
	}
}
