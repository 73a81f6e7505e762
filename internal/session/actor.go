package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
	"github.com/voxkit/voxbridge/domain/repositories"
	"github.com/voxkit/voxbridge/internal/codec"
	"github.com/voxkit/voxbridge/internal/jitter"
	"github.com/voxkit/voxbridge/internal/retry"
)

// EventSink delivers encoded events to a device. The UDP gateway is the
// production implementation; tests substitute a recorder.
type EventSink interface {
	Send(deviceID string, ev *codec.Event) error
}

// Notifier receives lifecycle notifications for observability surfaces (the
// control-bus publisher in production). Calls must not block.
type Notifier interface {
	SessionChanged(session entities.Session)
}

// Adapters bundles the four AI capabilities and the history sink the pipeline
// drives. History may be nil (no persistence configured).
type Adapters struct {
	Detector    repositories.VoiceActivityDetector
	Transcriber repositories.SpeechToText
	Dialogue    repositories.DialogueModel
	Synthesizer repositories.SpeechSynthesizer
	History     repositories.SessionStore
}

// Config carries the per-deployment tuning for session processing.
type Config struct {
	// DeviceSampleRate is the PCM rate of the device audio channel, both
	// inbound and outbound.
	DeviceSampleRate int
	Channels         int
	Language         string
	Voice            repositories.VoiceConfig

	// JitterWindow, FrameSize and JitterMaxWait size the reorder buffer.
	JitterWindow  int
	FrameSize     int
	JitterMaxWait time.Duration

	// SilenceTimeout ends the utterance when no frame arrives for this long
	// while listening. Explicit end-of-utterance signals preempt it.
	SilenceTimeout time.Duration
	// IdleTimeout reclaims a session that never produced any audio.
	IdleTimeout time.Duration
	// PlayTimeout bounds the wait for a playback acknowledgement.
	PlayTimeout time.Duration

	// ChunkDuration is the playback chunk size sent to the device.
	ChunkDuration time.Duration
	// MaxSentenceRunes force-flushes the sentence splitter.
	MaxSentenceRunes int

	// Greeting, when set, is synthesized and played as the hello sequence
	// before the session starts listening.
	Greeting string

	Retry retry.Policy
	// BreakerThreshold and BreakerCooldown tune the per-backend circuit
	// breakers shared by all sessions.
	BreakerThreshold int
	BreakerCooldown  time.Duration
}

func (c Config) withDefaults() Config {
	if c.DeviceSampleRate <= 0 {
		c.DeviceSampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 800 * time.Millisecond
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.PlayTimeout <= 0 {
		c.PlayTimeout = 30 * time.Second
	}
	if c.ChunkDuration <= 0 {
		c.ChunkDuration = 500 * time.Millisecond
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry = retry.DefaultPolicy
	}
	if c.BreakerThreshold <= 0 {
		c.BreakerThreshold = 5
	}
	if c.BreakerCooldown <= 0 {
		c.BreakerCooldown = 30 * time.Second
	}
	return c
}

// guards holds one circuit breaker per backend. They are shared by every
// actor so a dead backend is observed across sessions, not per session.
type guards struct {
	vad *retry.Breaker
	asr *retry.Breaker
	llm *retry.Breaker
	tts *retry.Breaker
}

func newGuards(cfg Config) *guards {
	return &guards{
		vad: retry.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		asr: retry.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		llm: retry.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
		tts: retry.NewBreaker(cfg.BreakerThreshold, cfg.BreakerCooldown),
	}
}

// ErrSessionClosed is returned when a message is sent to an actor that has
// already been severed.
var ErrSessionClosed = errors.New("session: closed")

type msgKind int

const (
	msgFrame msgKind = iota + 1
	msgEndOfUtterance
	msgPlaybackAck
)

type actorMsg struct {
	kind  msgKind
	frame entities.AudioFrame
}

// Actor drives one session from Listening to a terminal state. It owns the
// Session record exclusively; the manager and gateways interact with it only
// through message sends and cancellation.
type Actor struct {
	cfg      Config
	deps     Adapters
	guards   *guards
	sink     EventSink
	notifier Notifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mailbox chan actorMsg
	done    chan struct{}
	onStop  func(*Actor)

	// mu guards the session record and the severed flag. The actor goroutine
	// is the only writer of the record; readers take snapshots.
	mu      sync.Mutex
	session *entities.Session
	severed bool
	outcome entities.SessionOutcome

	buffer *jitter.Buffer
}

func newActor(parent context.Context, session *entities.Session, cfg Config, deps Adapters, g *guards, sink EventSink, notifier Notifier, logger *zap.Logger, onStop func(*Actor)) *Actor {
	ctx, cancel := context.WithCancel(parent)
	return &Actor{
		cfg:      cfg,
		deps:     deps,
		guards:   g,
		sink:     sink,
		notifier: notifier,
		logger: logger.With(
			zap.String("session_id", session.ID),
			zap.String("device_id", session.DeviceID),
		),
		ctx:     ctx,
		cancel:  cancel,
		mailbox: make(chan actorMsg, 64),
		done:    make(chan struct{}),
		onStop:  onStop,
		session: session,
		buffer: jitter.New(jitter.Config{
			Window:    cfg.JitterWindow,
			FrameSize: cfg.FrameSize,
			MaxWait:   cfg.JitterMaxWait,
		}),
	}
}

// Snapshot returns a copy of the session record.
func (a *Actor) Snapshot() entities.Session {
	a.mu.Lock()
	defer a.mu.Unlock()
	return *a.session
}

// SessionID returns the immutable session id.
func (a *Actor) SessionID() string {
	return a.Snapshot().ID
}

// Deliver hands a data-plane frame to the actor. Frames are dropped when the
// mailbox is full; the transport is loss-tolerant by contract.
func (a *Actor) Deliver(frame entities.AudioFrame) {
	select {
	case a.mailbox <- actorMsg{kind: msgFrame, frame: frame}:
	default:
	}
}

// EndUtterance signals explicit end of utterance from the control plane.
func (a *Actor) EndUtterance() {
	select {
	case a.mailbox <- actorMsg{kind: msgEndOfUtterance}:
	case <-a.ctx.Done():
	}
}

// PlaybackAck signals the device finished draining the response audio.
func (a *Actor) PlaybackAck() {
	select {
	case a.mailbox <- actorMsg{kind: msgPlaybackAck}:
	case <-a.ctx.Done():
	}
}

// stop severs the actor's outbound path and cancels all in-flight work. The
// outcome is recorded if the session has not already reached a terminal
// state. Severing happens before cancellation so that no event can be
// emitted after stop returns.
func (a *Actor) stop(outcome entities.SessionOutcome) {
	a.mu.Lock()
	if !a.severed {
		a.severed = true
		a.outcome = outcome
	}
	a.mu.Unlock()
	a.cancel()
}

// Done is closed once the actor has fully shut down.
func (a *Actor) Done() <-chan struct{} {
	return a.done
}

// emit sends one event to the device unless the actor has been severed.
func (a *Actor) emit(ev *codec.Event) error {
	a.mu.Lock()
	if a.severed {
		a.mu.Unlock()
		return ErrSessionClosed
	}
	err := a.sink.Send(a.session.DeviceID, ev)
	a.mu.Unlock()
	if err != nil {
		a.logger.Warn("event delivery failed",
			zap.String("event", ev.Type.String()),
			zap.Error(err))
	}
	return err
}

func (a *Actor) transition(next entities.SessionState) {
	a.mu.Lock()
	err := a.session.Transition(next)
	a.mu.Unlock()
	if err != nil {
		a.logger.Error("illegal state transition",
			zap.String("to", string(next)),
			zap.Error(err))
	}
}

func (a *Actor) run() {
	defer close(a.done)
	defer a.finalize()

	if a.notifier != nil {
		a.notifier.SessionChanged(a.Snapshot())
	}

	if a.cfg.Greeting != "" {
		a.playGreeting()
	}

	pcm, ok := a.listen()
	if !ok {
		return
	}
	a.runPipeline(pcm)
}

// listen accumulates audio until end of utterance. Returns the reassembled
// utterance, or ok=false when the session ended before producing one.
func (a *Actor) listen() (pcm []byte, ok bool) {
	silence := time.NewTimer(a.cfg.SilenceTimeout)
	defer silence.Stop()
	idle := time.NewTimer(a.cfg.IdleTimeout)
	defer idle.Stop()

	gotAudio := false
	for {
		select {
		case <-a.ctx.Done():
			return nil, false

		case msg := <-a.mailbox:
			switch msg.kind {
			case msgFrame:
				gotAudio = true
				a.buffer.Push(msg.frame)
				a.mu.Lock()
				a.session.FramesReceived++
				a.session.Touch()
				a.mu.Unlock()
				if !silence.Stop() {
					select {
					case <-silence.C:
					default:
					}
				}
				silence.Reset(a.cfg.SilenceTimeout)
				if msg.frame.EndOfUtterance {
					return a.endUtterance(), true
				}
			case msgEndOfUtterance:
				if gotAudio {
					return a.endUtterance(), true
				}
				a.finishWith(entities.SessionEnded, entities.OutcomeNoSpeech)
				return nil, false
			case msgPlaybackAck:
				// Stale ack from a previous turn. Ignore.
			}

		case <-silence.C:
			if gotAudio {
				return a.endUtterance(), true
			}
			silence.Reset(a.cfg.SilenceTimeout)

		case <-idle.C:
			a.logger.Info("session idle timeout")
			a.finishWith(entities.SessionFailed, entities.OutcomeTimeout)
			return nil, false
		}
	}
}

func (a *Actor) endUtterance() []byte {
	pcm := a.buffer.Flush()
	a.mu.Lock()
	a.session.FramesLost = a.buffer.Lost()
	a.mu.Unlock()
	a.logger.Debug("utterance complete",
		zap.Int("bytes", len(pcm)),
		zap.Int("frames_lost", a.buffer.Lost()))
	return pcm
}

// finishWith marks the session terminal. Has no effect if a terminal state
// was already reached.
func (a *Actor) finishWith(state entities.SessionState, outcome entities.SessionOutcome) {
	a.mu.Lock()
	if !a.session.State.Terminal() {
		a.session.Finish(state, outcome)
	}
	a.mu.Unlock()
}

// finalize records the terminal state, persists the session, and notifies
// observers. Runs exactly once, as the actor goroutine exits.
func (a *Actor) finalize() {
	a.mu.Lock()
	if !a.session.State.Terminal() {
		// Severed mid-flight: the recorded outcome says why.
		outcome := a.outcome
		if outcome == "" {
			outcome = entities.OutcomeAdapterError
		}
		state := entities.SessionFailed
		if outcome == entities.OutcomeCompleted || outcome == entities.OutcomeBargeIn || outcome == entities.OutcomeNoSpeech {
			state = entities.SessionEnded
		}
		a.session.Finish(state, outcome)
	}
	a.severed = true
	snapshot := *a.session
	a.mu.Unlock()

	a.logger.Info("session finished",
		zap.String("state", string(snapshot.State)),
		zap.String("outcome", string(snapshot.Outcome)))

	if a.deps.History != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := a.deps.History.Append(ctx, &snapshot); err != nil {
			a.logger.Warn("failed to persist session", zap.Error(err))
		}
		cancel()
	}
	if a.notifier != nil {
		a.notifier.SessionChanged(snapshot)
	}
	// Release anything still blocked on the session context, such as an
	// adapter submission abandoned by its attempt deadline.
	a.cancel()
	if a.onStop != nil {
		a.onStop(a)
	}
}
