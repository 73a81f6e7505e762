package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/voxkit/voxbridge/domain/entities"
)

// Manager is the device-keyed arena of session actors. It enforces the one
// live session per device invariant: a wake for a device with an active
// session severs and cancels the old actor before the new one starts, so an
// adapter result for the cancelled session can never reach the device or the
// new session's state.
type Manager struct {
	cfg      Config
	deps     Adapters
	guards   *guards
	sink     EventSink
	notifier Notifier
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	actors map[string]*Actor
	closed bool
}

// NewManager creates the arena. Call Close to stop all live sessions.
func NewManager(cfg Config, deps Adapters, sink EventSink, notifier Notifier, logger *zap.Logger) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	cfg = cfg.withDefaults()
	return &Manager{
		cfg:      cfg,
		deps:     deps,
		guards:   newGuards(cfg),
		sink:     sink,
		notifier: notifier,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
		actors:   make(map[string]*Actor),
	}
}

// SetSink installs the outbound event sink. The gateways depend on the
// manager for inbound routing, so the sink is bound after construction and
// before any session starts.
func (m *Manager) SetSink(sink EventSink) {
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
}

// SetNotifier installs the lifecycle notifier. Same late binding as SetSink.
func (m *Manager) SetNotifier(notifier Notifier) {
	m.mu.Lock()
	m.notifier = notifier
	m.mu.Unlock()
}

// Wake starts a session for the device, replacing any live one (barge-in).
// A duplicate wake naming the session that is already live is a no-op, per
// the control bus's at-least-once delivery. Returns the live session id.
func (m *Manager) Wake(deviceID, sessionID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ""
	}

	if current, ok := m.actors[deviceID]; ok {
		if sessionID != "" && current.SessionID() == sessionID {
			return sessionID
		}
		m.logger.Info("barge-in: replacing live session",
			zap.String("device_id", deviceID),
			zap.String("old_session_id", current.SessionID()))
		current.stop(entities.OutcomeBargeIn)
		delete(m.actors, deviceID)
	}

	return m.startLocked(deviceID, sessionID)
}

// startLocked allocates and launches a new actor. Caller holds m.mu.
func (m *Manager) startLocked(deviceID, sessionID string) string {
	record := entities.NewSession(deviceID, sessionID)
	actor := newActor(m.ctx, record, m.cfg, m.deps, m.guards, m.sink, m.notifier, m.logger, m.retire)
	m.actors[deviceID] = actor
	go actor.run()

	m.logger.Info("session started",
		zap.String("device_id", deviceID),
		zap.String("session_id", record.ID))
	return record.ID
}

// retire removes a finished actor from the arena, unless it has already been
// replaced by a newer one for the same device.
func (m *Manager) retire(a *Actor) {
	deviceID := a.Snapshot().DeviceID
	m.mu.Lock()
	if m.actors[deviceID] == a {
		delete(m.actors, deviceID)
	}
	m.mu.Unlock()
}

// DeliverFrame routes a data-plane frame to the device's live session. A
// frame for a device with no live session allocates one, per the "created on
// first wake or first frame" rule.
func (m *Manager) DeliverFrame(frame entities.AudioFrame) {
	m.mu.Lock()
	actor, ok := m.actors[frame.DeviceID]
	if !ok {
		if m.closed {
			m.mu.Unlock()
			return
		}
		m.startLocked(frame.DeviceID, frame.SessionID)
		actor = m.actors[frame.DeviceID]
	}
	m.mu.Unlock()
	actor.Deliver(frame)
}

// EndUtterance signals explicit end of utterance. Unknown sessions are
// dropped silently; the signal may outlive its session.
func (m *Manager) EndUtterance(deviceID, sessionID string) {
	if actor := m.lookup(deviceID, sessionID); actor != nil {
		actor.EndUtterance()
	}
}

// EndSession terminates the device's live session. Replays for an already
// ended session have no effect.
func (m *Manager) EndSession(deviceID, sessionID string) {
	if actor := m.lookup(deviceID, sessionID); actor != nil {
		actor.stop(entities.OutcomeCompleted)
	}
}

// PlaybackAck signals the device finished playing the response audio.
func (m *Manager) PlaybackAck(deviceID, sessionID string) {
	if actor := m.lookup(deviceID, sessionID); actor != nil {
		actor.PlaybackAck()
	}
}

// lookup finds the device's live actor, optionally filtered by session id so
// stale control messages cannot act on a successor session.
func (m *Manager) lookup(deviceID, sessionID string) *Actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	actor, ok := m.actors[deviceID]
	if !ok {
		return nil
	}
	if sessionID != "" && actor.SessionID() != sessionID {
		return nil
	}
	return actor
}

// ActiveSessions snapshots every live session, for the observability API.
func (m *Manager) ActiveSessions() []entities.Session {
	m.mu.Lock()
	actors := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.mu.Unlock()

	sessions := make([]entities.Session, 0, len(actors))
	for _, a := range actors {
		sessions = append(sessions, a.Snapshot())
	}
	return sessions
}

// Close stops every live session and waits briefly for actors to finish.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	m.closed = true
	actors := make([]*Actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.mu.Unlock()

	for _, a := range actors {
		a.stop(entities.OutcomeTimeout)
	}
	m.cancel()

	for _, a := range actors {
		select {
		case <-a.Done():
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(5 * time.Second):
			return context.DeadlineExceeded
		}
	}
	return nil
}
