package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// SessionState is the lifecycle stage of a conversational turn. A session
// moves strictly forward through these states, except for barge-in (which
// aborts the session entirely) and Failed (reachable from any live state).
type SessionState string

const (
	// SessionListening accumulates device audio until end of utterance.
	SessionListening SessionState = "listening"
	// SessionDetecting runs the voice-activity gate on the utterance.
	SessionDetecting SessionState = "detecting"
	// SessionTranscribing waits for the final ASR transcript.
	SessionTranscribing SessionState = "transcribing"
	// SessionReasoning streams the dialogue model response.
	SessionReasoning SessionState = "reasoning"
	// SessionSynthesizing overlaps with Reasoning once the first sentence
	// boundary is available.
	SessionSynthesizing SessionState = "synthesizing"
	// SessionPlaying waits for the device to drain the synthesized audio.
	SessionPlaying SessionState = "playing"
	// SessionEnded is terminal: the turn completed.
	SessionEnded SessionState = "ended"
	// SessionFailed is terminal: the turn could not be completed.
	SessionFailed SessionState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s SessionState) Terminal() bool {
	return s == SessionEnded || s == SessionFailed
}

// SessionOutcome classifies how a terminal session ended. It is recorded in
// the history sink and surfaced to the device on failure.
type SessionOutcome string

const (
	OutcomeCompleted    SessionOutcome = "completed"
	OutcomeNoSpeech     SessionOutcome = "no_speech"
	OutcomeNoTranscript SessionOutcome = "no_input_understood"
	OutcomeBargeIn      SessionOutcome = "barge_in"
	OutcomeTimeout      SessionOutcome = "timeout"
	OutcomeAdapterError SessionOutcome = "adapter_error"
)

// Session is one conversational turn bound to one device. The session actor
// owns the record exclusively for its lifetime; nothing outside the actor
// mutates it.
type Session struct {
	ID             string         `json:"id" bson:"_id"`
	DeviceID       string         `json:"device_id" bson:"device_id"`
	State          SessionState   `json:"state" bson:"state"`
	Outcome        SessionOutcome `json:"outcome,omitempty" bson:"outcome,omitempty"`
	CreatedAt      time.Time      `json:"created_at" bson:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at" bson:"last_activity_at"`
	EndedAt        *time.Time     `json:"ended_at,omitempty" bson:"ended_at,omitempty"`
	Transcript     string         `json:"transcript,omitempty" bson:"transcript,omitempty"`
	ResponseText   string         `json:"response_text,omitempty" bson:"response_text,omitempty"`
	FramesReceived int            `json:"frames_received" bson:"frames_received"`
	FramesLost     int            `json:"frames_lost" bson:"frames_lost"`
}

// NewSession allocates a session in the Listening state. sessionID may be
// device-supplied; when empty a server-side id is generated.
func NewSession(deviceID, sessionID string) *Session {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	now := time.Now()
	return &Session{
		ID:             sessionID,
		DeviceID:       deviceID,
		State:          SessionListening,
		CreatedAt:      now,
		LastActivityAt: now,
	}
}

var errInvalidTransition = errors.New("invalid session state transition")

// transitions encodes the legal forward edges of the state machine.
var transitions = map[SessionState][]SessionState{
	SessionListening:    {SessionDetecting},
	SessionDetecting:    {SessionTranscribing, SessionEnded},
	SessionTranscribing: {SessionReasoning},
	SessionReasoning:    {SessionSynthesizing},
	SessionSynthesizing: {SessionPlaying},
	SessionPlaying:      {SessionEnded},
}

// Transition moves the session to next, or reports an error if the edge is
// not legal. Failed is reachable from any non-terminal state.
func (s *Session) Transition(next SessionState) error {
	if s.State.Terminal() {
		return errInvalidTransition
	}
	if next == SessionFailed {
		s.State = SessionFailed
		s.Touch()
		return nil
	}
	for _, allowed := range transitions[s.State] {
		if next == allowed {
			s.State = next
			s.Touch()
			return nil
		}
	}
	return errInvalidTransition
}

// Touch updates the activity timestamp; the manager's idle reaper keys off it.
func (s *Session) Touch() {
	s.LastActivityAt = time.Now()
}

// Finish marks the session terminal with the given outcome.
func (s *Session) Finish(state SessionState, outcome SessionOutcome) {
	s.State = state
	s.Outcome = outcome
	now := time.Now()
	s.EndedAt = &now
	s.LastActivityAt = now
}

// Validate validates the session record before it is persisted.
func (s *Session) Validate() error {
	if s.ID == "" {
		return errors.New("session id is required")
	}
	if s.DeviceID == "" {
		return errors.New("device_id is required")
	}
	return nil
}
