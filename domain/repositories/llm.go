package repositories

import "context"

// DialogueModel abstracts the language model service. The bridge does not
// assemble multi-turn context itself; it passes through whatever history the
// caller supplies.
type DialogueModel interface {
	// StartChat opens a conversation seeded with prior turns.
	StartChat(ctx context.Context, history []ChatMessage) (ChatSession, error)
}

// ChatSession is an ongoing conversation with the model.
type ChatSession interface {
	// SendStreaming submits the user transcript and returns the streamed
	// response deltas.
	SendStreaming(ctx context.Context, message ChatMessage) (DeltaStream, error)
	History() ([]ChatMessage, error)
}

// DeltaStream yields response text deltas in generation order. Next returns
// io.EOF once the model signals completion.
type DeltaStream interface {
	Next() (string, error)
	Close() error
}

// ChatMessage is a single message in a conversation.
type ChatMessage struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role defines the type of message sender.
type Role string

const (
	UserRole      Role = "user"
	AssistantRole Role = "assistant"
	SystemRole    Role = "system"
)
