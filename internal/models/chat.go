package models

// Chat represents a conversation container on the backend. It provides basic identification and
// labeling, plus the authoritative message history when it was fetched with it.
type Chat struct {
	ID       string
	Title    string
	Messages []Message
}

// Message represents an individual entry of a chat history. Content is markdown for assistant
// messages and plain text for user messages.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the role of a message participant.
type Role string

// EventKind represents the kind of a decoded stream event.
type EventKind string

// StreamEvent is a single event received from the reply stream of a chat.
type StreamEvent struct {
	Kind EventKind

	// Chunk would be filled if Kind is EventChunk. It may be empty, as the backend is allowed to send
	// keep-alive events without payload.
	Chunk string
	// Full would be filled if Kind is EventDone and the backend sent the authoritative reply.
	Full string
}

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents a bot message. The backend stores bot replies with this role.
	RoleAssistant Role = "assistant"

	// EventChunk carries an incremental fragment of the reply.
	EventChunk EventKind = "chunk"
	// EventDone terminates the stream successfully.
	EventDone EventKind = "done"
	// EventStreamError is the backend's explicit signal that streaming failed.
	EventStreamError EventKind = "stream_error"
)

// IsUser reports whether the message was written by the user. Every other role is rendered as a
// bot message.
func (m Message) IsUser() bool {
	return m.Role == RoleUser
}
