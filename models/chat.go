package models

// ChatRole represents the role of a message sender
type ChatRole string

const (
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

// ChatTurn is one message of a transient conversation. Turns are never persisted.
type ChatTurn struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}
