package domain

// Chat roles as they appear on the completion wire.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChatMessage is one entry of a conversation history. Messages are value
// types: once appended to a history they are never mutated.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
