package models

import "time"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the chat log accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// ChatMessage is one immutable line of the chat assistant conversation.
type ChatMessage struct {
	ID        int64     `json:"id"`
	UserID    int64     `json:"userId"`
	Role      Role      `json:"role"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"createdAt"`
}
