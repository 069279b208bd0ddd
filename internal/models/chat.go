package models

// Role of a chat turn
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one role-tagged message of a conversation
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}
