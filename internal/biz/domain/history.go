package domain

import "time"

// Role identifies who produced a history turn
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// HistoryTurn is one prior turn of a conversation
type HistoryTurn struct {
	ChatID    string
	Role      Role
	Text      string
	CreatedAt time.Time
}

// OlderThan checks if the turn predates the given cutoff
func (t *HistoryTurn) OlderThan(cutoff time.Time) bool {
	return t.CreatedAt.Before(cutoff)
}
