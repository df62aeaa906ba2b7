package repo

import "context"

// MessageRepo is the outbound message delivery interface.
// Dispatch is fire-and-forget from the pipeline's perspective.
type MessageRepo interface {
	// SendText sends a text message to a chat
	SendText(ctx context.Context, chatID, text string) error
}
