package repo

import (
	"context"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// ChatRepo is the downstream conversational-AI interface.
// Latency and failure modes are opaque to the pipeline; any error means
// "no reply produced" and is never propagated past the processor.
type ChatRepo interface {
	// Complete sends the merged user message plus prior turns and
	// returns the assistant's reply text
	Complete(ctx context.Context, chatID, message string, history []domain.HistoryTurn) (string, error)
}
