package repo

import (
	"context"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// DelayedBatchHandler receives due events coalesced by conversation
type DelayedBatchHandler func(chatID string, events []*domain.InboundEvent)

// DelayRepo is the durable delayed-task backend for the merge window.
// Each inbound event is submitted as its own delayed task; the backend
// performs the time delay and the poller coalesces due tasks per chat.
type DelayRepo interface {
	// Submit enqueues one event to fire after the given delay.
	// An error here means the caller must fall back to the in-memory
	// merge queue for this event.
	Submit(ctx context.Context, event *domain.InboundEvent, delay time.Duration) error

	// Start begins polling for due tasks
	Start(handler DelayedBatchHandler)

	// Stop stops the poller. Already-submitted tasks stay in the
	// backend and are picked up on the next start.
	Stop()
}
