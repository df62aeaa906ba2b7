package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/repo"
)

// ProcessorConfig contains batch processing configuration
type ProcessorConfig struct {
	GroupChatsEnabled bool // when false, group-chat events are out of scope
}

// BatchProcessor turns a detached batch of buffered events (or a single
// event on the direct path) into one downstream exchange. Failures are
// logged and the unit of work abandoned; one conversation's failure
// never blocks another.
type BatchProcessor struct {
	dedupe  *ExpiringKeySet
	history *HistoryLog
	chat    repo.ChatRepo
	message repo.MessageRepo
	archive repo.ArchiveRepo // optional
	cfg     ProcessorConfig
}

// NewBatchProcessor creates a new batch processor.
// archive may be nil; archiving is best-effort glue.
func NewBatchProcessor(
	dedupe *ExpiringKeySet,
	history *HistoryLog,
	chat repo.ChatRepo,
	message repo.MessageRepo,
	archive repo.ArchiveRepo,
	cfg ProcessorConfig,
) *BatchProcessor {
	return &BatchProcessor{
		dedupe:  dedupe,
		history: history,
		chat:    chat,
		message: message,
		archive: archive,
		cfg:     cfg,
	}
}

// Process runs one batch end to end. It never returns an error and
// never panics out: the inbound source was already acknowledged.
func (p *BatchProcessor) Process(ctx context.Context, chatID string, events []*domain.InboundEvent) {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Processor] Recovered from panic for %s: %v\n", chatID, r)
		}
	}()

	// Second-pass dedup is the authoritative check: only events whose
	// Admit returns true are acted upon, no matter how the batch was
	// assembled or how often the source retried.
	survivors := make([]*domain.InboundEvent, 0, len(events))
	for _, event := range events {
		if !p.dedupe.Admit(event.MsgID) {
			fmt.Printf("[Processor] Duplicate dropped: %s\n", event.MsgID)
			continue
		}
		if reason := p.filterReason(event); reason != "" {
			fmt.Printf("[Processor] Filtered %s (%s): %s\n",
				event.MsgID, reason, truncate(event.Text, 50))
			continue
		}
		survivors = append(survivors, event)
	}

	if len(survivors) == 0 {
		return
	}

	merged := mergeTexts(survivors)
	batchID := uuid.NewString()

	// Pre-merge history gives the model the prior turns without the
	// message it is about to answer.
	prior := p.history.Read(chatID)
	p.history.Append(chatID, domain.RoleUser, merged)

	reply, err := p.chat.Complete(ctx, chatID, merged, prior)
	if err != nil {
		fmt.Printf("[Processor] Chat error for %s (batch=%s): %v, content: %s\n",
			chatID, batchID, err, truncate(merged, 80))
		return
	}
	if strings.TrimSpace(reply) == "" {
		fmt.Printf("[Processor] Empty reply for %s (batch=%s), nothing to dispatch\n", chatID, batchID)
		return
	}

	p.history.Append(chatID, domain.RoleAssistant, reply)

	if err := p.message.SendText(ctx, chatID, reply); err != nil {
		fmt.Printf("[Processor] Dispatch error for %s: %v, reply: %s\n",
			chatID, err, truncate(reply, 80))
	}

	p.archiveExchange(ctx, chatID, batchID, merged, reply, len(survivors))

	fmt.Printf("[Processor] Exchange done for %s (batch=%s, merged=%d events)\n",
		chatID, batchID, len(survivors))
}

// filterReason returns a non-empty reason when the event fails content
// filters: self-sent, out-of-scope room, or blank text
func (p *BatchProcessor) filterReason(event *domain.InboundEvent) string {
	if event.FromSelf {
		return "self-sent"
	}
	if event.IsGroup() && !p.cfg.GroupChatsEnabled {
		return "group chats disabled"
	}
	if !event.HasText() {
		return "empty text"
	}
	return ""
}

// mergeTexts joins surviving texts in arrival order with newlines
func mergeTexts(events []*domain.InboundEvent) string {
	parts := make([]string, 0, len(events))
	for _, event := range events {
		parts = append(parts, strings.TrimSpace(event.Text))
	}
	return strings.Join(parts, "\n")
}

func (p *BatchProcessor) archiveExchange(ctx context.Context, chatID, batchID, merged, reply string, batchSize int) {
	if p.archive == nil {
		return
	}
	ex := &domain.Exchange{
		BatchID:   batchID,
		ChatID:    chatID,
		Merged:    merged,
		Reply:     reply,
		BatchSize: batchSize,
		CreatedAt: time.Now(),
	}
	if err := p.archive.SaveExchange(ctx, ex); err != nil {
		fmt.Printf("[Processor] Failed to archive exchange for %s: %v\n", chatID, err)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
