package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/repo"
)

// PipelineConfig contains orchestration configuration
type PipelineConfig struct {
	MergeEnabled   bool
	MergeWindow    time.Duration
	MaxConcurrent  int
	DurableEnabled bool
}

// DefaultPipelineConfig returns default pipeline configuration
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MergeEnabled:  true,
		MergeWindow:   DefaultMergeQueueConfig().Window,
		MaxConcurrent: 8,
	}
}

// Pipeline is the per-event entry point. It decides whether to process
// an event now, buffer it for batching, or drop it as a duplicate or
// shed unit of work. Handle always returns promptly and never errors:
// the webhook source retries failed acknowledgments, which the dedup
// layer would just have to absorb again.
type Pipeline struct {
	gate      *ConcurrencyGate
	dedupe    *ExpiringKeySet
	history   *HistoryLog
	queue     *MergeQueue
	processor *BatchProcessor
	delay     repo.DelayRepo // optional durable backend
	cfg       PipelineConfig
}

// NewPipeline wires the pipeline components. delay may be nil; the
// in-memory merge queue is always present as the fallback.
func NewPipeline(
	dedupe *ExpiringKeySet,
	history *HistoryLog,
	processor *BatchProcessor,
	queueCfg MergeQueueConfig,
	delay repo.DelayRepo,
	cfg PipelineConfig,
) *Pipeline {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultPipelineConfig().MaxConcurrent
	}
	if cfg.MergeWindow <= 0 {
		cfg.MergeWindow = queueCfg.Window
	}

	p := &Pipeline{
		gate:      NewConcurrencyGate(cfg.MaxConcurrent),
		dedupe:    dedupe,
		history:   history,
		processor: processor,
		delay:     delay,
		cfg:       cfg,
	}
	p.queue = NewMergeQueue(queueCfg, p.flushBatch)
	return p
}

// Start begins the durable backend's poller if one is configured
func (p *Pipeline) Start() {
	if p.delay != nil && p.cfg.DurableEnabled {
		p.delay.Start(p.flushBatch)
	}
}

// Stop cancels pending merge timers and the durable poller
func (p *Pipeline) Stop() {
	p.queue.Stop()
	if p.delay != nil && p.cfg.DurableEnabled {
		p.delay.Stop()
	}
}

// Handle runs the admit/dedupe/merge decision sequence for one event.
// Returning from Handle is the acknowledgment; processing continues in
// the background.
func (p *Pipeline) Handle(event *domain.InboundEvent) {
	if !p.gate.TryAcquire() {
		// Accepted-but-shed: acknowledge the source, do nothing.
		fmt.Printf("[Pipeline] Overload shed for %s (in-flight=%d/%d)\n",
			event.ChatID, p.gate.InUse(), p.gate.Max())
		return
	}

	// Cheap first-pass check. The authoritative check-and-record runs
	// in the processor.
	if p.dedupe.Seen(event.MsgID) {
		p.gate.Release()
		return
	}

	if !p.cfg.MergeEnabled {
		go func() {
			defer p.gate.Release()
			p.processor.Process(context.Background(), event.ChatID, []*domain.InboundEvent{event})
		}()
		return
	}

	defer p.gate.Release()
	p.enqueue(event)
}

// enqueue routes the event to the durable backend when configured,
// falling back to the in-memory queue per event on submission failure
func (p *Pipeline) enqueue(event *domain.InboundEvent) {
	if p.cfg.DurableEnabled && p.delay != nil {
		err := p.delay.Submit(context.Background(), event, p.cfg.MergeWindow)
		if err == nil {
			return
		}
		fmt.Printf("[Pipeline] Durable submit failed for %s, using in-memory queue: %v\n",
			event.MsgID, err)
	}
	p.queue.Enqueue(event)
}

// flushBatch hands a detached batch to the processor under a gate
// slot, so MaxConcurrent bounds downstream calls on every path. A full
// gate re-buffers the batch instead of dropping it: the events were
// already admitted, shedding applies at ingress only.
func (p *Pipeline) flushBatch(chatID string, events []*domain.InboundEvent) {
	if !p.gate.TryAcquire() {
		fmt.Printf("[Pipeline] Overload: re-buffering %d events for %s (in-flight=%d/%d)\n",
			len(events), chatID, p.gate.InUse(), p.gate.Max())
		for _, event := range events {
			p.queue.Enqueue(event)
		}
		return
	}
	defer p.gate.Release()
	p.processor.Process(context.Background(), chatID, events)
}

// Stats is a point-in-time snapshot of the pipeline's caches
type Stats struct {
	DedupeSize           int            `json:"dedupe_size"`
	DedupeCapacity       int            `json:"dedupe_capacity"`
	HistoryConversations int            `json:"history_conversations"`
	ConcurrencyInUse     int            `json:"concurrency_in_use"`
	ConcurrencyMax       int            `json:"concurrency_max"`
	ActiveBuffers        int            `json:"active_buffers"`
	BufferSizes          map[string]int `json:"buffer_sizes"`
}

// Snapshot returns current cache counts for operational tooling
func (p *Pipeline) Snapshot() Stats {
	sizes := p.queue.BufferSizes()
	return Stats{
		DedupeSize:           p.dedupe.Len(),
		DedupeCapacity:       p.dedupe.Capacity(),
		HistoryConversations: p.history.Conversations(),
		ConcurrencyInUse:     p.gate.InUse(),
		ConcurrencyMax:       p.gate.Max(),
		ActiveBuffers:        len(sizes),
		BufferSizes:          sizes,
	}
}

// ClearDedupe empties the dedup cache
func (p *Pipeline) ClearDedupe() {
	p.dedupe.Clear()
}

// ClearHistory removes history for one chat, or all chats when chatID
// is empty
func (p *Pipeline) ClearHistory(chatID string) {
	if chatID == "" {
		p.history.ClearAll()
		return
	}
	p.history.Clear(chatID)
}

// ClearBuffers drops pending merge buffers for one chat, or all chats
// when chatID is empty
func (p *Pipeline) ClearBuffers(chatID string) {
	if chatID == "" {
		p.queue.ClearAll()
		return
	}
	p.queue.Clear(chatID)
}

// Dedupe exposes the key set for the sweeper
func (p *Pipeline) Dedupe() *ExpiringKeySet {
	return p.dedupe
}

// History exposes the history log for the sweeper
func (p *Pipeline) History() *HistoryLog {
	return p.history
}
