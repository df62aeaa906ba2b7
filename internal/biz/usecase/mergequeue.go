package usecase

import (
	"fmt"
	"sync"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// MergeQueueConfig contains merge window configuration
type MergeQueueConfig struct {
	Window   time.Duration // flush delay, anchored to the first buffered event
	MaxBatch int           // size-triggered flush threshold
}

// DefaultMergeQueueConfig returns default merge window configuration
func DefaultMergeQueueConfig() MergeQueueConfig {
	return MergeQueueConfig{
		Window:   2500 * time.Millisecond,
		MaxBatch: 5,
	}
}

// FlushFunc receives a detached batch of events for one conversation
type FlushFunc func(chatID string, events []*domain.InboundEvent)

// MergeQueue buffers near-simultaneous events per conversation and
// flushes them as one batch. The window is anchored to the first
// buffered event, not reset by later arrivals, so a steady trickle
// cannot postpone the flush indefinitely. Reaching MaxBatch cancels the
// timer and flushes immediately.
type MergeQueue struct {
	mu      sync.Mutex
	buffers map[string]*mergeBuffer
	cfg     MergeQueueConfig
	flushFn FlushFunc
	stopped bool
}

// mergeBuffer holds pending events for one conversation.
// A conversation has at most one live buffer at a time.
type mergeBuffer struct {
	events    []*domain.InboundEvent
	timer     *time.Timer
	createdAt time.Time
}

// NewMergeQueue creates a merge queue with the given flush callback
func NewMergeQueue(cfg MergeQueueConfig, flushFn FlushFunc) *MergeQueue {
	if cfg.Window <= 0 {
		cfg.Window = DefaultMergeQueueConfig().Window
	}
	if cfg.MaxBatch <= 0 {
		cfg.MaxBatch = DefaultMergeQueueConfig().MaxBatch
	}
	return &MergeQueue{
		buffers: make(map[string]*mergeBuffer),
		cfg:     cfg,
		flushFn: flushFn,
	}
}

// Enqueue appends the event to the conversation's buffer, creating the
// buffer and arming its flush timer on first use
func (q *MergeQueue) Enqueue(event *domain.InboundEvent) {
	chatID := event.ChatID

	q.mu.Lock()

	if q.stopped {
		q.mu.Unlock()
		return
	}

	buf, exists := q.buffers[chatID]
	if !exists {
		buf = &mergeBuffer{createdAt: time.Now()}
		// The timer is armed once at buffer creation; later appends do
		// not touch it. The closure captures its own buffer so a timer
		// that fired during a size flush cannot detach a successor.
		buf.timer = time.AfterFunc(q.cfg.Window, func() {
			q.flushChat(chatID, buf)
		})
		q.buffers[chatID] = buf
	}

	buf.events = append(buf.events, event)
	size := len(buf.events)

	if size < q.cfg.MaxBatch {
		q.mu.Unlock()
		if size == 1 {
			fmt.Printf("[MergeQueue] Buffering started for %s (window=%v)\n", chatID, q.cfg.Window)
		}
		return
	}

	// Size cap reached: cancel the timer and flush now.
	buf.timer.Stop()
	events := buf.events
	delete(q.buffers, chatID)
	q.mu.Unlock()

	fmt.Printf("[MergeQueue] Size-triggered flush for %s (%d events)\n", chatID, len(events))
	go q.flushFn(chatID, events)
}

// flushChat detaches the conversation's buffer and hands it off.
// Events arriving after the detach start a fresh buffer. The buffer
// argument guards against a stale timer firing after a size-triggered
// flush already replaced the map entry.
func (q *MergeQueue) flushChat(chatID string, buf *mergeBuffer) {
	q.mu.Lock()
	cur, exists := q.buffers[chatID]
	if !exists || cur != buf || len(buf.events) == 0 {
		q.mu.Unlock()
		return
	}
	buf.timer.Stop()
	events := buf.events
	delete(q.buffers, chatID)
	q.mu.Unlock()

	fmt.Printf("[MergeQueue] Window flush for %s (%d events, age=%v)\n",
		chatID, len(events), time.Since(buf.createdAt).Round(time.Millisecond))
	q.flushFn(chatID, events)
}

// BufferSizes returns the live buffers and their pending event counts
func (q *MergeQueue) BufferSizes() map[string]int {
	q.mu.Lock()
	defer q.mu.Unlock()

	sizes := make(map[string]int, len(q.buffers))
	for chatID, buf := range q.buffers {
		sizes[chatID] = len(buf.events)
	}
	return sizes
}

// Clear drops one conversation's pending buffer without flushing
func (q *MergeQueue) Clear(chatID string) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if buf, ok := q.buffers[chatID]; ok {
		buf.timer.Stop()
		delete(q.buffers, chatID)
	}
}

// ClearAll drops all pending buffers without flushing
func (q *MergeQueue) ClearAll() {
	q.mu.Lock()
	defer q.mu.Unlock()

	for chatID, buf := range q.buffers {
		buf.timer.Stop()
		delete(q.buffers, chatID)
	}
}

// Stop cancels all pending timers. Buffered events are dropped; durable
// backend tasks are not affected.
func (q *MergeQueue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.stopped = true
	for chatID, buf := range q.buffers {
		buf.timer.Stop()
		delete(q.buffers, chatID)
	}
}
