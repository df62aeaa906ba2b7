package data

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/repo"
)

const (
	delayQueueKey = "chatrelay:mergequeue"
	pollInterval  = 250 * time.Millisecond
)

// delayRepo implements the durable delayed-task backend on a Redis
// sorted set. Each event is one member scored by its fire time; the
// poller pops due members and coalesces them by conversation, which is
// what produces the batch on this path.
type delayRepo struct {
	rdb *redis.Client

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// delayedTask is the wire form of an event in the sorted set.
// The opaque Raw payload does not survive the round-trip.
type delayedTask struct {
	MsgID      string `json:"msg_id"`
	ChatID     string `json:"chat_id"`
	FromSelf   bool   `json:"from_self,omitempty"`
	ChatType   string `json:"chat_type"`
	Channel    string `json:"channel"`
	Text       string `json:"text"`
	ReceivedAt int64  `json:"received_at_ms"`
}

// NewDelayRepo creates a Redis-backed delay repository
func NewDelayRepo(addr, password string, db int) repo.DelayRepo {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		fmt.Printf("[Redis] Warning: ping failed, submissions will fall back per event: %v\n", err)
	} else {
		fmt.Printf("[Redis] Connected to %s\n", addr)
	}

	return &delayRepo{rdb: rdb}
}

// Submit enqueues one event to fire after the given delay
func (r *delayRepo) Submit(ctx context.Context, event *domain.InboundEvent, delay time.Duration) error {
	task := delayedTask{
		MsgID:      event.MsgID,
		ChatID:     event.ChatID,
		FromSelf:   event.FromSelf,
		ChatType:   string(event.ChatType),
		Channel:    event.Channel,
		Text:       event.Text,
		ReceivedAt: event.ReceivedAt.UnixMilli(),
	}
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal delayed task: %w", err)
	}

	score := float64(time.Now().Add(delay).UnixMilli())
	if err := r.rdb.ZAdd(ctx, delayQueueKey, redis.Z{Score: score, Member: payload}).Err(); err != nil {
		return fmt.Errorf("zadd delayed task: %w", err)
	}
	return nil
}

// Start begins polling for due tasks
func (r *delayRepo) Start(handler repo.DelayedBatchHandler) {
	r.ctx, r.cancel = context.WithCancel(context.Background())

	r.wg.Add(1)
	go r.pollLoop(handler)

	fmt.Printf("[Redis] Delayed-queue poller started (interval=%v)\n", pollInterval)
}

// Stop stops the poller; queued tasks stay in Redis
func (r *delayRepo) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
	_ = r.rdb.Close()
	fmt.Println("[Redis] Delayed-queue poller stopped")
}

func (r *delayRepo) pollLoop(handler repo.DelayedBatchHandler) {
	defer r.wg.Done()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.drainDue(handler)
		}
	}
}

// drainDue pops all members whose fire time has passed and hands them
// to the handler grouped by conversation, in score order
func (r *delayRepo) drainDue(handler repo.DelayedBatchHandler) {
	now := strconv.FormatInt(time.Now().UnixMilli(), 10)

	members, err := r.rdb.ZRangeByScore(r.ctx, delayQueueKey, &redis.ZRangeBy{
		Min: "-inf",
		Max: now,
	}).Result()
	if err != nil {
		if r.ctx.Err() == nil {
			fmt.Printf("[Redis] Poll error: %v\n", err)
		}
		return
	}
	if len(members) == 0 {
		return
	}

	removeArgs := make([]interface{}, len(members))
	for i, m := range members {
		removeArgs[i] = m
	}
	if err := r.rdb.ZRem(r.ctx, delayQueueKey, removeArgs...).Err(); err != nil {
		fmt.Printf("[Redis] Failed to remove due tasks: %v\n", err)
		return
	}

	// ZRangeByScore returns members in score order, so per-chat batches
	// keep arrival order.
	grouped := make(map[string][]*domain.InboundEvent)
	order := make([]string, 0, 4)
	for _, member := range members {
		var task delayedTask
		if err := json.Unmarshal([]byte(member), &task); err != nil {
			fmt.Printf("[Redis] Skipping malformed task: %v\n", err)
			continue
		}
		event := &domain.InboundEvent{
			MsgID:      task.MsgID,
			ChatID:     task.ChatID,
			FromSelf:   task.FromSelf,
			ChatType:   domain.ChatType(task.ChatType),
			Channel:    task.Channel,
			Text:       task.Text,
			ReceivedAt: time.UnixMilli(task.ReceivedAt),
		}
		if _, seen := grouped[task.ChatID]; !seen {
			order = append(order, task.ChatID)
		}
		grouped[task.ChatID] = append(grouped[task.ChatID], event)
	}

	for _, chatID := range order {
		events := grouped[chatID]
		fmt.Printf("[Redis] Durable flush for %s (%d events)\n", chatID, len(events))
		handler(chatID, events)
	}
}
