package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/usecase"
)

// Sweeper periodically purges expired dedup entries and history turns.
// It runs on a fixed interval independent of traffic and never panics
// out: a failed sweep logs and waits for the next tick.
type Sweeper struct {
	dedupe  *usecase.ExpiringKeySet
	history *usecase.HistoryLog

	interval time.Duration
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewSweeper creates a new sweeper
func NewSweeper(dedupe *usecase.ExpiringKeySet, history *usecase.HistoryLog, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 60 * time.Second
	}
	return &Sweeper{
		dedupe:   dedupe,
		history:  history,
		interval: interval,
	}
}

// Start starts the sweep loop
func (s *Sweeper) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	fmt.Printf("[Sweeper] Started with interval %v\n", s.interval)
}

// Stop stops the sweep loop
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	fmt.Println("[Sweeper] Stopped")
}

func (s *Sweeper) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep runs one cycle over both caches
func (s *Sweeper) sweep() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("[Sweeper] Recovered from panic: %v\n", r)
		}
	}()

	now := time.Now()
	dedupeRemoved := s.dedupe.Sweep(now)
	historyRemoved := s.history.Sweep(now)

	if dedupeRemoved > 0 || historyRemoved > 0 {
		fmt.Printf("[Sweeper] Removed %d dedup entries, %d history turns\n",
			dedupeRemoved, historyRemoved)
	}
}
