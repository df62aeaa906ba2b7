package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/repo"
)

const syncBatchLimit = 100

// SheetSync pushes archived exchanges to the ops spreadsheet in the
// background. A failed push is retried on the next interval; nothing is
// marked synced until the append succeeded.
type SheetSync struct {
	archive repo.ArchiveRepo
	sheet   repo.SheetRepo

	interval   time.Duration
	cleanupAge time.Duration
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewSheetSync creates a new spreadsheet sync service
func NewSheetSync(archive repo.ArchiveRepo, sheet repo.SheetRepo, interval time.Duration) *SheetSync {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &SheetSync{
		archive:    archive,
		sheet:      sheet,
		interval:   interval,
		cleanupAge: 7 * 24 * time.Hour,
	}
}

// Start starts the sync loop
func (s *SheetSync) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)

	s.wg.Add(1)
	go s.loop()

	fmt.Printf("[SheetSync] Started with interval %v\n", s.interval)
}

// Stop stops the sync loop
func (s *SheetSync) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
	fmt.Println("[SheetSync] Stopped")
}

func (s *SheetSync) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	cleanup := time.NewTicker(6 * time.Hour)
	defer cleanup.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.syncOnce()
		case <-cleanup.C:
			s.cleanup()
		}
	}
}

// syncOnce pushes one batch of unsynced exchanges
func (s *SheetSync) syncOnce() {
	ctx := context.Background()

	exchanges, err := s.archive.GetUnsynced(ctx, syncBatchLimit)
	if err != nil {
		fmt.Printf("[SheetSync] Failed to load unsynced exchanges: %v\n", err)
		return
	}
	if len(exchanges) == 0 {
		return
	}

	if err := s.sheet.AppendExchanges(ctx, exchanges); err != nil {
		fmt.Printf("[SheetSync] Append failed, will retry next interval: %v\n", err)
		return
	}

	ids := make([]int64, 0, len(exchanges))
	for _, ex := range exchanges {
		ids = append(ids, ex.ID)
	}
	if err := s.archive.MarkSynced(ctx, ids); err != nil {
		fmt.Printf("[SheetSync] Failed to mark exchanges synced: %v\n", err)
		return
	}

	fmt.Printf("[SheetSync] Pushed %d exchanges to spreadsheet\n", len(exchanges))
}

// cleanup removes old synced exchanges from the archive
func (s *SheetSync) cleanup() {
	ctx := context.Background()

	count, err := s.archive.CleanupOld(ctx, time.Now().Add(-s.cleanupAge))
	if err != nil {
		fmt.Printf("[SheetSync] Cleanup error: %v\n", err)
		return
	}
	if count > 0 {
		fmt.Printf("[SheetSync] Cleaned up %d old exchanges\n", count)
	}
}
