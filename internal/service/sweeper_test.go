package service

import (
	"context"
	"testing"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
	"github.com/lumiware/chatrelay/internal/biz/usecase"
)

func TestSweeper_ReclaimsExpiredEntries(t *testing.T) {
	dedupe := usecase.NewExpiringKeySet(usecase.DedupeConfig{TTL: 10 * time.Millisecond, Capacity: 100})
	history := usecase.NewHistoryLog(usecase.HistoryConfig{MaxEntries: 10, TTL: 10 * time.Millisecond})

	dedupe.Admit("msg-1")
	dedupe.Admit("msg-2")
	history.Append("chat-1", domain.RoleUser, "hello")

	sweeper := NewSweeper(dedupe, history, 20*time.Millisecond)
	sweeper.Start(context.Background())
	defer sweeper.Stop()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if dedupe.Len() == 0 && history.Conversations() == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Errorf("Expected sweeper to reclaim expired entries, dedupe=%d conversations=%d",
		dedupe.Len(), history.Conversations())
}

func TestSweeper_KeepsLiveEntries(t *testing.T) {
	dedupe := usecase.NewExpiringKeySet(usecase.DedupeConfig{TTL: time.Hour, Capacity: 100})
	history := usecase.NewHistoryLog(usecase.HistoryConfig{MaxEntries: 10, TTL: time.Hour})

	dedupe.Admit("msg-1")
	history.Append("chat-1", domain.RoleUser, "hello")

	sweeper := NewSweeper(dedupe, history, 20*time.Millisecond)
	sweeper.Start(context.Background())
	time.Sleep(100 * time.Millisecond)
	sweeper.Stop()

	if dedupe.Len() != 1 {
		t.Errorf("Expected live dedup entry to survive, got %d", dedupe.Len())
	}
	if history.Conversations() != 1 {
		t.Errorf("Expected live conversation to survive, got %d", history.Conversations())
	}
}

func TestSweeper_StopIsIdempotentAfterStart(t *testing.T) {
	dedupe := usecase.NewExpiringKeySet(usecase.DedupeConfig{TTL: time.Hour, Capacity: 100})
	history := usecase.NewHistoryLog(usecase.HistoryConfig{MaxEntries: 10, TTL: time.Hour})

	sweeper := NewSweeper(dedupe, history, 20*time.Millisecond)
	sweeper.Start(context.Background())
	sweeper.Stop()
}
