package usecase

import (
	"fmt"
	"testing"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

func TestHistory_AppendAndRead(t *testing.T) {
	log := NewHistoryLog(HistoryConfig{MaxEntries: 10, TTL: time.Hour})

	log.Append("chat-1", domain.RoleUser, "hello")
	log.Append("chat-1", domain.RoleAssistant, "hi there")

	turns := log.Read("chat-1")
	if len(turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(turns))
	}
	if turns[0].Role != domain.RoleUser || turns[0].Text != "hello" {
		t.Errorf("Unexpected first turn: %+v", turns[0])
	}
	if turns[1].Role != domain.RoleAssistant || turns[1].Text != "hi there" {
		t.Errorf("Unexpected second turn: %+v", turns[1])
	}
}

func TestHistory_ConversationsAreIsolated(t *testing.T) {
	log := NewHistoryLog(HistoryConfig{MaxEntries: 10, TTL: time.Hour})

	log.Append("chat-1", domain.RoleUser, "hello")
	log.Append("chat-2", domain.RoleUser, "other")

	if len(log.Read("chat-1")) != 1 {
		t.Error("Expected chat-1 to have exactly its own turn")
	}
	if log.Read("chat-1")[0].Text != "hello" {
		t.Error("Expected chat-1's turn, not chat-2's")
	}
	if log.Conversations() != 2 {
		t.Errorf("Expected 2 conversations, got %d", log.Conversations())
	}
}

func TestHistory_CapDropsOldestFirst(t *testing.T) {
	log := NewHistoryLog(HistoryConfig{MaxEntries: 3, TTL: time.Hour})

	for i := 0; i < 5; i++ {
		log.Append("chat-1", domain.RoleUser, fmt.Sprintf("turn-%d", i))
	}

	turns := log.Read("chat-1")
	if len(turns) != 3 {
		t.Fatalf("Expected 3 turns at the cap, got %d", len(turns))
	}
	if turns[0].Text != "turn-2" || turns[2].Text != "turn-4" {
		t.Errorf("Expected the newest 3 turns in order, got %q..%q", turns[0].Text, turns[2].Text)
	}
}

func TestHistory_ReadFiltersExpired(t *testing.T) {
	log := NewHistoryLog(HistoryConfig{MaxEntries: 10, TTL: 20 * time.Millisecond})

	log.Append("chat-1", domain.RoleUser, "stale")
	time.Sleep(40 * time.Millisecond)
	log.Append("chat-1", domain.RoleUser, "fresh")

	turns := log.Read("chat-1")
	if len(turns) != 1 {
		t.Fatalf("Expected 1 unexpired turn, got %d", len(turns))
	}
	if turns[0].Text != "fresh" {
		t.Errorf("Expected the fresh turn, got %q", turns[0].Text)
	}
}

func TestHistory_SweepPurgesEmptyConversations(t *testing.T) {
	log := NewHistoryLog(HistoryConfig{MaxEntries: 10, TTL: time.Hour})

	log.Append("chat-1", domain.RoleUser, "hello")
	log.Append("chat-2", domain.RoleUser, "other")

	removed := log.Sweep(time.Now().Add(2 * time.Hour))
	if removed != 2 {
		t.Errorf("Expected 2 removed turns, got %d", removed)
	}
	if log.Conversations() != 0 {
		t.Errorf("Expected no conversations after sweep, got %d", log.Conversations())
	}
}

func TestHistory_Clear(t *testing.T) {
	log := NewHistoryLog(HistoryConfig{MaxEntries: 10, TTL: time.Hour})

	log.Append("chat-1", domain.RoleUser, "hello")
	log.Append("chat-2", domain.RoleUser, "other")

	log.Clear("chat-1")
	if len(log.Read("chat-1")) != 0 {
		t.Error("Expected chat-1 history to be cleared")
	}
	if len(log.Read("chat-2")) != 1 {
		t.Error("Expected chat-2 history to survive")
	}

	log.ClearAll()
	if log.Conversations() != 0 {
		t.Errorf("Expected no conversations after ClearAll, got %d", log.Conversations())
	}
}
