package usecase

import (
	"sync"
	"time"

	"github.com/lumiware/chatrelay/internal/biz/domain"
)

// HistoryConfig contains conversation history configuration
type HistoryConfig struct {
	MaxEntries int           // per-conversation cap, oldest dropped first
	TTL        time.Duration // turns older than this are excluded and purged
}

// DefaultHistoryConfig returns default history configuration
func DefaultHistoryConfig() HistoryConfig {
	return HistoryConfig{
		MaxEntries: 20,
		TTL:        2 * time.Hour,
	}
}

// HistoryLog keeps per-conversation bounded, time-windowed prior turns.
// Reads filter by TTL without mutating state; the sweeper reclaims
// memory eagerly. Both are needed: read-time filtering keeps answers
// correct even before a sweep has run.
type HistoryLog struct {
	mu    sync.Mutex
	turns map[string][]domain.HistoryTurn // chatID -> turns in arrival order
	cfg   HistoryConfig
}

// NewHistoryLog creates a new history log
func NewHistoryLog(cfg HistoryConfig) *HistoryLog {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultHistoryConfig().MaxEntries
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultHistoryConfig().TTL
	}
	return &HistoryLog{
		turns: make(map[string][]domain.HistoryTurn),
		cfg:   cfg,
	}
}

// Append adds a turn and trims the conversation to the cap
func (h *HistoryLog) Append(chatID string, role domain.Role, text string) {
	turn := domain.HistoryTurn{
		ChatID:    chatID,
		Role:      role,
		Text:      text,
		CreatedAt: time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	list := append(h.turns[chatID], turn)
	if len(list) > h.cfg.MaxEntries {
		list = list[len(list)-h.cfg.MaxEntries:]
	}
	h.turns[chatID] = list
}

// Read returns the conversation's turns in arrival order, excluding
// turns past TTL, bounded to the cap. Reading never mutates state.
func (h *HistoryLog) Read(chatID string) []domain.HistoryTurn {
	cutoff := time.Now().Add(-h.cfg.TTL)

	h.mu.Lock()
	defer h.mu.Unlock()

	var result []domain.HistoryTurn
	for _, turn := range h.turns[chatID] {
		if !turn.OlderThan(cutoff) {
			result = append(result, turn)
		}
	}
	if len(result) > h.cfg.MaxEntries {
		result = result[len(result)-h.cfg.MaxEntries:]
	}
	return result
}

// Sweep purges turns past TTL and empty conversations, returning the
// number of removed turns
func (h *HistoryLog) Sweep(now time.Time) int {
	cutoff := now.Add(-h.cfg.TTL)

	h.mu.Lock()
	defer h.mu.Unlock()

	removed := 0
	for chatID, list := range h.turns {
		kept := list[:0]
		for _, turn := range list {
			if turn.OlderThan(cutoff) {
				removed++
			} else {
				kept = append(kept, turn)
			}
		}
		if len(kept) == 0 {
			delete(h.turns, chatID)
		} else {
			h.turns[chatID] = kept
		}
	}
	return removed
}

// Conversations returns the number of conversations currently stored
func (h *HistoryLog) Conversations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.turns)
}

// Clear removes one conversation's history
func (h *HistoryLog) Clear(chatID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.turns, chatID)
}

// ClearAll removes all history
func (h *HistoryLog) ClearAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = make(map[string][]domain.HistoryTurn)
}
