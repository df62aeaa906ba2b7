package usecase

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// DedupeConfig contains dedup cache configuration
type DedupeConfig struct {
	TTL          time.Duration // entries older than this are expired
	Capacity     int           // max live entries
	EvictPercent int           // share of oldest entries dropped under capacity pressure
}

// DefaultDedupeConfig returns default dedup configuration
func DefaultDedupeConfig() DedupeConfig {
	return DedupeConfig{
		TTL:          10 * time.Minute,
		Capacity:     4096,
		EvictPercent: 20,
	}
}

// ExpiringKeySet tracks message ids that have already been handled.
// Admit is the authoritative check-and-record; Seen is a cheap read-only
// probe used by the orchestrator before buffering. Under capacity
// pressure the oldest entries are evicted before their TTL, so a very
// old duplicate can slip through.
type ExpiringKeySet struct {
	mu      sync.Mutex
	entries map[string]time.Time // msgID -> first seen
	cfg     DedupeConfig
}

// NewExpiringKeySet creates a new dedup key set
func NewExpiringKeySet(cfg DedupeConfig) *ExpiringKeySet {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultDedupeConfig().TTL
	}
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultDedupeConfig().Capacity
	}
	if cfg.EvictPercent <= 0 || cfg.EvictPercent > 100 {
		cfg.EvictPercent = DefaultDedupeConfig().EvictPercent
	}
	return &ExpiringKeySet{
		entries: make(map[string]time.Time, 256),
		cfg:     cfg,
	}
}

// Seen reports whether the id is already recorded and unexpired.
// It never records the id: the authoritative record happens in Admit.
func (s *ExpiringKeySet) Seen(id string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, ok := s.entries[id]
	return ok && now.Sub(ts) < s.cfg.TTL
}

// Admit records the id and returns true if it was not already present
// and unexpired. Returns false for duplicates. At most one Admit call
// per id returns true while the entry is live.
func (s *ExpiringKeySet) Admit(id string) bool {
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	if ts, ok := s.entries[id]; ok && now.Sub(ts) < s.cfg.TTL {
		return false
	}

	if len(s.entries) >= s.cfg.Capacity {
		s.evictOldest()
	}

	s.entries[id] = now
	return true
}

// evictOldest drops the oldest EvictPercent share of entries.
// Must be called with s.mu held.
func (s *ExpiringKeySet) evictOldest() {
	n := len(s.entries) * s.cfg.EvictPercent / 100
	if n < 1 {
		n = 1
	}

	type entry struct {
		id string
		ts time.Time
	}
	all := make([]entry, 0, len(s.entries))
	for id, ts := range s.entries {
		all = append(all, entry{id, ts})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ts.Before(all[j].ts) })

	for i := 0; i < n && i < len(all); i++ {
		delete(s.entries, all[i].id)
	}

	fmt.Printf("[Dedupe] Capacity pressure: evicted %d of %d entries (capacity=%d)\n",
		n, len(all), s.cfg.Capacity)
}

// Sweep removes entries past TTL and returns the removal count
func (s *ExpiringKeySet) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, ts := range s.entries {
		if now.Sub(ts) >= s.cfg.TTL {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the current entry count
func (s *ExpiringKeySet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Capacity returns the configured maximum entry count
func (s *ExpiringKeySet) Capacity() int {
	return s.cfg.Capacity
}

// Clear removes all entries
func (s *ExpiringKeySet) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]time.Time, 256)
}
