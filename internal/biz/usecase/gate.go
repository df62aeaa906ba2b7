package usecase

import "sync/atomic"

// ConcurrencyGate is counter-based admission control for in-flight
// processing. TryAcquire never blocks: callers that fail must treat the
// event as accepted-but-shed, because queueing would only amplify the
// webhook source's retries.
type ConcurrencyGate struct {
	max  int64
	used atomic.Int64
}

// NewConcurrencyGate creates a gate with the given maximum
func NewConcurrencyGate(max int) *ConcurrencyGate {
	if max <= 0 {
		max = 1
	}
	return &ConcurrencyGate{max: int64(max)}
}

// TryAcquire takes a slot, returning false once the gate is full
func (g *ConcurrencyGate) TryAcquire() bool {
	for {
		cur := g.used.Load()
		if cur >= g.max {
			return false
		}
		if g.used.CompareAndSwap(cur, cur+1) {
			return true
		}
	}
}

// Release frees a slot. Must be called exactly once per successful
// TryAcquire, including on failure paths.
func (g *ConcurrencyGate) Release() {
	if g.used.Add(-1) < 0 {
		// A negative count means an unmatched Release.
		g.used.Store(0)
	}
}

// InUse returns the current slot count
func (g *ConcurrencyGate) InUse() int {
	return int(g.used.Load())
}

// Max returns the configured maximum
func (g *ConcurrencyGate) Max() int {
	return int(g.max)
}
