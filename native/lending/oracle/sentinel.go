package oracle

import (
	"sync"
	"time"
)

// Sentinel tracks the health of the price feed. After an outage, borrows
// and liquidations stay blocked until the feed has been up for the grace
// period, giving users time to restore their positions.
type Sentinel struct {
	mu    sync.RWMutex
	up    bool
	since time.Time
	grace time.Duration
	clock func() time.Time
}

// NewSentinel starts with the feed up since the zero time, so checks pass
// immediately.
func NewSentinel(grace time.Duration, clock func() time.Time) *Sentinel {
	if clock == nil {
		clock = time.Now
	}
	return &Sentinel{up: true, grace: grace, clock: clock}
}

// SetStatus records a feed transition. Repeating the current status keeps
// the original timestamp.
func (s *Sentinel) SetStatus(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.up == up {
		return
	}
	s.up = up
	s.since = s.clock()
}

// SetGracePeriod changes the wait applied after recovery.
func (s *Sentinel) SetGracePeriod(grace time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grace = grace
}

func (s *Sentinel) upAndGracePassed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.up && s.clock().Sub(s.since) > s.grace
}

func (s *Sentinel) IsBorrowAllowed() bool { return s.upAndGracePassed() }

func (s *Sentinel) IsLiquidationAllowed() bool { return s.upAndGracePassed() }
