package cooldown

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger implements Ledger with an in-process map. It backs tests and
// single-node deployments that run without Redis.
type MemoryLedger struct {
	mu      sync.Mutex
	entries map[string]time.Time // key -> reservation expiry
	now     func() time.Time
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		entries: make(map[string]time.Time),
		now:     time.Now,
	}
}

// CheckAndReserve admits iff no live reservation exists for the pair.
func (l *MemoryLedger) CheckAndReserve(_ context.Context, userID, capability string, window time.Duration) (Decision, error) {
	if window <= 0 {
		return Decision{Admitted: true}, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	k := key(userID, capability)
	if expiry, ok := l.entries[k]; ok && now.Before(expiry) {
		return Decision{Admitted: false, Remaining: expiry.Sub(now)}, nil
	}
	l.entries[k] = now.Add(window)
	return Decision{Admitted: true}, nil
}

// Release drops the reservation.
func (l *MemoryLedger) Release(_ context.Context, userID, capability string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key(userID, capability))
	return nil
}
