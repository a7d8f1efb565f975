// Package cooldown tracks per-user, per-capability admission windows.
// A reservation is recorded before the gated action executes, so a slow
// action cannot be raced past the cooldown by a second request.
package cooldown

import (
	"context"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Admitted  bool
	Remaining time.Duration // set when rejected
}

// Ledger admits or rejects gated actions. Implementations must make
// CheckAndReserve atomic per (userID, capability): two concurrent calls
// inside one window never both admit.
type Ledger interface {
	// CheckAndReserve admits the action and records the reservation, or
	// rejects it with the remaining wait. A zero window admits without
	// touching the store.
	CheckAndReserve(ctx context.Context, userID, capability string, window time.Duration) (Decision, error)

	// Release drops a reservation. Used only when the refund-on-failure
	// policy is enabled.
	Release(ctx context.Context, userID, capability string) error
}
