// Package locks implements time-bounded exclusive claims on consultation
// slots. A lock gates who may finalize a booking for a slot; it is ephemeral
// by design and never survives a process restart (the booking ledger's
// conflict check is the durable line of defense).
package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// DefaultTTL is how long a slot lock lives unless released or refreshed.
const DefaultTTL = 5 * time.Minute

// ErrContended is returned by TryAcquire when another holder owns a live
// lock on the same key.
var ErrContended = errors.New("slot is locked by another holder")

// Key identifies one bookable slot: a provider, a calendar date, and the
// slot's start expressed as minutes from midnight. Keys are fully
// independent; locking one never affects another.
type Key struct {
	ProviderID uuid.UUID
	Date       string // YYYY-MM-DD
	Start      int    // minutes from midnight
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%d", k.ProviderID, k.Date, k.Start)
}

// Lock is a live claim on a slot key.
type Lock struct {
	Key        Key       `json:"key"`
	HolderID   uuid.UUID `json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// Expired reports whether the lock's TTL has passed at the given instant.
func (l Lock) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}

// ExpiryFunc is invoked when a lock dies by TTL rather than explicit
// release, so subscribers can be told the slot is free again. Implementations
// must not block; the table calls it inline from timers and sweeps.
type ExpiryFunc func(Lock)

// Table is a lock table over slot keys. The check-then-set in TryAcquire is
// atomic per key in every implementation.
type Table interface {
	// TryAcquire installs a lock for holder with the given TTL. If the key
	// already carries a live lock held by the same holder, the lock is
	// refreshed instead. A live lock held by anyone else fails with
	// ErrContended.
	TryAcquire(ctx context.Context, key Key, holder uuid.UUID, ttl time.Duration) (Lock, error)

	// Release removes the lock only if holder matches the current holder.
	// A missing lock or a holder mismatch is a no-op, not an error, so
	// duplicate or late release calls are harmless.
	Release(ctx context.Context, key Key, holder uuid.UUID) error

	// Get returns the live lock on key, if any.
	Get(ctx context.Context, key Key) (Lock, bool, error)

	// ListForDay returns all live locks for one provider and date.
	ListForDay(ctx context.Context, providerID uuid.UUID, date string) ([]Lock, error)

	// SweepExpired removes every expired lock, invoking the expiry callback
	// for each, and returns how many were removed.
	SweepExpired(ctx context.Context) (int, error)
}

// RunSweeper calls SweepExpired on a fixed interval until ctx is cancelled.
// The interval should be at most a third of the lock TTL. Each lock also
// carries its own one-shot expiry timer, so the sweep is a backstop rather
// than the sole expiry mechanism.
func RunSweeper(ctx context.Context, table Table, interval time.Duration, logger zerolog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := table.SweepExpired(ctx)
			if err != nil {
				logger.Error().Err(err).Msg("lock sweep failed")
				continue
			}
			if n > 0 {
				logger.Info().Int("expired", n).Msg("swept expired slot locks")
			}
		}
	}
}
