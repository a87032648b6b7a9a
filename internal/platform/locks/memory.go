package locks

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"
)

const shardCount = 32

// memoryShard guards one slice of the key space. Sharding keeps unrelated
// providers from contending on a single mutex.
type memoryShard struct {
	mu    sync.Mutex
	locks map[string]*memoryEntry
}

type memoryEntry struct {
	lock  Lock
	timer *time.Timer
}

// MemoryTable is the in-process lock table used in single-instance
// deployments. All operations on one key serialize through that key's shard
// mutex, which is what makes the check-then-set in TryAcquire atomic.
type MemoryTable struct {
	shards   [shardCount]*memoryShard
	onExpiry ExpiryFunc
}

// NewMemoryTable creates an in-memory lock table. onExpiry may be nil; when
// set it is called exactly once for each lock that dies by TTL, whether the
// one-shot timer or the sweep gets there first.
func NewMemoryTable(onExpiry ExpiryFunc) *MemoryTable {
	t := &MemoryTable{onExpiry: onExpiry}
	for i := range t.shards {
		t.shards[i] = &memoryShard{locks: make(map[string]*memoryEntry)}
	}
	return t
}

func (t *MemoryTable) shard(key string) *memoryShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return t.shards[h.Sum32()%shardCount]
}

func (t *MemoryTable) TryAcquire(_ context.Context, key Key, holder uuid.UUID, ttl time.Duration) (Lock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	ks := key.String()
	sh := t.shard(ks)
	now := time.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()

	if entry, ok := sh.locks[ks]; ok && !entry.lock.Expired(now) {
		if entry.lock.HolderID != holder {
			return Lock{}, ErrContended
		}
		// Same holder: refresh in place.
		entry.lock.ExpiresAt = now.Add(ttl)
		entry.timer.Stop()
		entry.timer = time.AfterFunc(ttl, func() { t.expire(ks) })
		return entry.lock, nil
	}

	// A leftover expired entry is replaced; its timer is already moot but
	// stop it so it cannot fire against the new lock.
	if entry, ok := sh.locks[ks]; ok {
		entry.timer.Stop()
	}

	lock := Lock{
		Key:        key,
		HolderID:   holder,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}
	sh.locks[ks] = &memoryEntry{
		lock:  lock,
		timer: time.AfterFunc(ttl, func() { t.expire(ks) }),
	}
	return lock, nil
}

// expire is the one-shot timer path. It re-checks under the shard mutex so a
// lock that was released or refreshed in the meantime is left alone.
func (t *MemoryTable) expire(ks string) {
	sh := t.shard(ks)

	sh.mu.Lock()
	entry, ok := sh.locks[ks]
	if !ok || !entry.lock.Expired(time.Now()) {
		sh.mu.Unlock()
		return
	}
	delete(sh.locks, ks)
	expired := entry.lock
	sh.mu.Unlock()

	if t.onExpiry != nil {
		t.onExpiry(expired)
	}
}

func (t *MemoryTable) Release(_ context.Context, key Key, holder uuid.UUID) error {
	ks := key.String()
	sh := t.shard(ks)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.locks[ks]
	if !ok || entry.lock.HolderID != holder {
		return nil
	}
	entry.timer.Stop()
	delete(sh.locks, ks)
	return nil
}

func (t *MemoryTable) Get(_ context.Context, key Key) (Lock, bool, error) {
	ks := key.String()
	sh := t.shard(ks)

	sh.mu.Lock()
	defer sh.mu.Unlock()

	entry, ok := sh.locks[ks]
	if !ok || entry.lock.Expired(time.Now()) {
		return Lock{}, false, nil
	}
	return entry.lock, true, nil
}

func (t *MemoryTable) ListForDay(_ context.Context, providerID uuid.UUID, date string) ([]Lock, error) {
	now := time.Now()
	var result []Lock
	for _, sh := range t.shards {
		sh.mu.Lock()
		for _, entry := range sh.locks {
			if entry.lock.Key.ProviderID == providerID && entry.lock.Key.Date == date && !entry.lock.Expired(now) {
				result = append(result, entry.lock)
			}
		}
		sh.mu.Unlock()
	}
	return result, nil
}

func (t *MemoryTable) SweepExpired(_ context.Context) (int, error) {
	now := time.Now()
	var expired []Lock

	for _, sh := range t.shards {
		sh.mu.Lock()
		for ks, entry := range sh.locks {
			if entry.lock.Expired(now) {
				entry.timer.Stop()
				delete(sh.locks, ks)
				expired = append(expired, entry.lock)
			}
		}
		sh.mu.Unlock()
	}

	if t.onExpiry != nil {
		for _, l := range expired {
			t.onExpiry(l)
		}
	}
	return len(expired), nil
}
