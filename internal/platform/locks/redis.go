package locks

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "slotlock:"

// acquireScript installs or refreshes a lock atomically: set if absent, if
// the stored lock's logical expiry has passed, or if the current holder
// matches. Returns 0 on contention. ARGV[4] is the caller's clock in unix
// milliseconds; a value past its expires_ms is treated as absent, so a
// logically dead lock never blocks a new holder even while the Redis key
// lingers for the sweep.
var acquireScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if cur then
  local v = cjson.decode(cur)
  if v['holder'] ~= ARGV[1] and tonumber(v['expires_ms']) > tonumber(ARGV[4]) then
    return 0
  end
end
redis.call('SET', KEYS[1], ARGV[2], 'PX', ARGV[3])
return 1
`)

// releaseScript deletes the lock only when the holder matches.
var releaseScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return 0
end
if cjson.decode(cur)['holder'] ~= ARGV[1] then
  return 0
end
return redis.call('DEL', KEYS[1])
`)

// reapScript deletes the lock only when its logical expiry has passed.
// Returning the stored value lets the single deleting caller emit the
// unlock event. The comparison mirrors Lock.Expired: a lock is dead the
// instant expires_ms is reached.
var reapScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if not cur then
  return false
end
if tonumber(cjson.decode(cur)['expires_ms']) > tonumber(ARGV[1]) then
  return false
end
redis.call('DEL', KEYS[1])
return cur
`)

type redisValue struct {
	Holder     string `json:"holder"`
	AcquiredMS int64  `json:"acquired_ms"`
	ExpiresMS  int64  `json:"expires_ms"`
}

// RedisTable backs the lock table with a shared Redis instance so the
// mutual-exclusion guarantee holds across server instances. Atomicity comes
// from Lua scripts running single-threaded in Redis.
type RedisTable struct {
	client   redis.UniversalClient
	onExpiry ExpiryFunc
}

// NewRedisTable creates a Redis-backed lock table. onExpiry has the same
// contract as in NewMemoryTable.
func NewRedisTable(client redis.UniversalClient, onExpiry ExpiryFunc) *RedisTable {
	return &RedisTable{client: client, onExpiry: onExpiry}
}

func redisKey(key Key) string {
	return fmt.Sprintf("%s%s:%s:%d", redisKeyPrefix, key.ProviderID, key.Date, key.Start)
}

func parseRedisKey(s string) (Key, error) {
	trimmed := strings.TrimPrefix(s, redisKeyPrefix)
	parts := strings.Split(trimmed, ":")
	if len(parts) != 3 {
		return Key{}, fmt.Errorf("malformed lock key %q", s)
	}
	providerID, err := uuid.Parse(parts[0])
	if err != nil {
		return Key{}, fmt.Errorf("malformed provider id in lock key %q: %w", s, err)
	}
	start, err := strconv.Atoi(parts[2])
	if err != nil {
		return Key{}, fmt.Errorf("malformed start in lock key %q: %w", s, err)
	}
	return Key{ProviderID: providerID, Date: parts[1], Start: start}, nil
}

func (t *RedisTable) lockFromValue(key Key, v redisValue) (Lock, error) {
	holder, err := uuid.Parse(v.Holder)
	if err != nil {
		return Lock{}, fmt.Errorf("malformed holder in lock value: %w", err)
	}
	return Lock{
		Key:        key,
		HolderID:   holder,
		AcquiredAt: time.UnixMilli(v.AcquiredMS),
		ExpiresAt:  time.UnixMilli(v.ExpiresMS),
	}, nil
}

func (t *RedisTable) TryAcquire(ctx context.Context, key Key, holder uuid.UUID, ttl time.Duration) (Lock, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	now := time.Now()
	val := redisValue{
		Holder:     holder.String(),
		AcquiredMS: now.UnixMilli(),
		ExpiresMS:  now.Add(ttl).UnixMilli(),
	}
	payload, err := json.Marshal(val)
	if err != nil {
		return Lock{}, fmt.Errorf("marshal lock value: %w", err)
	}

	// The Redis key lives twice the logical TTL. The grace half of that
	// window is what lets a sweep or timer observe the expired value and
	// emit the unlock event; doubling the TTL keeps the window wider than
	// any sweep interval the config validation admits (at most ttl/3).
	px := (2 * ttl).Milliseconds()
	ok, err := acquireScript.Run(ctx, t.client, []string{redisKey(key)}, holder.String(), payload, px, now.UnixMilli()).Int()
	if err != nil {
		return Lock{}, fmt.Errorf("acquire slot lock: %w", err)
	}
	if ok == 0 {
		return Lock{}, ErrContended
	}

	// One-shot expiry timer, the sweep-independent path. The reap script
	// re-checks the stored expiry, so a lock that was refreshed or released
	// before the timer fires is left alone, and the script's delete makes
	// the unlock emission exactly-once even when a sweep races the timer.
	rkey := redisKey(key)
	time.AfterFunc(ttl, func() {
		reapCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// Best effort; a failed reap is retried by the sweep.
		t.reapOne(reapCtx, rkey)
	})

	return t.lockFromValue(key, val)
}

// reapOne deletes the lock stored at rkey if its logical expiry has passed,
// emitting the expiry callback for the deleted value. Shared by the
// per-lock timers and SweepExpired.
func (t *RedisTable) reapOne(ctx context.Context, rkey string) (bool, error) {
	raw, err := reapScript.Run(ctx, t.client, []string{rkey}, time.Now().UnixMilli()).Text()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reap slot lock: %w", err)
	}

	if t.onExpiry == nil {
		return true, nil
	}
	key, err := parseRedisKey(rkey)
	if err != nil {
		return true, nil
	}
	var val redisValue
	if err := json.Unmarshal([]byte(raw), &val); err != nil {
		return true, nil
	}
	if lock, err := t.lockFromValue(key, val); err == nil {
		t.onExpiry(lock)
	}
	return true, nil
}

func (t *RedisTable) Release(ctx context.Context, key Key, holder uuid.UUID) error {
	if err := releaseScript.Run(ctx, t.client, []string{redisKey(key)}, holder.String()).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}

func (t *RedisTable) Get(ctx context.Context, key Key) (Lock, bool, error) {
	raw, err := t.client.Get(ctx, redisKey(key)).Bytes()
	if err == redis.Nil {
		return Lock{}, false, nil
	}
	if err != nil {
		return Lock{}, false, fmt.Errorf("get slot lock: %w", err)
	}

	var val redisValue
	if err := json.Unmarshal(raw, &val); err != nil {
		return Lock{}, false, fmt.Errorf("unmarshal lock value: %w", err)
	}

	lock, err := t.lockFromValue(key, val)
	if err != nil {
		return Lock{}, false, err
	}
	if lock.Expired(time.Now()) {
		return Lock{}, false, nil
	}
	return lock, true, nil
}

func (t *RedisTable) ListForDay(ctx context.Context, providerID uuid.UUID, date string) ([]Lock, error) {
	pattern := fmt.Sprintf("%s%s:%s:*", redisKeyPrefix, providerID, date)
	now := time.Now()

	var result []Lock
	iter := t.client.Scan(ctx, 0, pattern, 100).Iterator()
	for iter.Next(ctx) {
		key, err := parseRedisKey(iter.Val())
		if err != nil {
			continue
		}
		lock, ok, err := t.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if ok && !lock.Expired(now) {
			result = append(result, lock)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan slot locks: %w", err)
	}
	return result, nil
}

func (t *RedisTable) SweepExpired(ctx context.Context) (int, error) {
	count := 0

	iter := t.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		reaped, err := t.reapOne(ctx, iter.Val())
		if err != nil {
			return count, err
		}
		if reaped {
			count++
		}
	}
	if err := iter.Err(); err != nil {
		return count, fmt.Errorf("scan slot locks: %w", err)
	}
	return count, nil
}
