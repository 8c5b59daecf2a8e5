package usage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	infraredis "github.com/ProductBay/vynce/internal/infra/redis"
)

// reserveScript adds ARGV[1] to the monthly counter unless that would pass ARGV[2].
// It returns the new total, or -1 when the reservation was refused.
var reserveScript = redis.NewScript(`
local key = KEYS[1]
local n = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local expire_at = tonumber(ARGV[3])
local current = tonumber(redis.call('GET', key) or '0')
if current + n > limit then
  return -1
end
current = redis.call('INCRBY', key, n)
redis.call('PEXPIREAT', key, expire_at)
return current
`)

// releaseScript gives back up to ARGV[1] reserved calls without going below zero.
var releaseScript = redis.NewScript(`
local key = KEYS[1]
local n = tonumber(ARGV[1])
local current = tonumber(redis.call('GET', key) or '0')
if current <= n then
  redis.call('DEL', key)
  return 0
end
return redis.call('DECRBY', key, n)
`)

// Limiter keeps one call counter per user and calendar month in Redis.
type Limiter struct {
	client *redis.Client
	ns     *infraredis.Client
	now    func() time.Time
}

// NewLimiter constructs a monthly usage limiter.
func NewLimiter(client *infraredis.Client) *Limiter {
	return &Limiter{client: client.Inner(), ns: client, now: time.Now}
}

// Reserve counts n calls against limit. It returns the month's total after the
// reservation and false when the limit would be exceeded.
func (l *Limiter) Reserve(ctx context.Context, userID uuid.UUID, n, limit int) (int64, bool, error) {
	now := l.now().UTC()
	res, err := reserveScript.Run(ctx, l.client, []string{l.key(userID, now)},
		n, limit, monthEnd(now).UnixMilli()).Int64()
	if err != nil {
		return 0, false, fmt.Errorf("usage reserve: %w", err)
	}
	if res < 0 {
		used, err := l.Used(ctx, userID)
		return used, false, err
	}
	return res, true, nil
}

// Release returns n previously reserved calls.
func (l *Limiter) Release(ctx context.Context, userID uuid.UUID, n int) error {
	if n <= 0 {
		return nil
	}
	key := l.key(userID, l.now().UTC())
	if _, err := releaseScript.Run(ctx, l.client, []string{key}, n).Int64(); err != nil {
		return fmt.Errorf("usage release: %w", err)
	}
	return nil
}

// Used returns the calls counted for the current month.
func (l *Limiter) Used(ctx context.Context, userID uuid.UUID) (int64, error) {
	n, err := l.client.Get(ctx, l.key(userID, l.now().UTC())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("usage get: %w", err)
	}
	return n, nil
}

func (l *Limiter) key(userID uuid.UUID, now time.Time) string {
	return l.ns.Key("usage", userID.String(), now.Format("2006-01"))
}

// monthEnd is the first instant of the month after t.
func monthEnd(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, time.UTC)
}
