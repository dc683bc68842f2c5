package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// slidingScript trims the window, admits the event only when under max and
// returns {allowed, count, oldest score}. Rejected saves leave no entry, so a
// shop that keeps retrying is not locked out past the window.
var slidingScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[2])
local count = redis.call('ZCARD', KEYS[1])
local allowed = 0
if count < tonumber(ARGV[4]) then
  redis.call('ZADD', KEYS[1], ARGV[1], ARGV[5])
  count = count + 1
  allowed = 1
end
redis.call('PEXPIRE', KEYS[1], ARGV[3])
local oldest = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
local first = ''
if oldest[2] then first = oldest[2] end
return {allowed, count, first}
`)

// SlidingWindow limits wholesale saves per shop over a rolling window kept in
// a Redis sorted set scored by milliseconds.
type SlidingWindow struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

// Allow records an event for key when it fits and reports the remaining budget
// and when the oldest counted event leaves the window.
func (l SlidingWindow) Allow(ctx context.Context, key string, window time.Duration, max int) (bool, int, time.Time, error) {
	now := time.Now()
	if l.Now != nil {
		now = l.Now()
	}
	if l.Client == nil || max <= 0 || window <= 0 {
		return true, max, now.Add(window), nil
	}
	windowMS := window.Milliseconds()
	if windowMS < 1 {
		windowMS = 1
	}
	nowMS := now.UnixMilli()

	res, err := slidingScript.Run(ctx, l.Client, []string{l.Prefix + key},
		nowMS,
		nowMS-windowMS,
		windowMS,
		max,
		fmt.Sprintf("%d:%s", nowMS, uuid.NewString()),
	).Slice()
	if err != nil {
		return false, 0, now.Add(window), err
	}
	if len(res) != 3 {
		return false, 0, now.Add(window), fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	allowed, _ := res[0].(int64)
	count, _ := res[1].(int64)

	reset := now.Add(window)
	if first, ok := res[2].(string); ok && first != "" {
		if oldestMS, err := strconv.ParseFloat(first, 64); err == nil {
			reset = time.UnixMilli(int64(oldestMS) + windowMS)
		}
	}
	remaining := max - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return allowed == 1, remaining, reset, nil
}
