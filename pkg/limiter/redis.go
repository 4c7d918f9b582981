package limiter

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisOptions configures the connection of a RedisHistory.
type RedisOptions struct {
	Address  string
	Password string
	DB       int
	Key      string
}

// RedisHistory keeps trigger times in a sorted set scored by epoch
// milliseconds, so replicas sharing the key share the budget.
type RedisHistory struct {
	Client *redis.Client
	Key    string

	owned bool
}

// NewRedisHistory uses an existing client. Closing the history leaves the
// client open.
func NewRedisHistory(rdb *redis.Client, key string) *RedisHistory {
	return &RedisHistory{Client: rdb, Key: key}
}

// DialRedis connects to Redis and checks the connection.
func DialRedis(ctx context.Context, opts RedisOptions) (*RedisHistory, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     opts.Address,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", opts.Address, err)
	}
	return &RedisHistory{Client: rdb, Key: opts.Key, owned: true}, nil
}

// reserveScript prunes, counts and adds in one step so replicas cannot both
// take the last slot. The expiration cleans up an idle budget.
var reserveScript = redis.NewScript(`
redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if redis.call('ZCARD', KEYS[1]) >= tonumber(ARGV[3]) then
	return 0
end
redis.call('ZADD', KEYS[1], ARGV[2], ARGV[4])
redis.call('PEXPIRE', KEYS[1], ARGV[5])
return 1
`)

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func (h *RedisHistory) CountSince(ctx context.Context, since time.Time) (int, error) {
	n, err := h.Client.ZCount(ctx, h.Key, "("+millis(since), "+inf").Result()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (h *RedisHistory) Record(ctx context.Context, at time.Time, window time.Duration) error {
	member := fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString())

	pipe := h.Client.TxPipeline()
	pipe.ZAdd(ctx, h.Key, &redis.Z{Score: float64(at.UnixMilli()), Member: member})
	pipe.ZRemRangeByScore(ctx, h.Key, "-inf", millis(at.Add(-window)))
	pipe.PExpire(ctx, h.Key, window+time.Minute)
	_, err := pipe.Exec(ctx)
	return err
}

func (h *RedisHistory) Reserve(ctx context.Context, at time.Time, window time.Duration, max int) (bool, error) {
	// Members must be unique; the score carries the time.
	member := fmt.Sprintf("%d-%s", at.UnixNano(), uuid.NewString())

	n, err := reserveScript.Run(ctx, h.Client, []string{h.Key},
		millis(at.Add(-window)), at.UnixMilli(), max, member, (window + time.Minute).Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (h *RedisHistory) Close() error {
	if !h.owned {
		return nil
	}
	return h.Client.Close()
}
