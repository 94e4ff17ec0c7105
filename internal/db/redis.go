package db

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore wraps a redis client and context for operations.
type RedisStore struct {
	Client *redis.Client
	Ctx    context.Context
}

// InitRedis initializes a Redis client and returns a RedisStore.
func InitRedis(addr string) (*RedisStore, error) {
	rs := &RedisStore{
		Client: redis.NewClient(&redis.Options{Addr: addr}),
		Ctx:    context.Background(),
	}

	// Add OpenTelemetry instrumentation to Redis client
	if err := redisotel.InstrumentTracing(rs.Client); err != nil {
		return nil, fmt.Errorf("failed to instrument redis tracing: %w", err)
	}

	if err := rs.Client.Ping(rs.Ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	zap.L().Info("Connected to Redis", zap.String("addr", addr))
	return rs, nil
}

func dayKey(ts time.Time) string {
	return ts.Format("2006-01-02")
}

// IncrementDecision increments the daily decision counter for a line item,
// split by whether the opportunity was bought. A 48h TTL is applied on first
// set so counters survive the day boundary but do not accumulate.
func (r *RedisStore) IncrementDecision(lineItemID int, bought bool, ts time.Time) error {
	result := "skip"
	if bought {
		result = "buy"
	}
	key := fmt.Sprintf("decisions:lineitem:%d:%s:%s", lineItemID, result, dayKey(ts))
	val, err := r.Client.Incr(r.Ctx, key).Result()
	if err != nil {
		return err
	}
	if val == 1 {
		r.Client.Expire(r.Ctx, key, 48*time.Hour)
	}
	return nil
}

// AddSpend accumulates confirmed daily spend for a line item and timezone.
// A 48h TTL is applied on first set.
func (r *RedisStore) AddSpend(lineItemID int, tz string, amount float64, ts time.Time) error {
	key := fmt.Sprintf("spend:lineitem:%d:%s:%s", lineItemID, tz, dayKey(ts))
	val, err := r.Client.IncrByFloat(r.Ctx, key, amount).Result()
	if err != nil {
		return err
	}
	if val == amount {
		r.Client.Expire(r.Ctx, key, 48*time.Hour)
	}
	return nil
}

// GetDecisionCounts returns the day's buy and skip counts for a line item.
func (r *RedisStore) GetDecisionCounts(lineItemID int, ts time.Time) (buys, skips int64) {
	buyKey := fmt.Sprintf("decisions:lineitem:%d:buy:%s", lineItemID, dayKey(ts))
	skipKey := fmt.Sprintf("decisions:lineitem:%d:skip:%s", lineItemID, dayKey(ts))
	buys, _ = r.Client.Get(r.Ctx, buyKey).Int64()
	skips, _ = r.Client.Get(r.Ctx, skipKey).Int64()
	return buys, skips
}

// GetSpend returns the day's confirmed spend for a line item and timezone.
func (r *RedisStore) GetSpend(lineItemID int, tz string, ts time.Time) float64 {
	key := fmt.Sprintf("spend:lineitem:%d:%s:%s", lineItemID, tz, dayKey(ts))
	val, _ := r.Client.Get(r.Ctx, key).Float64()
	return val
}

// Close shuts down the Redis client.
func (r *RedisStore) Close() {
	if r != nil && r.Client != nil {
		if err := r.Client.Close(); err != nil {
			zap.L().Error("redis close", zap.Error(err))
		}
	}
}
