package path

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/horlami228/blaze/internal/models"
)

// RedisBuffer stores each ride's path as a sorted set scored by the sample
// timestamp, with a sibling key carrying the last-flushed marker.
type RedisBuffer struct {
	client *redis.Client
}

func NewRedisBuffer(client *redis.Client) *RedisBuffer {
	return &RedisBuffer{client: client}
}

func pathKey(rideID string) string   { return "ride:" + rideID + ":path" }
func markerKey(rideID string) string { return "ride:" + rideID + ":last_saved_ts" }

func (b *RedisBuffer) Add(ctx context.Context, rideID string, s models.PathSample) error {
	member, err := json.Marshal(s)
	if err != nil {
		return err
	}
	err = b.client.ZAdd(ctx, pathKey(rideID), redis.Z{
		Score:  float64(s.Timestamp),
		Member: string(member),
	}).Err()
	if err != nil {
		return fmt.Errorf("zadd %s: %w", rideID, err)
	}
	return nil
}

func (b *RedisBuffer) Trim(ctx context.Context, rideID string, max int) error {
	// keep ranks [-max, -1], i.e. the newest max entries
	err := b.client.ZRemRangeByRank(ctx, pathKey(rideID), 0, int64(-(max + 1))).Err()
	if err != nil {
		return fmt.Errorf("zremrangebyrank %s: %w", rideID, err)
	}
	return nil
}

func (b *RedisBuffer) Marker(ctx context.Context, rideID string) (int64, error) {
	v, err := b.client.Get(ctx, markerKey(rideID)).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("marker get %s: %w", rideID, err)
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("marker parse %s: %w", rideID, err)
	}
	return ms, nil
}

func (b *RedisBuffer) SetMarker(ctx context.Context, rideID string, ms int64) error {
	if err := b.client.Set(ctx, markerKey(rideID), ms, 0).Err(); err != nil {
		return fmt.Errorf("marker set %s: %w", rideID, err)
	}
	return nil
}

func (b *RedisBuffer) CountAfter(ctx context.Context, rideID string, afterMs int64) (int, error) {
	n, err := b.client.ZCount(ctx, pathKey(rideID), exclusiveMin(afterMs), "+inf").Result()
	if err != nil {
		return 0, fmt.Errorf("zcount %s: %w", rideID, err)
	}
	return int(n), nil
}

func (b *RedisBuffer) RangeAfter(ctx context.Context, rideID string, afterMs int64, limit int) ([]models.PathSample, error) {
	raw, err := b.client.ZRangeByScore(ctx, pathKey(rideID), &redis.ZRangeBy{
		Min:    exclusiveMin(afterMs),
		Max:    "+inf",
		Offset: 0,
		Count:  int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", rideID, err)
	}
	out := make([]models.PathSample, 0, len(raw))
	for _, m := range raw {
		var s models.PathSample
		if err := json.Unmarshal([]byte(m), &s); err != nil {
			return nil, fmt.Errorf("decode sample %s: %w", rideID, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func (b *RedisBuffer) Touch(ctx context.Context, rideID string, ttl time.Duration) error {
	if err := b.client.Expire(ctx, pathKey(rideID), ttl).Err(); err != nil {
		return fmt.Errorf("expire %s: %w", rideID, err)
	}
	return nil
}

func exclusiveMin(ms int64) string {
	return "(" + strconv.FormatInt(ms, 10)
}
