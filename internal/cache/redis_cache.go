package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/horlami228/blaze/internal/models"
)

// Redis implements LocationCache on hash entries with a TTL plus a
// SETNX throttle token per driver.
type Redis struct {
	client      *redis.Client
	locationTTL time.Duration
	throttleTTL time.Duration
}

func NewRedis(client *redis.Client, locationTTL, throttleTTL time.Duration) *Redis {
	return &Redis{client: client, locationTTL: locationTTL, throttleTTL: throttleTTL}
}

func locationKey(driverID string) string { return "driver:" + driverID + ":location" }
func throttleKey(driverID string) string { return "driver:" + driverID + ":db-lock" }

func (r *Redis) RecordPing(ctx context.Context, driverID string, ping models.LocationPing) error {
	key := locationKey(driverID)
	pipe := r.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"lat":       ping.Lat,
		"lon":       ping.Lon,
		"heading":   ping.Heading,
		"speed_mps": ping.SpeedMps,
		"accuracy":  ping.Accuracy,
	})
	pipe.Expire(ctx, key, r.locationTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("record ping %s: %w", driverID, err)
	}
	return nil
}

func (r *Redis) Latest(ctx context.Context, driverID string) (models.LocationPing, bool, error) {
	m, err := r.client.HGetAll(ctx, locationKey(driverID)).Result()
	if err != nil {
		return models.LocationPing{}, false, fmt.Errorf("latest ping %s: %w", driverID, err)
	}
	if len(m) == 0 {
		return models.LocationPing{}, false, nil
	}
	var p models.LocationPing
	p.Lat = parseFloatField(m, "lat")
	p.Lon = parseFloatField(m, "lon")
	p.Heading = parseFloatField(m, "heading")
	p.SpeedMps = parseFloatField(m, "speed_mps")
	p.Accuracy = parseFloatField(m, "accuracy")
	return p, true, nil
}

func (r *Redis) Clear(ctx context.Context, driverID string) error {
	if err := r.client.Del(ctx, locationKey(driverID)).Err(); err != nil {
		return fmt.Errorf("clear ping %s: %w", driverID, err)
	}
	return nil
}

func (r *Redis) ShouldPersistDurable(ctx context.Context, driverID string) (bool, error) {
	ok, err := r.client.SetNX(ctx, throttleKey(driverID), "locked", r.throttleTTL).Result()
	if err != nil {
		return false, fmt.Errorf("throttle token %s: %w", driverID, err)
	}
	return ok, nil
}

func parseFloatField(m map[string]string, field string) float64 {
	v, ok := m[field]
	if !ok {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}
