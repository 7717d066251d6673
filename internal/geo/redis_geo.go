package geo

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRegistry implements Registry on Redis GEO commands. Errors are
// surfaced to the caller; a failed query must not degrade into a stale
// read because dispatch correctness depends on it.
type RedisRegistry struct {
	client *redis.Client
	key    string
}

func NewRedisRegistry(client *redis.Client, key string) *RedisRegistry {
	return &RedisRegistry{client: client, key: key}
}

func (r *RedisRegistry) Upsert(ctx context.Context, driverID string, lon, lat float64) error {
	err := r.client.GeoAdd(ctx, r.key, &redis.GeoLocation{
		Name:      driverID,
		Longitude: lon,
		Latitude:  lat,
	}).Err()
	if err != nil {
		return fmt.Errorf("geoadd %s: %w", driverID, err)
	}
	return nil
}

// Remove drops the member via ZREM; a GEO set is a plain sorted set.
func (r *RedisRegistry) Remove(ctx context.Context, driverID string) error {
	if err := r.client.ZRem(ctx, r.key, driverID).Err(); err != nil {
		return fmt.Errorf("zrem %s: %w", driverID, err)
	}
	return nil
}

func (r *RedisRegistry) QueryRadius(ctx context.Context, lon, lat, radiusKm float64) ([]Candidate, error) {
	res, err := r.client.GeoRadius(ctx, r.key, lon, lat, &redis.GeoRadiusQuery{
		Radius:   radiusKm,
		Unit:     "km",
		WithDist: true,
		Sort:     "ASC",
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("georadius: %w", err)
	}
	out := make([]Candidate, 0, len(res))
	for _, g := range res {
		out = append(out, Candidate{DriverID: g.Name, DistanceKm: g.Dist})
	}
	// Redis leaves tie order unspecified, re-sort for determinism.
	SortCandidates(out)
	return out, nil
}
