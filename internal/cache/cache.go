// Package cache holds per-driver ephemeral telemetry and the write-throttle
// token that gates durable writes of last-known position. Driver devices ping
// on the order of seconds; the cache absorbs that stream so the durable row
// only needs to be refreshed once per throttle window.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/horlami228/blaze/internal/models"
)

type LocationCache interface {
	// RecordPing stores the raw telemetry fields with a refreshed TTL.
	RecordPing(ctx context.Context, driverID string, ping models.LocationPing) error
	// Latest returns the most recent ping if one is cached and unexpired.
	Latest(ctx context.Context, driverID string) (models.LocationPing, bool, error)
	// Clear drops the cached telemetry, used when a driver goes offline.
	Clear(ctx context.Context, driverID string) error
	// ShouldPersistDurable reports whether the caller should write the
	// driver's position to the durable store now, atomically claiming a
	// throttle token when it says yes. This is a cooperative lock: two
	// pings inside the same millisecond may both claim, which is harmless
	// because the resulting writes are idempotent.
	ShouldPersistDurable(ctx context.Context, driverID string) (bool, error)
}

type memoryEntry struct {
	ping      models.LocationPing
	expiresAt time.Time
}

// Memory is an in-process LocationCache for tests and single-node runs.
type Memory struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	tokens      map[string]time.Time
	locationTTL time.Duration
	throttleTTL time.Duration
	now         func() time.Time
}

func NewMemory(locationTTL, throttleTTL time.Duration) *Memory {
	return &Memory{
		entries:     make(map[string]memoryEntry),
		tokens:      make(map[string]time.Time),
		locationTTL: locationTTL,
		throttleTTL: throttleTTL,
		now:         time.Now,
	}
}

func (m *Memory) RecordPing(_ context.Context, driverID string, ping models.LocationPing) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[driverID] = memoryEntry{ping: ping, expiresAt: m.now().Add(m.locationTTL)}
	return nil
}

func (m *Memory) Latest(_ context.Context, driverID string) (models.LocationPing, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[driverID]
	if !ok || m.now().After(e.expiresAt) {
		delete(m.entries, driverID)
		return models.LocationPing{}, false, nil
	}
	return e.ping, true, nil
}

func (m *Memory) Clear(_ context.Context, driverID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, driverID)
	return nil
}

func (m *Memory) ShouldPersistDurable(_ context.Context, driverID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if until, ok := m.tokens[driverID]; ok && m.now().Before(until) {
		return false, nil
	}
	m.tokens[driverID] = m.now().Add(m.throttleTTL)
	return true, nil
}
