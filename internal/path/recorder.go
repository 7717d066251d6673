// Package path buffers recent position samples per active ride and flushes
// them to durable storage in fixed-size batches. Batching turns one durable
// write per ping into one per 20 pings while keeping the persisted path at
// most one batch behind the live position.
package path

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/horlami228/blaze/internal/models"
	"github.com/horlami228/blaze/internal/observability"
)

// Sink receives flushed batches. The append must extend the persisted
// path, never overwrite it.
type Sink interface {
	AppendRidePath(ctx context.Context, rideID string, samplesJSON []byte) error
}

// Buffer is the time-ordered sample store backing a Recorder. Samples are
// keyed by ride and scored by millisecond timestamp.
type Buffer interface {
	Add(ctx context.Context, rideID string, s models.PathSample) error
	// Trim drops the oldest entries beyond the most recent max.
	Trim(ctx context.Context, rideID string, max int) error
	// Marker returns the timestamp of the last flushed sample, zero if
	// nothing has been flushed yet.
	Marker(ctx context.Context, rideID string) (int64, error)
	SetMarker(ctx context.Context, rideID string, ms int64) error
	// CountAfter counts samples with timestamp strictly greater than afterMs.
	CountAfter(ctx context.Context, rideID string, afterMs int64) (int, error)
	// RangeAfter returns up to limit samples strictly newer than afterMs,
	// oldest first.
	RangeAfter(ctx context.Context, rideID string, afterMs int64, limit int) ([]models.PathSample, error)
	// Touch refreshes the buffer TTL so idle rides eventually expire.
	Touch(ctx context.Context, rideID string, ttl time.Duration) error
}

type Recorder struct {
	buf        Buffer
	sink       Sink
	maxSamples int
	flushBatch int
	ttl        time.Duration
	logger     *slog.Logger
}

func NewRecorder(buf Buffer, sink Sink, maxSamples, flushBatch int, ttl time.Duration, logger *slog.Logger) *Recorder {
	return &Recorder{
		buf:        buf,
		sink:       sink,
		maxSamples: maxSamples,
		flushBatch: flushBatch,
		ttl:        ttl,
		logger:     logger,
	}
}

// AppendSample records one observation and flushes a batch of unflushed
// samples once enough have accumulated. Fewer than a full batch stays in
// the buffer until a later call, or until the TTL reaps it.
func (r *Recorder) AppendSample(ctx context.Context, rideID string, lat, lon float64, tsMs int64) error {
	s := models.PathSample{Lat: lat, Lon: lon, Timestamp: tsMs}
	if err := r.buf.Add(ctx, rideID, s); err != nil {
		return fmt.Errorf("path add: %w", err)
	}
	if err := r.buf.Trim(ctx, rideID, r.maxSamples); err != nil {
		return fmt.Errorf("path trim: %w", err)
	}

	marker, err := r.buf.Marker(ctx, rideID)
	if err != nil {
		return fmt.Errorf("path marker: %w", err)
	}
	pending, err := r.buf.CountAfter(ctx, rideID, marker)
	if err != nil {
		return fmt.Errorf("path count: %w", err)
	}
	if pending >= r.flushBatch {
		if err := r.flush(ctx, rideID, marker); err != nil {
			return err
		}
	}

	if err := r.buf.Touch(ctx, rideID, r.ttl); err != nil {
		return fmt.Errorf("path touch: %w", err)
	}
	return nil
}

func (r *Recorder) flush(ctx context.Context, rideID string, marker int64) error {
	batch, err := r.buf.RangeAfter(ctx, rideID, marker, r.flushBatch)
	if err != nil {
		return fmt.Errorf("path range: %w", err)
	}
	if len(batch) == 0 {
		return nil
	}
	payload, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("path marshal: %w", err)
	}
	if err := r.sink.AppendRidePath(ctx, rideID, payload); err != nil {
		return fmt.Errorf("path flush: %w", err)
	}
	last := batch[len(batch)-1].Timestamp
	if err := r.buf.SetMarker(ctx, rideID, last); err != nil {
		return fmt.Errorf("path set marker: %w", err)
	}
	observability.PathFlushesTotal.Inc()
	r.logger.Debug("flushed ride path batch", "ride_id", rideID, "samples", len(batch), "through", last)
	return nil
}

// MemoryBuffer is an in-process Buffer for tests and single-node runs.
// TTLs are tracked but only enforced lazily on access.
type MemoryBuffer struct {
	mu      sync.Mutex
	samples map[string][]models.PathSample
	markers map[string]int64
	expiry  map[string]time.Time
	now     func() time.Time
}

func NewMemoryBuffer() *MemoryBuffer {
	return &MemoryBuffer{
		samples: make(map[string][]models.PathSample),
		markers: make(map[string]int64),
		expiry:  make(map[string]time.Time),
		now:     time.Now,
	}
}

func (b *MemoryBuffer) Add(_ context.Context, rideID string, s models.PathSample) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireLocked(rideID)
	arr := append(b.samples[rideID], s)
	sort.Slice(arr, func(i, j int) bool { return arr[i].Timestamp < arr[j].Timestamp })
	b.samples[rideID] = arr
	return nil
}

func (b *MemoryBuffer) Trim(_ context.Context, rideID string, max int) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	arr := b.samples[rideID]
	if len(arr) > max {
		b.samples[rideID] = append([]models.PathSample(nil), arr[len(arr)-max:]...)
	}
	return nil
}

func (b *MemoryBuffer) Marker(_ context.Context, rideID string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.markers[rideID], nil
}

func (b *MemoryBuffer) SetMarker(_ context.Context, rideID string, ms int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.markers[rideID] = ms
	return nil
}

func (b *MemoryBuffer) CountAfter(_ context.Context, rideID string, afterMs int64) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, s := range b.samples[rideID] {
		if s.Timestamp > afterMs {
			n++
		}
	}
	return n, nil
}

func (b *MemoryBuffer) RangeAfter(_ context.Context, rideID string, afterMs int64, limit int) ([]models.PathSample, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]models.PathSample, 0, limit)
	for _, s := range b.samples[rideID] {
		if s.Timestamp > afterMs {
			out = append(out, s)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (b *MemoryBuffer) Touch(_ context.Context, rideID string, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expiry[rideID] = b.now().Add(ttl)
	return nil
}

// Len reports the buffered sample count for a ride.
func (b *MemoryBuffer) Len(rideID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples[rideID])
}

func (b *MemoryBuffer) expireLocked(rideID string) {
	if at, ok := b.expiry[rideID]; ok && b.now().After(at) {
		delete(b.samples, rideID)
		delete(b.markers, rideID)
		delete(b.expiry, rideID)
	}
}
