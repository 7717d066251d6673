package path

import (
	"context"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/horlami228/blaze/internal/models"
)

type fakeSink struct {
	flushes [][]byte
	err     error
}

func (f *fakeSink) AppendRidePath(_ context.Context, rideID string, samplesJSON []byte) error {
	if f.err != nil {
		return f.err
	}
	f.flushes = append(f.flushes, samplesJSON)
	return nil
}

func newTestRecorder(sink *fakeSink) (*Recorder, *MemoryBuffer) {
	buf := NewMemoryBuffer()
	rec := NewRecorder(buf, sink, 1000, 20, time.Hour, slog.Default())
	return rec, buf
}

func TestNoFlushBelowBatch(t *testing.T) {
	sink := &fakeSink{}
	rec, _ := newTestRecorder(sink)
	ctx := context.Background()

	for i := 0; i < 19; i++ {
		if err := rec.AppendSample(ctx, "ride-1", 6.5, 3.4, int64(1000+i)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.flushes) != 0 {
		t.Fatalf("expected no flush at 19 samples, got %d", len(sink.flushes))
	}
}

func TestFlushAtBatchAdvancesMarker(t *testing.T) {
	sink := &fakeSink{}
	rec, buf := newTestRecorder(sink)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		if err := rec.AppendSample(ctx, "ride-1", 6.5, 3.4, int64(1000+i)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.flushes) != 1 {
		t.Fatalf("expected exactly one flush, got %d", len(sink.flushes))
	}

	var batch []models.PathSample
	if err := json.Unmarshal(sink.flushes[0], &batch); err != nil {
		t.Fatal(err)
	}
	if len(batch) != 20 {
		t.Fatalf("expected 20 samples in batch, got %d", len(batch))
	}
	for i := 1; i < len(batch); i++ {
		if batch[i].Timestamp < batch[i-1].Timestamp {
			t.Fatalf("batch not in ascending timestamp order at %d", i)
		}
	}
	if batch[0].Timestamp != 1000 || batch[19].Timestamp != 1019 {
		t.Fatalf("unexpected batch bounds: %d..%d", batch[0].Timestamp, batch[19].Timestamp)
	}

	marker, _ := buf.Marker(ctx, "ride-1")
	if marker != 1019 {
		t.Fatalf("expected marker 1019, got %d", marker)
	}
}

func TestSecondBatchOnlyContainsNewSamples(t *testing.T) {
	sink := &fakeSink{}
	rec, _ := newTestRecorder(sink)
	ctx := context.Background()

	for i := 0; i < 40; i++ {
		if err := rec.AppendSample(ctx, "ride-1", 6.5, 3.4, int64(1000+i)); err != nil {
			t.Fatal(err)
		}
	}
	if len(sink.flushes) != 2 {
		t.Fatalf("expected two flushes, got %d", len(sink.flushes))
	}
	var second []models.PathSample
	if err := json.Unmarshal(sink.flushes[1], &second); err != nil {
		t.Fatal(err)
	}
	if second[0].Timestamp != 1020 || second[len(second)-1].Timestamp != 1039 {
		t.Fatalf("second batch overlaps the first: %d..%d", second[0].Timestamp, second[len(second)-1].Timestamp)
	}
}

func TestBufferTrimsToMax(t *testing.T) {
	sink := &fakeSink{}
	buf := NewMemoryBuffer()
	rec := NewRecorder(buf, sink, 1000, 2000, time.Hour, slog.Default())
	ctx := context.Background()

	for i := 0; i < 1100; i++ {
		if err := rec.AppendSample(ctx, "ride-1", 6.5, 3.4, int64(1000+i)); err != nil {
			t.Fatal(err)
		}
	}
	if n := buf.Len("ride-1"); n != 1000 {
		t.Fatalf("expected 1000 buffered samples after trim, got %d", n)
	}
	// the survivors are the newest 1000
	got, _ := buf.RangeAfter(ctx, "ride-1", 0, 1)
	if got[0].Timestamp != 1100 {
		t.Fatalf("expected oldest survivor ts=1100, got %d", got[0].Timestamp)
	}
}

func TestFlushErrorKeepsMarker(t *testing.T) {
	sink := &fakeSink{err: context.DeadlineExceeded}
	rec, buf := newTestRecorder(sink)
	ctx := context.Background()

	var lastErr error
	for i := 0; i < 20; i++ {
		lastErr = rec.AppendSample(ctx, "ride-1", 6.5, 3.4, int64(1000+i))
	}
	if lastErr == nil {
		t.Fatal("expected flush error to surface")
	}
	marker, _ := buf.Marker(ctx, "ride-1")
	if marker != 0 {
		t.Fatalf("marker must not advance on failed flush, got %d", marker)
	}
}
