package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/horlami228/blaze/internal/dispatch"
	"github.com/horlami228/blaze/internal/ingest"
	"github.com/horlami228/blaze/internal/models"
)

// fakeRecorder implements locationRecorder for tests
type fakeRecorder struct {
	failTransient int // times to fail with a DependencyError before succeeding
	permanentErr  error
	calls         int
}

func (f *fakeRecorder) RecordLocation(_ context.Context, _ string, _ models.LocationPing) error {
	f.calls++
	if f.permanentErr != nil {
		return f.permanentErr
	}
	if f.calls <= f.failTransient {
		return &dispatch.DependencyError{Op: "geo upsert", Err: errors.New("redis down")}
	}
	return nil
}

func TestApplyPingWithRetry_SucceedsAfterRetries(t *testing.T) {
	f := &fakeRecorder{failTransient: 2}
	env := ingest.PingEnvelope{UserID: "u1", Ping: models.LocationPing{Lat: 6.5, Lon: 3.4}}
	start := time.Now()
	if err := applyPingWithRetry(context.Background(), f, env, 3, 10*time.Millisecond); err != nil {
		t.Fatalf("expected success, got err=%v", err)
	}
	if f.calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", f.calls)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("expected at least one backoff")
	}
}

func TestApplyPingWithRetry_FailsWhenExhausted(t *testing.T) {
	f := &fakeRecorder{failTransient: 5}
	env := ingest.PingEnvelope{UserID: "u1", Ping: models.LocationPing{Lat: 6.5, Lon: 3.4}}
	if err := applyPingWithRetry(context.Background(), f, env, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected error after retries")
	}
	if f.calls != 3 {
		t.Fatalf("expected exactly 3 attempts, got %d", f.calls)
	}
}

func TestApplyPingWithRetry_DomainErrorsAreNotRetried(t *testing.T) {
	f := &fakeRecorder{permanentErr: &dispatch.NotFoundError{Resource: "driver"}}
	env := ingest.PingEnvelope{UserID: "ghost", Ping: models.LocationPing{}}
	if err := applyPingWithRetry(context.Background(), f, env, 3, 5*time.Millisecond); err == nil {
		t.Fatalf("expected the domain error to surface")
	}
	if f.calls != 1 {
		t.Fatalf("domain error must not be retried, got %d attempts", f.calls)
	}
}
