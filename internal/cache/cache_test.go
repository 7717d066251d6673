package cache

import (
	"context"
	"testing"
	"time"

	"github.com/horlami228/blaze/internal/models"
)

func TestRecordAndLatest(t *testing.T) {
	c := NewMemory(time.Second, 30*time.Second)
	ctx := context.Background()

	ping := models.LocationPing{Lat: 6.5, Lon: 3.4, Heading: 90, SpeedMps: 12}
	if err := c.RecordPing(ctx, "d1", ping); err != nil {
		t.Fatal(err)
	}
	got, ok, err := c.Latest(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("expected cached ping, ok=%v err=%v", ok, err)
	}
	if got != ping {
		t.Fatalf("expected %+v, got %+v", ping, got)
	}
}

func TestLatestExpires(t *testing.T) {
	c := NewMemory(time.Second, 30*time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	_ = c.RecordPing(ctx, "d1", models.LocationPing{Lat: 1, Lon: 2})
	c.now = func() time.Time { return base.Add(2 * time.Second) }
	if _, ok, _ := c.Latest(ctx, "d1"); ok {
		t.Fatal("expected entry to expire")
	}
}

func TestClear(t *testing.T) {
	c := NewMemory(time.Minute, 30*time.Second)
	ctx := context.Background()
	_ = c.RecordPing(ctx, "d1", models.LocationPing{Lat: 1, Lon: 2})
	_ = c.Clear(ctx, "d1")
	if _, ok, _ := c.Latest(ctx, "d1"); ok {
		t.Fatal("expected entry gone after clear")
	}
}

func TestThrottleTokenWindow(t *testing.T) {
	c := NewMemory(time.Minute, 30*time.Second)
	base := time.Now()
	c.now = func() time.Time { return base }
	ctx := context.Background()

	ok, err := c.ShouldPersistDurable(ctx, "d1")
	if err != nil || !ok {
		t.Fatalf("first claim should win, ok=%v err=%v", ok, err)
	}
	if ok, _ := c.ShouldPersistDurable(ctx, "d1"); ok {
		t.Fatal("second claim inside the window should lose")
	}
	// another driver is an independent token
	if ok, _ := c.ShouldPersistDurable(ctx, "d2"); !ok {
		t.Fatal("other drivers must not share the token")
	}

	c.now = func() time.Time { return base.Add(31 * time.Second) }
	if ok, _ := c.ShouldPersistDurable(ctx, "d1"); !ok {
		t.Fatal("claim after the window should win again")
	}
}
