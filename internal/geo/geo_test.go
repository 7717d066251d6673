package geo

import (
	"context"
	"testing"
)

func TestHaversineZero(t *testing.T) {
	d := HaversineKm(0, 0, 0, 0)
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// Lagos pickup vs two nearby drivers, D1 is farther out.
	pickup := [2]float64{6.514656, 3.490738}
	d1 := HaversineKm(pickup[0], pickup[1], 6.50, 3.39)
	d2 := HaversineKm(pickup[0], pickup[1], 6.49, 3.40)
	if d2 >= d1 {
		t.Fatalf("expected d2 < d1, got d1=%f d2=%f", d1, d2)
	}
}

func TestQueryRadiusOrdering(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	_ = idx.Upsert(ctx, "far", 3.39, 6.50)
	_ = idx.Upsert(ctx, "near", 3.40, 6.49)
	_ = idx.Upsert(ctx, "out-of-range", 4.50, 7.50)

	cands, err := idx.QueryRadius(ctx, 3.490738, 6.514656, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(cands))
	}
	if cands[0].DriverID != "near" || cands[1].DriverID != "far" {
		t.Fatalf("wrong order: %+v", cands)
	}
	if cands[0].DistanceKm > cands[1].DistanceKm {
		t.Fatalf("distances not ascending: %+v", cands)
	}
}

func TestQueryRadiusTieBreakByID(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	// identical positions, identical distances
	_ = idx.Upsert(ctx, "b", 3.40, 6.49)
	_ = idx.Upsert(ctx, "a", 3.40, 6.49)

	cands, err := idx.QueryRadius(ctx, 3.49, 6.51, 15)
	if err != nil {
		t.Fatal(err)
	}
	if len(cands) != 2 || cands[0].DriverID != "a" {
		t.Fatalf("expected deterministic id tie-break, got %+v", cands)
	}
}

func TestRemove(t *testing.T) {
	idx := NewIndex()
	ctx := context.Background()
	_ = idx.Upsert(ctx, "d1", 3.40, 6.49)
	if !idx.Contains("d1") {
		t.Fatal("expected member after upsert")
	}
	_ = idx.Remove(ctx, "d1")
	if idx.Contains("d1") {
		t.Fatal("expected member gone after remove")
	}
	cands, _ := idx.QueryRadius(ctx, 3.40, 6.49, 5)
	if len(cands) != 0 {
		t.Fatalf("expected empty result, got %+v", cands)
	}
}
