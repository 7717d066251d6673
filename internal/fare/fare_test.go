package fare

import (
	"math"
	"testing"

	"github.com/horlami228/blaze/internal/config"
	"github.com/horlami228/blaze/internal/models"
)

var testCfg = config.FareConfig{BaseFare: 500, PerKmRate: 150, RoadFactor: 1.25}

func TestFareFormula(t *testing.T) {
	e := NewEstimator(testCfg)
	// two points on the same meridian 8.74 km apart:
	// 8.74 km / (6371 km * pi/180) = 0.078601 degrees of latitude
	pickup := models.Coord{Lat: 6.50, Lon: 3.49}
	dropoff := models.Coord{Lat: 6.578601, Lon: 3.49}

	q := e.Estimate(pickup, dropoff)

	want := math.Round((500+8.74*150*1.25)*100) / 100 // 2138.75
	if q.Fare != want {
		t.Fatalf("expected fare %.2f, got %.2f", want, q.Fare)
	}
	if q.DistanceKm != math.Round(8.74*1.25*100)/100 {
		t.Fatalf("unexpected road distance %.2f", q.DistanceKm)
	}
}

func TestEstimateIsIdempotent(t *testing.T) {
	e := NewEstimator(testCfg)
	pickup := models.Coord{Lat: 6.514656, Lon: 3.490738}
	dropoff := models.Coord{Lat: 6.460058, Lon: 3.459315}

	a := e.Estimate(pickup, dropoff)
	b := e.Estimate(pickup, dropoff)
	if a != b {
		t.Fatalf("same inputs produced different quotes: %+v vs %+v", a, b)
	}
	if a.Fare <= testCfg.BaseFare {
		t.Fatalf("expected fare above base for a real trip, got %.2f", a.Fare)
	}
}

func TestZeroDistanceIsBaseFare(t *testing.T) {
	e := NewEstimator(testCfg)
	p := models.Coord{Lat: 6.5, Lon: 3.4}
	q := e.Estimate(p, p)
	if q.Fare != 500 || q.DistanceKm != 0 {
		t.Fatalf("expected base fare for zero distance, got %+v", q)
	}
}
