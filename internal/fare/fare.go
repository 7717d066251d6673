// Package fare quotes a ride price from pickup and dropoff coordinates.
package fare

import (
	"math"

	"github.com/horlami228/blaze/internal/config"
	"github.com/horlami228/blaze/internal/geo"
	"github.com/horlami228/blaze/internal/models"
)

// Quote is a deterministic estimate for a pickup/dropoff pair.
type Quote struct {
	// DistanceKm is the estimated road distance, straight-line inflated
	// by the configured road factor.
	DistanceKm float64 `json:"distance_km"`
	Fare       float64 `json:"fare"`
}

type Estimator struct {
	cfg config.FareConfig
}

func NewEstimator(cfg config.FareConfig) *Estimator {
	return &Estimator{cfg: cfg}
}

// Estimate is a pure function: the same pair of points always yields the
// identical quote.
func (e *Estimator) Estimate(pickup, dropoff models.Coord) Quote {
	straight := round2(geo.HaversineKm(pickup.Lat, pickup.Lon, dropoff.Lat, dropoff.Lon))
	road := straight * e.cfg.RoadFactor
	return Quote{
		DistanceKm: round2(road),
		Fare:       round2(e.cfg.BaseFare + road*e.cfg.PerKmRate),
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
