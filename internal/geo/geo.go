package geo

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Candidate is one registry hit, distance measured from the query point.
type Candidate struct {
	DriverID   string
	DistanceKm float64
}

// Registry is the live index of dispatchable drivers. Membership is the
// source of truth for "currently dispatchable": entries never expire on
// their own and must be removed explicitly when a driver goes offline.
type Registry interface {
	Upsert(ctx context.Context, driverID string, lon, lat float64) error
	Remove(ctx context.Context, driverID string) error
	// QueryRadius returns all members within radiusKm of the point,
	// ascending by distance, ties broken by driver id.
	QueryRadius(ctx context.Context, lon, lat, radiusKm float64) ([]Candidate, error)
}

type position struct {
	lon, lat float64
}

// Index is an in-memory Registry used by tests and as a single-process
// fallback when Redis is not configured.
type Index struct {
	mu      sync.RWMutex
	members map[string]position
}

func NewIndex() *Index {
	return &Index{members: make(map[string]position)}
}

func (g *Index) Upsert(_ context.Context, driverID string, lon, lat float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.members[driverID] = position{lon: lon, lat: lat}
	return nil
}

func (g *Index) Remove(_ context.Context, driverID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members, driverID)
	return nil
}

func (g *Index) Contains(driverID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.members[driverID]
	return ok
}

// naive scan; fine for tests and small fleets, Redis GEO covers prod
func (g *Index) QueryRadius(_ context.Context, lon, lat, radiusKm float64) ([]Candidate, error) {
	g.mu.RLock()
	out := make([]Candidate, 0, len(g.members))
	for id, p := range g.members {
		d := HaversineKm(lat, lon, p.lat, p.lon)
		if d <= radiusKm {
			out = append(out, Candidate{DriverID: id, DistanceKm: d})
		}
	}
	g.mu.RUnlock()
	SortCandidates(out)
	return out, nil
}

// SortCandidates orders by distance ascending, then driver id, so equal
// distances resolve the same way on every run.
func SortCandidates(cands []Candidate) {
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].DistanceKm != cands[j].DistanceKm {
			return cands[i].DistanceKm < cands[j].DistanceKm
		}
		return cands[i].DriverID < cands[j].DriverID
	})
}

// HaversineKm is the great-circle distance in kilometers.
func HaversineKm(lat1, lon1, lat2, lon2 float64) float64 {
	const R = 6371.0
	toRad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return R * c
}
