package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/horlami228/blaze/internal/models"
)

// ErrNotFound is returned by identity lookups when no live row matches.
// Soft-deleted rows count as absent.
var ErrNotFound = errors.New("not found")

// Store is the durable persistence contract the engine depends on.
// Active-ride finders return (nil, nil) when no ride is active, since
// absence there is a normal condition rather than an error.
type Store interface {
	FindDriverByUser(ctx context.Context, userID string) (*models.Driver, error)
	FindDriverByID(ctx context.Context, id string) (*models.Driver, error)
	// FindEligibleDrivers resolves ids to drivers that are online,
	// onboarding-complete and not soft-deleted. Order is unspecified.
	FindEligibleDrivers(ctx context.Context, ids []string) ([]models.Driver, error)
	UpdateDriverLocation(ctx context.Context, driverID string, lat, lon float64, at time.Time) error
	UpdateDriverOnline(ctx context.Context, driverID string, online bool) error

	FindRiderByUser(ctx context.Context, userID string) (*models.Rider, error)
	FindRiderByID(ctx context.Context, id string) (*models.Rider, error)
	FindVehicleByDriver(ctx context.Context, driverID string) (*models.Vehicle, error)

	FindActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error)
	FindActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error)
	CreateRide(ctx context.Context, r *models.Ride) error
	FindRideByID(ctx context.Context, id string) (*models.Ride, error)
	UpdateRideStatus(ctx context.Context, id string, status models.RideStatus) (*models.Ride, error)
	// AppendRidePath extends the persisted path with a JSON array of
	// samples. The operation appends, it never overwrites.
	AppendRidePath(ctx context.Context, rideID string, samplesJSON []byte) error
}

// MemoryStore keeps everything in process, used by tests and by local runs
// without PG_DSN configured.
type MemoryStore struct {
	mu       sync.RWMutex
	drivers  map[string]*models.Driver
	riders   map[string]*models.Rider
	vehicles map[string]*models.Vehicle
	rides    map[string]*models.Ride
	seq      int

	// FailDriverUpdates makes UpdateDriverOnline fail, letting tests
	// exercise the engine's registry compensation path.
	FailDriverUpdates bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		drivers:  make(map[string]*models.Driver),
		riders:   make(map[string]*models.Rider),
		vehicles: make(map[string]*models.Vehicle),
		rides:    make(map[string]*models.Ride),
	}
}

func (m *MemoryStore) PutDriver(d models.Driver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.drivers[d.ID] = &d
}

func (m *MemoryStore) PutRider(r models.Rider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.riders[r.ID] = &r
}

func (m *MemoryStore) PutVehicle(v models.Vehicle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vehicles[v.ID] = &v
}

func (m *MemoryStore) FindDriverByUser(_ context.Context, userID string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.drivers {
		if d.UserID == userID && d.DeletedAt == nil {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindDriverByID(_ context.Context, id string) (*models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.drivers[id]
	if !ok || d.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *MemoryStore) FindEligibleDrivers(_ context.Context, ids []string) ([]models.Driver, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Driver, 0, len(ids))
	for _, id := range ids {
		d, ok := m.drivers[id]
		if !ok || d.DeletedAt != nil || !d.IsOnline || !d.OnboardingCompleted {
			continue
		}
		out = append(out, *d)
	}
	return out, nil
}

func (m *MemoryStore) UpdateDriverLocation(_ context.Context, driverID string, lat, lon float64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	d.LastKnownLat = lat
	d.LastKnownLon = lon
	d.LastLocationUpdate = at
	return nil
}

func (m *MemoryStore) UpdateDriverOnline(_ context.Context, driverID string, online bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDriverUpdates {
		return fmt.Errorf("memory store: writes disabled")
	}
	d, ok := m.drivers[driverID]
	if !ok {
		return ErrNotFound
	}
	d.IsOnline = online
	return nil
}

func (m *MemoryStore) FindRiderByUser(_ context.Context, userID string) (*models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.riders {
		if r.UserID == userID && r.DeletedAt == nil {
			cp := *r
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindRiderByID(_ context.Context, id string) (*models.Rider, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.riders[id]
	if !ok || r.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) FindVehicleByDriver(_ context.Context, driverID string) (*models.Vehicle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, v := range m.vehicles {
		if v.DriverID == driverID {
			cp := *v
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindActiveRideForDriver(_ context.Context, driverID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.DriverID == driverID && r.Status.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) FindActiveRideForRider(_ context.Context, riderID string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.rides {
		if r.RiderID == riderID && r.Status.Active() {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *MemoryStore) CreateRide(_ context.Context, r *models.Ride) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	if r.ID == "" {
		r.ID = fmt.Sprintf("ride-%d", m.seq)
	}
	now := time.Now()
	r.CreatedAt = now
	r.UpdatedAt = now
	cp := *r
	m.rides[r.ID] = &cp
	return nil
}

func (m *MemoryStore) FindRideByID(_ context.Context, id string) (*models.Ride, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRideStatus(_ context.Context, id string, status models.RideStatus) (*models.Ride, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[id]
	if !ok {
		return nil, ErrNotFound
	}
	r.Status = status
	r.UpdatedAt = time.Now()
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) AppendRidePath(_ context.Context, rideID string, samplesJSON []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rides[rideID]
	if !ok {
		return ErrNotFound
	}
	var batch []models.PathSample
	if err := json.Unmarshal(samplesJSON, &batch); err != nil {
		return err
	}
	r.Path = append(r.Path, batch...)
	return nil
}

// RideCount reports how many ride rows exist, used by tests asserting
// that failed requests create nothing.
func (m *MemoryStore) RideCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rides)
}
