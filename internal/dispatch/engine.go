// Package dispatch orchestrates driver availability, nearest-driver search,
// ride creation and the ride lifecycle state machine.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/horlami228/blaze/internal/cache"
	"github.com/horlami228/blaze/internal/config"
	"github.com/horlami228/blaze/internal/fare"
	"github.com/horlami228/blaze/internal/geo"
	"github.com/horlami228/blaze/internal/models"
	"github.com/horlami228/blaze/internal/observability"
	"github.com/horlami228/blaze/internal/path"
	"github.com/horlami228/blaze/internal/storage"
)

// Event names delivered through the Notifier.
const (
	EventNewRide          = "new-ride"
	EventRideStatusUpdate = "ride-status-update"
	EventDriverLocation   = "driver-location"
)

// Notifier delivers asynchronous events to a specific user. Delivery is
// fire-and-forget and at-most-once; the durable store stays the source of
// truth for ride status.
type Notifier interface {
	Notify(userID, event string, payload any) error
}

// Engine wires the registry, cache, path recorder, estimator and durable
// store behind the public dispatch operations. All dependencies are
// injected; the engine holds no ambient globals and no lock across I/O.
type Engine struct {
	store    storage.Store
	registry geo.Registry
	cache    cache.LocationCache
	paths    *path.Recorder
	fares    *fare.Estimator
	notifier Notifier
	logger   *slog.Logger

	tiers     []float64
	freshness time.Duration

	now func() time.Time
}

func NewEngine(
	store storage.Store,
	registry geo.Registry,
	locCache cache.LocationCache,
	paths *path.Recorder,
	fares *fare.Estimator,
	notifier Notifier,
	cfg config.DispatchConfig,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		store:     store,
		registry:  registry,
		cache:     locCache,
		paths:     paths,
		fares:     fares,
		notifier:  notifier,
		logger:    logger,
		tiers:     cfg.RadiusTiersKm,
		freshness: cfg.FreshnessWindow,
		now:       time.Now,
	}
}

func (e *Engine) maxRadiusKm() float64 { return e.tiers[len(e.tiers)-1] }

// RecordLocation ingests one telemetry ping from a driver device: refresh
// the registry position while the driver is online, cache the raw ping,
// write the durable last-known position at most once per throttle window,
// and extend the active ride's path if one exists.
func (e *Engine) RecordLocation(ctx context.Context, userID string, ping models.LocationPing) error {
	driver, err := e.findDriver(ctx, userID)
	if err != nil {
		return err
	}
	observability.LocationPingsTotal.Inc()

	// Offline drivers keep their telemetry cached but must stay out of
	// the registry, otherwise dispatch would offer them rides.
	if driver.IsOnline {
		if err := e.registry.Upsert(ctx, driver.ID, ping.Lon, ping.Lat); err != nil {
			return depErr("geo upsert", err)
		}
	}

	if err := e.cache.RecordPing(ctx, driver.ID, ping); err != nil {
		return depErr("cache ping", err)
	}

	persist, err := e.cache.ShouldPersistDurable(ctx, driver.ID)
	if err != nil {
		return depErr("throttle check", err)
	}
	if persist {
		if err := e.store.UpdateDriverLocation(ctx, driver.ID, ping.Lat, ping.Lon, e.now()); err != nil {
			return depErr("persist position", err)
		}
		observability.ThrottledWrites.Inc()
	}

	active, err := e.store.FindActiveRideForDriver(ctx, driver.ID)
	if err != nil {
		return depErr("find active ride", err)
	}
	if active != nil {
		ts := e.now().UnixMilli()
		if err := e.paths.AppendSample(ctx, active.ID, ping.Lat, ping.Lon, ts); err != nil {
			return depErr("record path", err)
		}
		e.notifyRideParties(ctx, active, EventDriverLocation, models.PathSample{
			Lat: ping.Lat, Lon: ping.Lon, Timestamp: ts,
		})
	}
	return nil
}

// ToggleAvailability flips the driver's online flag. The registry write
// happens first and the durable write second; if the durable write fails
// the registry change is reverted before the error surfaces, because an
// inconsistent registry directly causes wrong dispatch.
func (e *Engine) ToggleAvailability(ctx context.Context, userID string) (bool, error) {
	driver, err := e.findDriver(ctx, userID)
	if err != nil {
		return false, err
	}
	if !driver.OnboardingCompleted {
		return false, &InvalidStateError{Reason: "complete onboarding before going online"}
	}

	goingOnline := !driver.IsOnline

	if goingOnline {
		if driver.LastLocationUpdate.IsZero() || e.now().Sub(driver.LastLocationUpdate) > e.freshness {
			return false, &InvalidStateError{Reason: "driver location is stale, send a location ping first"}
		}
		if err := e.registry.Upsert(ctx, driver.ID, driver.LastKnownLon, driver.LastKnownLat); err != nil {
			return false, depErr("geo upsert", err)
		}
	} else {
		active, err := e.store.FindActiveRideForDriver(ctx, driver.ID)
		if err != nil {
			return false, depErr("find active ride", err)
		}
		if active != nil {
			return false, &InvalidStateError{Reason: "driver has an active ride"}
		}
		if err := e.registry.Remove(ctx, driver.ID); err != nil {
			return false, depErr("geo remove", err)
		}
	}

	if err := e.store.UpdateDriverOnline(ctx, driver.ID, goingOnline); err != nil {
		e.logger.Error("availability write failed, reverting registry",
			"driver_id", driver.ID, "going_online", goingOnline, "error", err)
		if goingOnline {
			if rerr := e.registry.Remove(ctx, driver.ID); rerr != nil {
				e.logger.Error("registry revert failed", "driver_id", driver.ID, "error", rerr)
			}
		} else {
			if rerr := e.registry.Upsert(ctx, driver.ID, driver.LastKnownLon, driver.LastKnownLat); rerr != nil {
				e.logger.Error("registry revert failed", "driver_id", driver.ID, "error", rerr)
			}
		}
		return false, depErr("persist availability", err)
	}

	if goingOnline {
		observability.DriversOnline.Inc()
	} else {
		observability.DriversOnline.Dec()
		if err := e.cache.Clear(ctx, driver.ID); err != nil {
			e.logger.Warn("clearing location cache failed", "driver_id", driver.ID, "error", err)
		}
	}
	e.logger.Info("driver availability toggled", "driver_id", driver.ID, "is_online", goingOnline)
	return goingOnline, nil
}

// RequestRide quotes the fare, finds the nearest eligible driver and
// creates the ride already assigned, in PENDING. The assigned driver is
// notified; there is no acceptance negotiation and no reassignment if the
// driver never responds.
func (e *Engine) RequestRide(ctx context.Context, userID string, req models.RideRequest) (*models.Ride, error) {
	observability.RidesRequested.Inc()

	rider, err := e.store.FindRiderByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Resource: "rider"}
	}
	if err != nil {
		return nil, depErr("find rider", err)
	}

	existing, err := e.store.FindActiveRideForRider(ctx, rider.ID)
	if err != nil {
		return nil, depErr("find active ride", err)
	}
	if existing != nil {
		return nil, &InvalidStateError{Reason: "you already have an active ride"}
	}

	quote := e.fares.Estimate(req.Pickup, req.Dropoff)

	driver, dist, err := e.nearestEligibleDriver(ctx, req.Pickup)
	if err != nil {
		return nil, err
	}

	vehicleID := driver.VehicleID
	if vehicleID == "" {
		vehicle, err := e.store.FindVehicleByDriver(ctx, driver.ID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, &NoCapacityError{RadiusKm: e.maxRadiusKm()}
		}
		if err != nil {
			return nil, depErr("find vehicle", err)
		}
		vehicleID = vehicle.ID
	}

	ride := &models.Ride{
		RiderID:        rider.ID,
		DriverID:       driver.ID,
		VehicleID:      vehicleID,
		Pickup:         req.Pickup,
		PickupAddress:  req.PickupAddress,
		Dropoff:        req.Dropoff,
		DropoffAddress: req.DropoffAddress,
		Status:         models.StatusPending,
		Fare:           quote.Fare,
		DistanceKm:     quote.DistanceKm,
	}
	if err := e.store.CreateRide(ctx, ride); err != nil {
		return nil, depErr("create ride", err)
	}
	observability.RidesAssigned.Inc()
	e.logger.Info("ride created and assigned",
		"ride_id", ride.ID, "driver_id", driver.ID, "distance_from_pickup_km", dist, "fare", ride.Fare)

	if err := e.notifier.Notify(driver.UserID, EventNewRide, ride); err != nil {
		e.logger.Warn("driver notification failed", "ride_id", ride.ID, "driver_id", driver.ID, "error", err)
	}
	return ride, nil
}

// AcceptRide moves a PENDING ride to ACCEPTED. Only the assigned driver
// may accept.
func (e *Engine) AcceptRide(ctx context.Context, userID, rideID string) (*models.Ride, error) {
	return e.driverTransition(ctx, userID, rideID, models.StatusPending, models.StatusAccepted, "ride is not pending")
}

// StartRide moves an ACCEPTED ride to ONGOING.
func (e *Engine) StartRide(ctx context.Context, userID, rideID string) (*models.Ride, error) {
	return e.driverTransition(ctx, userID, rideID, models.StatusAccepted, models.StatusOngoing, "ride has not been accepted")
}

// CompleteRide moves an ONGOING ride to COMPLETED. Any path samples still
// buffered stay in the buffer until its TTL reaps them.
func (e *Engine) CompleteRide(ctx context.Context, userID, rideID string) (*models.Ride, error) {
	return e.driverTransition(ctx, userID, rideID, models.StatusOngoing, models.StatusCompleted, "ride is not ongoing")
}

// CancelRide moves any non-terminal ride to CANCELLED. Either party of the
// ride may cancel.
func (e *Engine) CancelRide(ctx context.Context, userID, rideID string) (*models.Ride, error) {
	ride, err := e.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if err := e.authorizeParty(ctx, userID, ride); err != nil {
		return nil, err
	}
	if ride.Status.Terminal() {
		return nil, &InvalidStateError{Reason: "ride is already " + string(ride.Status)}
	}
	updated, err := e.store.UpdateRideStatus(ctx, ride.ID, models.StatusCancelled)
	if err != nil {
		return nil, depErr("update ride", err)
	}
	e.logger.Info("ride cancelled", "ride_id", ride.ID, "by_user", userID)
	e.notifyRideParties(ctx, updated, EventRideStatusUpdate, updated)
	return updated, nil
}

func (e *Engine) driverTransition(ctx context.Context, userID, rideID string, from, to models.RideStatus, reason string) (*models.Ride, error) {
	driver, err := e.findDriver(ctx, userID)
	if err != nil {
		return nil, err
	}
	ride, err := e.findRide(ctx, rideID)
	if err != nil {
		return nil, err
	}
	if ride.DriverID != driver.ID {
		return nil, &InvalidStateError{Reason: "ride is assigned to another driver"}
	}
	// Validate the current status on every transition; duplicate or
	// reordered requests must not skip a step.
	if ride.Status != from {
		return nil, &InvalidStateError{Reason: reason}
	}
	updated, err := e.store.UpdateRideStatus(ctx, ride.ID, to)
	if err != nil {
		return nil, depErr("update ride", err)
	}
	e.logger.Info("ride status updated", "ride_id", ride.ID, "from", from, "to", to)
	e.notifyRideParties(ctx, updated, EventRideStatusUpdate, updated)
	return updated, nil
}

// nearestEligibleDriver searches the radius tiers in increasing order and
// returns the closest candidate the durable store confirms as eligible.
// The registry is a cache and may hold stale members; the store check is
// authoritative.
func (e *Engine) nearestEligibleDriver(ctx context.Context, pickup models.Coord) (*models.Driver, float64, error) {
	for _, radius := range e.tiers {
		cands, err := e.registry.QueryRadius(ctx, pickup.Lon, pickup.Lat, radius)
		if err != nil {
			return nil, 0, depErr("geo query", err)
		}
		if len(cands) == 0 {
			continue
		}
		ids := make([]string, len(cands))
		for i, c := range cands {
			ids[i] = c.DriverID
		}
		drivers, err := e.store.FindEligibleDrivers(ctx, ids)
		if err != nil {
			return nil, 0, depErr("filter candidates", err)
		}
		if len(drivers) == 0 {
			continue
		}
		byID := make(map[string]*models.Driver, len(drivers))
		for i := range drivers {
			byID[drivers[i].ID] = &drivers[i]
		}
		// cands is already ascending by distance with id tie-break
		for _, c := range cands {
			if d, ok := byID[c.DriverID]; ok {
				return d, c.DistanceKm, nil
			}
		}
	}
	observability.RidesNoCapacity.Inc()
	return nil, 0, &NoCapacityError{RadiusKm: e.maxRadiusKm()}
}

func (e *Engine) findDriver(ctx context.Context, userID string) (*models.Driver, error) {
	driver, err := e.store.FindDriverByUser(ctx, userID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Resource: "driver"}
	}
	if err != nil {
		return nil, depErr("find driver", err)
	}
	return driver, nil
}

func (e *Engine) findRide(ctx context.Context, rideID string) (*models.Ride, error) {
	ride, err := e.store.FindRideByID(ctx, rideID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, &NotFoundError{Resource: "ride"}
	}
	if err != nil {
		return nil, depErr("find ride", err)
	}
	return ride, nil
}

// authorizeParty checks that the acting user is the ride's driver or rider.
func (e *Engine) authorizeParty(ctx context.Context, userID string, ride *models.Ride) error {
	if driver, err := e.store.FindDriverByUser(ctx, userID); err == nil && driver.ID == ride.DriverID {
		return nil
	}
	if rider, err := e.store.FindRiderByUser(ctx, userID); err == nil && rider.ID == ride.RiderID {
		return nil
	}
	return &InvalidStateError{Reason: "you are not part of this ride"}
}

// notifyRideParties fans a best-effort event out to the ride's driver and
// rider. Lookup or delivery failures are logged, never propagated.
func (e *Engine) notifyRideParties(ctx context.Context, ride *models.Ride, event string, payload any) {
	if driver, err := e.store.FindDriverByID(ctx, ride.DriverID); err == nil {
		if err := e.notifier.Notify(driver.UserID, event, payload); err != nil {
			e.logger.Debug("driver notify failed", "ride_id", ride.ID, "event", event, "error", err)
		}
	}
	if rider, err := e.store.FindRiderByID(ctx, ride.RiderID); err == nil {
		if err := e.notifier.Notify(rider.UserID, event, payload); err != nil {
			e.logger.Debug("rider notify failed", "ride_id", ride.ID, "event", event, "error", err)
		}
	}
}
