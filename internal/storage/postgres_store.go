package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/horlami228/blaze/internal/models"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	// quick ping
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error { return p.db.Close() }

// DB exposes the handle for migrations at boot.
func (p *PostgresStore) DB() *sql.DB { return p.db }

const driverColumns = `id, user_id, COALESCE(vehicle_id::text, ''), is_online, onboarding_completed,
	COALESCE(last_known_lat, 0), COALESCE(last_known_lon, 0), COALESCE(last_location_update, 'epoch'::timestamptz)`

func scanDriver(row interface{ Scan(...any) error }) (*models.Driver, error) {
	var d models.Driver
	err := row.Scan(&d.ID, &d.UserID, &d.VehicleID, &d.IsOnline, &d.OnboardingCompleted,
		&d.LastKnownLat, &d.LastKnownLon, &d.LastLocationUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (p *PostgresStore) FindDriverByUser(ctx context.Context, userID string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE user_id=$1 AND deleted_at IS NULL`, userID)
	return scanDriver(row)
}

func (p *PostgresStore) FindDriverByID(ctx context.Context, id string) (*models.Driver, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+driverColumns+` FROM drivers WHERE id=$1 AND deleted_at IS NULL`, id)
	return scanDriver(row)
}

func (p *PostgresStore) FindEligibleDrivers(ctx context.Context, ids []string) ([]models.Driver, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+driverColumns+` FROM drivers
		 WHERE id = ANY($1::uuid[]) AND is_online AND onboarding_completed AND deleted_at IS NULL`,
		pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []models.Driver
	for rows.Next() {
		d, err := scanDriver(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, rows.Err()
}

func (p *PostgresStore) UpdateDriverLocation(ctx context.Context, driverID string, lat, lon float64, at time.Time) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE drivers SET last_known_lat=$1, last_known_lon=$2, last_location_update=$3 WHERE id=$4`,
		lat, lon, at, driverID)
	return err
}

func (p *PostgresStore) UpdateDriverOnline(ctx context.Context, driverID string, online bool) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE drivers SET is_online=$1 WHERE id=$2 AND deleted_at IS NULL`, online, driverID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresStore) FindRiderByUser(ctx context.Context, userID string) (*models.Rider, error) {
	var r models.Rider
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id FROM riders WHERE user_id=$1 AND deleted_at IS NULL`, userID).
		Scan(&r.ID, &r.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) FindRiderByID(ctx context.Context, id string) (*models.Rider, error) {
	var r models.Rider
	err := p.db.QueryRowContext(ctx,
		`SELECT id, user_id FROM riders WHERE id=$1 AND deleted_at IS NULL`, id).
		Scan(&r.ID, &r.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) FindVehicleByDriver(ctx context.Context, driverID string) (*models.Vehicle, error) {
	var v models.Vehicle
	err := p.db.QueryRowContext(ctx,
		`SELECT id, driver_id, plate, model FROM vehicles WHERE driver_id=$1`, driverID).
		Scan(&v.ID, &v.DriverID, &v.Plate, &v.Model)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

const rideColumns = `id, rider_id, driver_id, vehicle_id, pickup_lat, pickup_lon, pickup_address,
	dropoff_lat, dropoff_lon, dropoff_address, status, fare, distance_km, created_at, updated_at`

func scanRide(row interface{ Scan(...any) error }) (*models.Ride, error) {
	var r models.Ride
	err := row.Scan(&r.ID, &r.RiderID, &r.DriverID, &r.VehicleID,
		&r.Pickup.Lat, &r.Pickup.Lon, &r.PickupAddress,
		&r.Dropoff.Lat, &r.Dropoff.Lon, &r.DropoffAddress,
		&r.Status, &r.Fare, &r.DistanceKm, &r.CreatedAt, &r.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (p *PostgresStore) FindActiveRideForDriver(ctx context.Context, driverID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides
		 WHERE driver_id=$1 AND status IN ('PENDING','ACCEPTED','ONGOING') LIMIT 1`, driverID)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func (p *PostgresStore) FindActiveRideForRider(ctx context.Context, riderID string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+rideColumns+` FROM rides
		 WHERE rider_id=$1 AND status IN ('PENDING','ACCEPTED','ONGOING') LIMIT 1`, riderID)
	r, err := scanRide(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return r, err
}

func (p *PostgresStore) CreateRide(ctx context.Context, r *models.Ride) error {
	return p.db.QueryRowContext(ctx,
		`INSERT INTO rides (rider_id, driver_id, vehicle_id, pickup_lat, pickup_lon, pickup_address,
		                    dropoff_lat, dropoff_lon, dropoff_address, status, fare, distance_km)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		 RETURNING id, created_at, updated_at`,
		r.RiderID, r.DriverID, r.VehicleID, r.Pickup.Lat, r.Pickup.Lon, r.PickupAddress,
		r.Dropoff.Lat, r.Dropoff.Lon, r.DropoffAddress, r.Status, r.Fare, r.DistanceKm).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
}

func (p *PostgresStore) FindRideByID(ctx context.Context, id string) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+rideColumns+` FROM rides WHERE id=$1`, id)
	return scanRide(row)
}

func (p *PostgresStore) UpdateRideStatus(ctx context.Context, id string, status models.RideStatus) (*models.Ride, error) {
	row := p.db.QueryRowContext(ctx,
		`UPDATE rides SET status=$1, updated_at=now() WHERE id=$2 RETURNING `+rideColumns, status, id)
	return scanRide(row)
}

func (p *PostgresStore) AppendRidePath(ctx context.Context, rideID string, samplesJSON []byte) error {
	_, err := p.db.ExecContext(ctx,
		`UPDATE rides SET path_json = COALESCE(path_json, '[]'::jsonb) || $1::jsonb, updated_at = now()
		 WHERE id=$2`, string(samplesJSON), rideID)
	return err
}
