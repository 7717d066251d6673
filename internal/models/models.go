package models

import "time"

type Coord struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// RideStatus is the lifecycle state of a ride. Transitions are strictly
// ordered: PENDING -> ACCEPTED -> ONGOING -> COMPLETED, with CANCELLED
// reachable from any non-terminal state.
type RideStatus string

const (
	StatusPending   RideStatus = "PENDING"
	StatusAccepted  RideStatus = "ACCEPTED"
	StatusOngoing   RideStatus = "ONGOING"
	StatusCompleted RideStatus = "COMPLETED"
	StatusCancelled RideStatus = "CANCELLED"
)

// Active reports whether the status counts toward the one-active-ride
// limit for a driver or rider.
func (s RideStatus) Active() bool {
	return s == StatusPending || s == StatusAccepted || s == StatusOngoing
}

// Terminal reports whether no further transition is possible.
func (s RideStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Driver struct {
	ID                  string     `json:"id"`
	UserID              string     `json:"user_id"`
	VehicleID           string     `json:"vehicle_id,omitempty"`
	IsOnline            bool       `json:"is_online"`
	OnboardingCompleted bool       `json:"onboarding_completed"`
	LastKnownLat        float64    `json:"last_known_lat"`
	LastKnownLon        float64    `json:"last_known_lon"`
	LastLocationUpdate  time.Time  `json:"last_location_update"`
	DeletedAt           *time.Time `json:"-"`
}

type Rider struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	DeletedAt *time.Time `json:"-"`
}

type Vehicle struct {
	ID       string `json:"id"`
	DriverID string `json:"driver_id"`
	Plate    string `json:"plate"`
	Model    string `json:"model"`
}

// LocationPing is one raw telemetry sample from a driver device.
type LocationPing struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Heading  float64 `json:"heading,omitempty"`
	SpeedMps float64 `json:"speed_mps,omitempty"`
	Accuracy float64 `json:"accuracy,omitempty"`
}

// PathSample is one (position, timestamp) observation on a ride's path.
// Timestamp is unix milliseconds so samples sort naturally by score.
type PathSample struct {
	Lat       float64 `json:"latitude"`
	Lon       float64 `json:"longitude"`
	Timestamp int64   `json:"timestamp"`
}

type Ride struct {
	ID             string       `json:"id"`
	RiderID        string       `json:"rider_id"`
	DriverID       string       `json:"driver_id"`
	VehicleID      string       `json:"vehicle_id"`
	Pickup         Coord        `json:"pickup"`
	PickupAddress  string       `json:"pickup_address"`
	Dropoff        Coord        `json:"dropoff"`
	DropoffAddress string       `json:"dropoff_address"`
	Status         RideStatus   `json:"status"`
	Fare           float64      `json:"fare"`
	DistanceKm     float64      `json:"distance_km"`
	Path           []PathSample `json:"path,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}

// RideRequest is the typed payload for requesting a ride.
type RideRequest struct {
	Pickup         Coord  `json:"pickup"`
	PickupAddress  string `json:"pickup_address"`
	Dropoff        Coord  `json:"dropoff"`
	DropoffAddress string `json:"dropoff_address"`
}
