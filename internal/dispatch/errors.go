package dispatch

import "fmt"

// NotFoundError covers drivers, riders and rides that do not exist or are
// soft-deleted.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string { return e.Resource + " not found" }

// InvalidStateError marks an action attempted against a ride or driver
// whose current state does not satisfy the precondition.
type InvalidStateError struct {
	Reason string
}

func (e *InvalidStateError) Error() string { return e.Reason }

// NoCapacityError means no eligible driver exists within the maximum
// search radius.
type NoCapacityError struct {
	RadiusKm float64
}

func (e *NoCapacityError) Error() string {
	return fmt.Sprintf("no drivers available within %.0f km", e.RadiusKm)
}

// DependencyError wraps a failed registry, cache or durable-store call.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *DependencyError) Unwrap() error { return e.Err }

func depErr(op string, err error) error {
	return &DependencyError{Op: op, Err: err}
}
