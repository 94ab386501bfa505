// Package domain defines the error taxonomy shared by the booking core.
package domain

import "errors"

// Availability rejection reasons, machine readable.
const (
	ReasonClosed        = "closed"
	ReasonCutOff        = "cut_off"
	ReasonTableConflict = "table_conflict"
	ReasonCapacity      = "capacity"
)

// AuthorizationError is returned when a capability token is missing,
// malformed or does not match the requested tuple.
type AuthorizationError struct {
	Reason string
}

func (e *AuthorizationError) Error() string {
	if e.Reason == "" {
		return "authorization failed"
	}
	return "authorization failed: " + e.Reason
}

// IsAuthorization checks if err is an AuthorizationError.
func IsAuthorization(err error) bool {
	var ae *AuthorizationError
	return errors.As(err, &ae)
}

// LifecycleError is returned when a mutation arrives after the booking's
// lifecycle boundary, or a change request is resolved twice.
type LifecycleError struct {
	Reason string
}

func (e *LifecycleError) Error() string {
	return e.Reason
}

// IsLifecycle checks if err is a LifecycleError.
func IsLifecycle(err error) bool {
	var le *LifecycleError
	return errors.As(err, &le)
}

// AvailabilityError is returned by the first failing validator gate.
type AvailabilityError struct {
	Reason string // closed, cut_off, table_conflict, capacity
	Detail string
}

func (e *AvailabilityError) Error() string {
	if e.Detail == "" {
		return "not available: " + e.Reason
	}
	return "not available: " + e.Reason + ": " + e.Detail
}

// IsAvailability checks if err is an AvailabilityError and returns it.
func IsAvailability(err error) (*AvailabilityError, bool) {
	var ae *AvailabilityError
	if errors.As(err, &ae) {
		return ae, true
	}
	return nil, false
}
