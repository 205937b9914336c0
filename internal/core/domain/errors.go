package domain

import "errors"

// Input errors: rejected before a query is sent.
var (
	ErrInvalidRange      = errors.New("invalid filter range")
	ErrInvalidPosition   = errors.New("invalid position")
	ErrUnknownEntityType = errors.New("unknown entity type")
)

// Device location errors. Each one has its own user-facing message.
var (
	ErrPermissionDenied    = errors.New("location permission denied")
	ErrPositionUnavailable = errors.New("location unavailable")
	ErrTimeout             = errors.New("location request timed out")
	ErrUnsupported         = errors.New("location not supported")
)

// ErrMapUnavailable is returned by map loaders that cannot provide a surface.
var ErrMapUnavailable = errors.New("map surface unavailable")

// ErrNotFound is returned by repositories when an entity does not exist.
var ErrNotFound = errors.New("not found")

// LocationMessage returns the non-technical message shown for a location error.
func LocationMessage(err error) string {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return "Location access was denied. You can still search by name, or allow location and try again."
	case errors.Is(err, ErrTimeout):
		return "Finding your location took too long. Try again when you have a better signal."
	case errors.Is(err, ErrUnsupported):
		return "Your device can't share its location. Search by name or neighbourhood instead."
	default:
		return "We couldn't find your location right now. Showing results without distance."
	}
}
