package domain

import "time"

// PermissionState tracks geolocation permission.
type PermissionState string

const (
	PermissionUnrequested PermissionState = "unrequested"
	PermissionPending     PermissionState = "pending"
	PermissionGranted     PermissionState = "granted"
	PermissionDenied      PermissionState = "denied"
)

// Level of a user notification.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Notification is a transient, non-blocking message for the user.
type Notification struct {
	Level   Level  `json:"level"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Notification codes.
const (
	CodeSearchFailed  = "search_failed"
	CodeInvalidFilter = "invalid_filter"
	CodeLocation      = "location"
	CodeMapFallback   = "map_fallback"
)

// NavigationIntent asks the host to open an entity's detail view.
type NavigationIntent struct {
	Ref  Ref    `json:"ref"`
	Path string `json:"path"`
}

// NewNavigationIntent builds the intent for r.
func NewNavigationIntent(r Ref) NavigationIntent {
	return NavigationIntent{Ref: r, Path: r.DetailPath()}
}

// SearchExecuted is an analytics event emitted once per dispatched query.
type SearchExecuted struct {
	Session    string      `json:"session"`
	Token      uint64      `json:"token"`
	EntityType EntityType  `json:"entity_type"`
	Query      SearchQuery `json:"query"`
	Time       time.Time   `json:"time"`
}
