package ports

import (
	"context"
	"time"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// SearchService is the remote search backend consumed by an explorer session.
type SearchService interface {
	// Search runs q. Results carry a distance iff q has a position.
	Search(ctx context.Context, q domain.SearchQuery) ([]domain.Locatable, error)
	Facets(ctx context.Context) (domain.Facets, error)
}

// FixOptions are passed to the device when requesting a position.
type FixOptions struct {
	Timeout      time.Duration
	MaxAge       time.Duration
	HighAccuracy bool
}

// DeviceLocator is the device geolocation API. Errors are one of
// domain.ErrPermissionDenied, ErrPositionUnavailable, ErrTimeout or ErrUnsupported.
type DeviceLocator interface {
	Locate(ctx context.Context, opts FixOptions) (domain.GeoPosition, error)
}

// Opaque handles issued by a MapSurface.
type (
	MarkerHandle   string
	OverlayHandle  string
	ListenerHandle string
)

// MarkerSpec describes how a marker is drawn.
type MarkerSpec struct {
	Position domain.GeoPosition `json:"position"`
	Title    string             `json:"title"`
	Kind     domain.Kind        `json:"kind"`
	Color    string             `json:"color"`
	Label    string             `json:"label,omitempty"`
	ZIndex   int                `json:"z_index"`
	Bounce   bool               `json:"bounce,omitempty"`
}

// OverlayContent is the info window shown when a marker is clicked.
type OverlayContent struct {
	Title      string  `json:"title"`
	Address    string  `json:"address,omitempty"`
	KindLabel  string  `json:"kind_label"`
	Rating     float64 `json:"rating,omitempty"`
	Distance   string  `json:"distance,omitempty"`
	DetailPath string  `json:"detail_path"`
}

// Camera positions the map viewport.
type Camera struct {
	Center domain.GeoPosition `json:"center"`
	Zoom   int                `json:"zoom"`
}

// MapLoader asynchronously provides a map surface.
type MapLoader interface {
	Load(ctx context.Context) (MapSurface, error)
}

// MapSurface is the contract an interactive map must offer.
// Click callbacks may be invoked from any goroutine.
type MapSurface interface {
	CreateMarker(spec MarkerSpec) (MarkerHandle, error)
	UpdateMarker(h MarkerHandle, spec MarkerSpec) error
	DestroyMarker(h MarkerHandle) error

	CreateOverlay(content OverlayContent) (OverlayHandle, error)
	UpdateOverlay(h OverlayHandle, content OverlayContent) error
	OpenOverlay(h OverlayHandle, anchor MarkerHandle) error
	DestroyOverlay(h OverlayHandle) error

	OnMarkerClick(h MarkerHandle, fn func()) (ListenerHandle, error)
	RemoveListener(h ListenerHandle) error

	SetCamera(c Camera) error
	Detach() error
}

// FallbackRenderer presents the locatable set as a plain list when no map is available.
type FallbackRenderer interface {
	RenderFallback(locatables []domain.Locatable, user *domain.GeoPosition)
}

// ListRenderer presents the displayed result collection.
type ListRenderer interface {
	RenderList(active domain.EntityType, results []domain.Locatable)
}

// Notifier surfaces transient messages to the user.
type Notifier interface {
	Notify(n domain.Notification)
}

// Navigator receives navigation intents.
type Navigator interface {
	Navigate(intent domain.NavigationIntent)
}
