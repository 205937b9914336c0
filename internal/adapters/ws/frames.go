// Package ws hosts explorer sessions for browsers connected over a WebSocket.
// The browser owns the device and the map; the session drives both through
// JSON frames of the form {"type": "...", "data": {...}}.
package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/gofiber/websocket/v2"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

// Inbound frame types.
const (
	inQueryChange     = "query.change"
	inQuerySubmit     = "query.submit"
	inLocationRequest = "location.request"
	inLocationResult  = "location.result"
	inLocationError   = "location.error"
	inMapReady        = "map.ready"
	inMapFailed       = "map.failed"
	inMarkerClick     = "marker.click"
	inResultClick     = "result.click"
	inFacetsRequest   = "facets.request"
)

// Outbound frame types.
const (
	outSession        = "session"
	outLocationFix    = "location.fix"
	outMapLoad        = "map.load"
	outMapCamera      = "map.camera"
	outMapDetach      = "map.detach"
	outMarkerCreate   = "marker.create"
	outMarkerUpdate   = "marker.update"
	outMarkerDestroy  = "marker.destroy"
	outOverlayCreate  = "overlay.create"
	outOverlayUpdate  = "overlay.update"
	outOverlayOpen    = "overlay.open"
	outOverlayDestroy = "overlay.destroy"
	outResults        = "results"
	outFallback       = "fallback.render"
	outNotify         = "notify"
	outNavigate       = "navigate"
	outFacets         = "facets"
	outError          = "error"
)

// Conn is the part of a WebSocket connection the host needs.
// *websocket.Conn satisfies it.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// writer serializes frame writes; the connection allows one writer at a time.
type writer struct {
	mu   sync.Mutex
	conn Conn
}

func (w *writer) send(typ string, data any) error {
	b, err := json.Marshal(frame{Type: typ, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

func (w *writer) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn.WriteMessage(websocket.PingMessage, nil)
}

type queryChange struct {
	Text       *string           `json:"text"`
	EntityType *string           `json:"entity_type"`
	Filters    *domain.FilterSet `json:"filters"`
}

type locationResult struct {
	ID  string  `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type locationError struct {
	ID   string `json:"id"`
	Code string `json:"code"`
}

type mapFailed struct {
	Reason string `json:"reason"`
}

type handleRef struct {
	Handle string `json:"handle"`
}

type fixRequest struct {
	ID           string `json:"id"`
	TimeoutMs    int64  `json:"timeout_ms"`
	MaxAgeMs     int64  `json:"max_age_ms"`
	HighAccuracy bool   `json:"high_accuracy"`
}

type markerFrame struct {
	Handle ports.MarkerHandle `json:"handle"`
	Spec   *ports.MarkerSpec  `json:"spec,omitempty"`
}

type overlayFrame struct {
	Handle  ports.OverlayHandle   `json:"handle"`
	Content *ports.OverlayContent `json:"content,omitempty"`
	Anchor  ports.MarkerHandle    `json:"anchor,omitempty"`
}

// entry is the wire form of a locatable.
type entry struct {
	Kind     domain.Kind        `json:"kind"`
	ID       string             `json:"id"`
	Title    string             `json:"title"`
	Position domain.GeoPosition `json:"position"`
	Distance *float64           `json:"distance,omitempty"`
	Path     string             `json:"path"`
}

func entries(ls []domain.Locatable) []entry {
	out := make([]entry, 0, len(ls))
	for _, l := range ls {
		ref := l.Ref()
		e := entry{Kind: ref.Kind, ID: ref.ID, Title: l.Title(), Position: l.Position(), Path: ref.DetailPath()}
		if d, ok := l.Distance(); ok {
			e.Distance = &d
		}
		out = append(out, e)
	}
	return out
}

type resultsFrame struct {
	Active  domain.EntityType `json:"active"`
	Results []entry           `json:"results"`
}

type fallbackFrame struct {
	Locatables []entry             `json:"locatables"`
	User       *domain.GeoPosition `json:"user,omitempty"`
}

type navigateFrame struct {
	Kind domain.Kind `json:"kind"`
	ID   string      `json:"id"`
	Path string      `json:"path"`
}
