package explorer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
)

// Marker colors per kind.
const (
	ColorItem = "#FF3737"
	ColorSite = "#4FF5F0"
	ColorUser = "#3B82F6"
)

const (
	markerZIndex = 1000
	userZIndex   = 2000
	userTitle    = "Your Location"
)

// DefaultCamera centers on Midtown Manhattan.
var DefaultCamera = ports.Camera{
	Center: domain.GeoPosition{Lat: 40.7589, Lng: -73.9851},
	Zoom:   12,
}

// placeholderKeys are values shipped in sample env files.
var placeholderKeys = []string{
	"your_actual_google_maps_api_key_here",
	"your_google_maps_api_key_here",
	"temp_placeholder_key_for_development",
	"YOUR_API_KEY_HERE",
	"REPLACE_WITH_YOUR_API_KEY",
}

// IsMapsConfigured reports whether key looks like a real maps API key.
func IsMapsConfigured(key string) bool {
	key = strings.TrimSpace(key)
	if key == "" {
		return false
	}
	for _, p := range placeholderKeys {
		if strings.EqualFold(key, p) {
			return false
		}
	}
	return true
}

// SurfaceState is the lifecycle of the map surface.
type SurfaceState int

const (
	SurfaceUninitialized SurfaceState = iota
	SurfaceLoading
	SurfaceReady
	SurfaceFailed
)

func (s SurfaceState) String() string {
	switch s {
	case SurfaceLoading:
		return "loading"
	case SurfaceReady:
		return "ready"
	case SurfaceFailed:
		return "failed"
	}
	return "uninitialized"
}

// Ops counts surface operations issued by reconciliation.
type Ops struct {
	Created   uint64
	Updated   uint64
	Destroyed uint64
	Fallbacks uint64
}

type markerRecord struct {
	marker   ports.MarkerHandle
	overlay  ports.OverlayHandle
	listener ports.ListenerHandle
	spec     ports.MarkerSpec
	content  ports.OverlayContent
}

type syncCall struct {
	locatables []domain.Locatable
	user       *domain.GeoPosition
}

// MapSync keeps the markers of a map surface in step with a Locatable set
// by reconciliation. It exclusively owns every surface handle.
// All methods except Ops must be called on the loop.
type MapSync struct {
	loop     *Loop
	loader   ports.MapLoader
	fallback ports.FallbackRenderer
	notifier ports.Notifier
	onClick  func(domain.Ref)
	camera   ports.Camera
	logger   *slog.Logger

	state    SurfaceState
	surface  ports.MapSurface
	records  map[domain.Ref]*markerRecord
	user     *markerRecord
	pending  *syncCall
	disposed bool

	created, updated, destroyed, fallbacks atomic.Uint64
}

// MapSyncConfig configures a MapSync. OnClick receives the ref of a clicked marker.
type MapSyncConfig struct {
	Loader   ports.MapLoader
	Fallback ports.FallbackRenderer
	Notifier ports.Notifier
	OnClick  func(domain.Ref)
	Camera   ports.Camera
	Logger   *slog.Logger
}

func NewMapSync(loop *Loop, cfg MapSyncConfig) *MapSync {
	if cfg.Camera.Zoom == 0 {
		cfg.Camera = DefaultCamera
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &MapSync{
		loop:     loop,
		loader:   cfg.Loader,
		fallback: cfg.Fallback,
		notifier: cfg.Notifier,
		onClick:  cfg.OnClick,
		camera:   cfg.Camera,
		logger:   cfg.Logger,
		records:  make(map[domain.Ref]*markerRecord),
	}
}

// State returns the surface lifecycle state.
func (m *MapSync) State() SurfaceState { return m.state }

// Keys returns the refs that currently have a marker.
func (m *MapSync) Keys() []domain.Ref {
	keys := make([]domain.Ref, 0, len(m.records))
	for ref := range m.records {
		keys = append(keys, ref)
	}
	return keys
}

// HasUserMarker reports whether the user position marker is drawn.
func (m *MapSync) HasUserMarker() bool { return m.user != nil }

func (m *MapSync) Ops() Ops {
	return Ops{
		Created:   m.created.Load(),
		Updated:   m.updated.Load(),
		Destroyed: m.destroyed.Load(),
		Fallbacks: m.fallbacks.Load(),
	}
}

// Start loads the map surface. It is a no-op unless uninitialized; a failed
// surface is never retried.
func (m *MapSync) Start(ctx context.Context) {
	if m.state != SurfaceUninitialized || m.disposed {
		return
	}
	m.state = SurfaceLoading
	if m.loader == nil {
		m.loaded(nil, fmt.Errorf("%w: no map loader", domain.ErrMapUnavailable))
		return
	}
	go func() {
		surface, err := m.loader.Load(ctx)
		if !m.loop.Post(func() { m.loaded(surface, err) }) && surface != nil {
			_ = surface.Detach()
		}
	}()
}

func (m *MapSync) loaded(surface ports.MapSurface, err error) {
	if m.disposed {
		if surface != nil {
			_ = surface.Detach()
		}
		return
	}
	if err == nil && surface == nil {
		err = domain.ErrMapUnavailable
	}
	if err != nil {
		m.state = SurfaceFailed
		metrics.MapFallbacks.Inc()
		m.logger.Warn("map unavailable, using list fallback", "error", err)
		if m.notifier != nil {
			m.notifier.Notify(domain.Notification{
				Level:   domain.LevelInfo,
				Code:    domain.CodeMapFallback,
				Message: "The map is unavailable. Results are shown as a list.",
			})
		}
		if m.pending != nil {
			call := *m.pending
			m.pending = nil
			m.renderFallback(call)
		}
		return
	}

	m.state = SurfaceReady
	m.surface = surface
	cam := m.camera
	if m.pending != nil && m.pending.user != nil {
		cam.Center = *m.pending.user
	}
	if err := surface.SetCamera(cam); err != nil {
		m.logger.Warn("set camera", "error", err)
	}
	if m.pending != nil {
		call := *m.pending
		m.pending = nil
		m.reconcile(call)
	}
}

// Sync makes the drawn markers match locatables, plus a user marker when
// user is set. Before the surface is ready only the latest call is kept.
func (m *MapSync) Sync(locatables []domain.Locatable, user *domain.GeoPosition) {
	if m.disposed {
		return
	}
	call := syncCall{locatables: append([]domain.Locatable(nil), locatables...)}
	if user != nil {
		u := *user
		call.user = &u
	}
	switch m.state {
	case SurfaceUninitialized, SurfaceLoading:
		m.pending = &call
	case SurfaceFailed:
		m.renderFallback(call)
	case SurfaceReady:
		m.reconcile(call)
	}
}

// Dispose destroys every marker and detaches the surface. Later calls are no-ops.
func (m *MapSync) Dispose() {
	if m.disposed {
		return
	}
	m.disposed = true
	m.pending = nil
	if m.surface == nil {
		return
	}
	for ref, rec := range m.records {
		m.destroy(rec)
		delete(m.records, ref)
	}
	if m.user != nil {
		m.destroy(m.user)
		m.user = nil
	}
	if err := m.surface.Detach(); err != nil {
		m.logger.Warn("detach map", "error", err)
	}
	m.surface = nil
}

func (m *MapSync) renderFallback(call syncCall) {
	m.fallbacks.Add(1)
	if m.fallback != nil {
		m.fallback.RenderFallback(call.locatables, call.user)
	}
}

func (m *MapSync) reconcile(call syncCall) {
	target := make(map[domain.Ref]domain.Locatable, len(call.locatables))
	order := make([]domain.Ref, 0, len(call.locatables))
	for _, l := range call.locatables {
		ref := l.Ref()
		if _, dup := target[ref]; !dup {
			order = append(order, ref)
		}
		target[ref] = l
	}

	for ref, rec := range m.records {
		if _, ok := target[ref]; !ok {
			m.destroy(rec)
			delete(m.records, ref)
		}
	}

	for _, ref := range order {
		l := target[ref]
		spec, content := markerSpec(l), overlayContent(l)
		if rec, ok := m.records[ref]; ok {
			m.update(rec, spec, content)
			continue
		}
		if rec := m.create(ref, spec, content); rec != nil {
			m.records[ref] = rec
		}
	}

	m.syncUser(call.user)
}

func (m *MapSync) syncUser(pos *domain.GeoPosition) {
	if pos == nil {
		if m.user != nil {
			m.destroy(m.user)
			m.user = nil
		}
		return
	}
	spec := ports.MarkerSpec{
		Position: *pos,
		Title:    userTitle,
		Kind:     domain.KindUser,
		Color:    ColorUser,
		ZIndex:   userZIndex,
		Bounce:   true,
	}
	if m.user != nil {
		m.update(m.user, spec, m.user.content)
		return
	}
	h, err := m.surface.CreateMarker(spec)
	if err != nil {
		m.logger.Warn("create user marker", "error", err)
		return
	}
	m.created.Add(1)
	metrics.MarkerOps.WithLabelValues("create").Inc()
	m.user = &markerRecord{marker: h, spec: spec}
	if err := m.surface.SetCamera(ports.Camera{Center: *pos, Zoom: m.camera.Zoom}); err != nil {
		m.logger.Warn("set camera", "error", err)
	}
}

func (m *MapSync) create(ref domain.Ref, spec ports.MarkerSpec, content ports.OverlayContent) *markerRecord {
	marker, err := m.surface.CreateMarker(spec)
	if err != nil {
		m.logger.Warn("create marker", "ref", ref.String(), "error", err)
		return nil
	}
	rec := &markerRecord{marker: marker, spec: spec, content: content}
	if rec.overlay, err = m.surface.CreateOverlay(content); err != nil {
		m.logger.Warn("create overlay", "ref", ref.String(), "error", err)
		_ = m.surface.DestroyMarker(marker)
		return nil
	}
	rec.listener, err = m.surface.OnMarkerClick(marker, func() {
		m.loop.Post(func() { m.clicked(ref) })
	})
	if err != nil {
		m.logger.Warn("register click", "ref", ref.String(), "error", err)
		_ = m.surface.DestroyOverlay(rec.overlay)
		_ = m.surface.DestroyMarker(marker)
		return nil
	}
	m.created.Add(1)
	metrics.MarkerOps.WithLabelValues("create").Inc()
	return rec
}

func (m *MapSync) update(rec *markerRecord, spec ports.MarkerSpec, content ports.OverlayContent) {
	changed := false
	if spec != rec.spec {
		if err := m.surface.UpdateMarker(rec.marker, spec); err != nil {
			m.logger.Warn("update marker", "error", err)
		} else {
			rec.spec = spec
			changed = true
		}
	}
	if rec.overlay != "" && content != rec.content {
		if err := m.surface.UpdateOverlay(rec.overlay, content); err != nil {
			m.logger.Warn("update overlay", "error", err)
		} else {
			rec.content = content
			changed = true
		}
	}
	if changed {
		m.updated.Add(1)
		metrics.MarkerOps.WithLabelValues("update").Inc()
	}
}

func (m *MapSync) destroy(rec *markerRecord) {
	if rec.listener != "" {
		if err := m.surface.RemoveListener(rec.listener); err != nil {
			m.logger.Debug("remove listener", "error", err)
		}
	}
	if rec.overlay != "" {
		if err := m.surface.DestroyOverlay(rec.overlay); err != nil {
			m.logger.Debug("destroy overlay", "error", err)
		}
	}
	if err := m.surface.DestroyMarker(rec.marker); err != nil {
		m.logger.Debug("destroy marker", "error", err)
	}
	m.destroyed.Add(1)
	metrics.MarkerOps.WithLabelValues("destroy").Inc()
}

// clicked opens the overlay of ref and reports the click. A click queued
// before its marker was destroyed is ignored.
func (m *MapSync) clicked(ref domain.Ref) {
	rec, ok := m.records[ref]
	if !ok || m.surface == nil {
		return
	}
	if err := m.surface.OpenOverlay(rec.overlay, rec.marker); err != nil {
		m.logger.Warn("open overlay", "ref", ref.String(), "error", err)
	}
	if m.onClick != nil {
		m.onClick(ref)
	}
}

func markerSpec(l domain.Locatable) ports.MarkerSpec {
	ref := l.Ref()
	spec := ports.MarkerSpec{
		Position: l.Position(),
		Title:    l.Title(),
		Kind:     ref.Kind,
		Color:    ColorItem,
		ZIndex:   markerZIndex,
	}
	if ref.Kind == domain.KindSite {
		spec.Color = ColorSite
	}
	if d, ok := l.Distance(); ok {
		spec.Label = FormatDistance(d)
	}
	return spec
}

func overlayContent(l domain.Locatable) ports.OverlayContent {
	ref := l.Ref()
	c := ports.OverlayContent{
		Title:      l.Title(),
		DetailPath: ref.DetailPath(),
	}
	switch v := l.(type) {
	case *domain.Site:
		c.KindLabel = "Bodega"
		c.Address = v.Address
		c.Rating = v.Rating
	case *domain.Item:
		c.KindLabel = "Cat"
		c.Address = v.Address
		c.Rating = v.Rating
	default:
		c.KindLabel = string(ref.Kind)
	}
	if d, ok := l.Distance(); ok {
		c.Distance = FormatDistance(d)
	}
	return c
}

// FormatDistance renders a distance in km the way markers and lists show it.
func FormatDistance(km float64) string {
	if km < 1 {
		return fmt.Sprintf("%.0f m", km*1000)
	}
	return fmt.Sprintf("%.1f km", km)
}
