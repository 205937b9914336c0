package explorer

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

const disposeTimeout = 5 * time.Second

// Config tunes a session.
type Config struct {
	Debounce  time.Duration
	RadiusKm  float64
	Fix       ports.FixOptions
	Freshness time.Duration
	Camera    ports.Camera
	Initial   domain.EntityType
}

// Deps are the external collaborators of a session. Publisher is optional.
type Deps struct {
	Search    ports.SearchService
	Device    ports.DeviceLocator
	Maps      ports.MapLoader
	Fallback  ports.FallbackRenderer
	List      ports.ListRenderer
	Notifier  ports.Notifier
	Navigator ports.Navigator
	Publisher ports.EventPublisher
	Clock     clock.Clock
	Logger    *slog.Logger
}

// Session wires the explorer components for one host view and exposes the
// host-facing entry points. Entry points may be called from any goroutine.
type Session struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	loop   *Loop
	deps   Deps
	logger *slog.Logger

	locator    *Locator
	controller *Controller
	store      *ResultStore
	maps       *MapSync
	catalog    *Catalog

	started     atomic.Bool
	startOnce   sync.Once
	disposeOnce sync.Once
}

func NewSession(id string, cfg Config, deps Deps) *Session {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.Initial == "" {
		cfg.Initial = domain.EntityItems
	}
	logger := deps.Logger.With("session", id)
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(0)

	s := &Session{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		loop:   loop,
		deps:   deps,
		logger: logger,
		store:  NewResultStore(cfg.Initial),
	}
	s.catalog = NewCatalog(deps.Search)
	s.locator = NewLocator(loop, deps.Device, deps.Clock, LocatorConfig{
		Fix:       cfg.Fix,
		Freshness: cfg.Freshness,
	}, logger)
	s.controller = NewController(ctx, loop, ControllerConfig{
		Session:  id,
		Debounce: cfg.Debounce,
		RadiusKm: cfg.RadiusKm,
		Initial:  cfg.Initial,
	}, ControllerDeps{
		Clock:     deps.Clock,
		Search:    deps.Search,
		Store:     s.store,
		Notifier:  deps.Notifier,
		Publisher: deps.Publisher,
		Logger:    logger,
	})
	s.maps = NewMapSync(loop, MapSyncConfig{
		Loader:   deps.Maps,
		Fallback: deps.Fallback,
		Notifier: deps.Notifier,
		OnClick:  s.navigate,
		Camera:   cfg.Camera,
		Logger:   logger,
	})

	s.locator.OnFix(func(pos domain.GeoPosition) {
		s.maps.Sync(s.store.Snapshot().Locatables(), &pos)
		s.controller.PositionAcquired(pos)
	})
	s.locator.OnError(func(err error) {
		s.notify(domain.Notification{
			Level:   domain.LevelWarn,
			Code:    domain.CodeLocation,
			Message: domain.LocationMessage(err),
		})
	})
	s.store.Subscribe(func(snap Snapshot) {
		if deps.List != nil {
			deps.List.RenderList(snap.Active, snap.Displayed())
		}
		s.maps.Sync(snap.Locatables(), s.userPosition())
	})
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Start runs the loop, begins loading the map and issues the initial search.
func (s *Session) Start() {
	s.startOnce.Do(func() {
		s.started.Store(true)
		go func() {
			if err := s.loop.Run(s.ctx); err != nil && s.ctx.Err() == nil {
				s.logger.Error("session loop exited", "error", err)
			}
		}()
		s.loop.Post(func() {
			s.maps.Start(s.ctx)
			s.controller.Start()
		})
	})
}

// OnQueryChange applies a partial input edit.
func (s *Session) OnQueryChange(ch InputChange) {
	s.loop.Post(func() { s.controller.Change(ch) })
}

// OnExplicitSubmit searches now with the current input.
func (s *Session) OnExplicitSubmit() {
	s.loop.Post(s.controller.Submit)
}

// OnLocationRequested asks for the device position. It is a user action and
// may leave the denied state.
func (s *Session) OnLocationRequested() {
	s.loop.Post(func() { s.locator.Request(s.ctx, TriggerUser) })
}

// OnMarkerClicked emits a navigation intent for ref, used for list entries.
// Map marker clicks arrive through the surface listener instead.
func (s *Session) OnMarkerClicked(ref domain.Ref) {
	s.loop.Post(func() { s.navigate(ref) })
}

// Facets returns the filter catalog.
func (s *Session) Facets(ctx context.Context) (domain.Facets, error) {
	return s.catalog.Load(ctx)
}

// InvalidateFacets drops the cached filter catalog.
func (s *Session) InvalidateFacets() {
	s.catalog.Invalidate()
}

// Snapshot returns the current results.
func (s *Session) Snapshot() Snapshot {
	return s.store.Snapshot()
}

// Stats returns the search dispatch counters.
func (s *Session) Stats() Stats { return s.controller.Stats() }

// Ops returns the map operation counters.
func (s *Session) Ops() Ops { return s.maps.Ops() }

// Do runs fn on the session loop and waits for it.
func (s *Session) Do(ctx context.Context, fn func()) error {
	return s.loop.Do(ctx, fn)
}

// Dispose tears the session down. Only the first call has an effect.
func (s *Session) Dispose() {
	s.disposeOnce.Do(func() {
		teardown := func() {
			s.controller.Stop()
			s.maps.Dispose()
		}
		if s.started.Load() {
			ctx, cancel := context.WithTimeout(context.Background(), disposeTimeout)
			defer cancel()
			if err := s.loop.Do(ctx, teardown); err != nil {
				s.logger.Warn("dispose session", "error", err)
			}
		} else {
			teardown()
		}
		s.cancel()
		s.loop.Stop()
		s.logger.Debug("session disposed")
	})
}

// Done is closed once the session loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.loop.Done()
}

func (s *Session) navigate(ref domain.Ref) {
	intent := domain.NewNavigationIntent(ref)
	if s.deps.Navigator != nil {
		s.deps.Navigator.Navigate(intent)
	}
	if s.deps.Publisher != nil {
		go func() {
			if err := s.deps.Publisher.PublishNavigation(s.ctx, s.id, intent); err != nil {
				s.logger.Debug("publish navigation", "error", err)
			}
		}()
	}
}

func (s *Session) userPosition() *domain.GeoPosition {
	if pos, ok := s.locator.Position(); ok {
		return &pos
	}
	return nil
}

func (s *Session) notify(n domain.Notification) {
	if s.deps.Notifier != nil {
		s.deps.Notifier.Notify(n)
	}
}
