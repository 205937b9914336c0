package explorer

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
)

// DefaultDebounce is the settle time of deferred triggers.
const DefaultDebounce = 500 * time.Millisecond

// State of the search controller.
type State int

const (
	StateIdle State = iota
	StateDebouncing
	StateInFlight
	StateInFlightDebouncing
)

func (s State) String() string {
	switch s {
	case StateDebouncing:
		return "debouncing"
	case StateInFlight:
		return "in_flight"
	case StateInFlightDebouncing:
		return "in_flight+debouncing"
	}
	return "idle"
}

// InputChange is a partial edit of the user's input. Nil fields are unchanged.
// Filters apply to the entity type that is active after the change.
type InputChange struct {
	FreeText   *string
	EntityType *domain.EntityType
	Filters    *domain.FilterSet
}

// Stats counts dispatch outcomes. Safe to read from any goroutine.
type Stats struct {
	Dispatched uint64
	Suppressed uint64
	Applied    uint64
	Superseded uint64
	Failed     uint64
}

type counters struct {
	dispatched, suppressed, applied, superseded, failed atomic.Uint64
}

// ControllerConfig tunes the search controller.
type ControllerConfig struct {
	Session  string
	Debounce time.Duration
	RadiusKm float64
	Initial  domain.EntityType
}

// Controller turns user input into debounced, superseding searches and
// writes resolved results into a ResultStore. A response is applied only if
// its token is still the latest dispatched for its entity type.
// All methods except Stats must be called on the loop.
type Controller struct {
	ctx       context.Context
	cfg       ControllerConfig
	loop      *Loop
	clock     clock.Clock
	search    ports.SearchService
	store     *ResultStore
	notifier  ports.Notifier
	publisher ports.EventPublisher
	logger    *slog.Logger

	text     string
	active   domain.EntityType
	filters  map[domain.EntityType]domain.FilterSet
	position *domain.GeoPosition

	timer *clock.Timer
	gen   uint64

	token     uint64
	latest    map[domain.EntityType]uint64
	lastQuery map[domain.EntityType]domain.SearchQuery
	inFlight  map[uint64]struct{}
	stopped   bool

	stats counters
}

// ControllerDeps are the collaborators of a Controller. Publisher is optional.
type ControllerDeps struct {
	Clock     clock.Clock
	Search    ports.SearchService
	Store     *ResultStore
	Notifier  ports.Notifier
	Publisher ports.EventPublisher
	Logger    *slog.Logger
}

func NewController(ctx context.Context, loop *Loop, cfg ControllerConfig, deps ControllerDeps) *Controller {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = domain.DefaultRadiusKm
	}
	if cfg.Initial == "" {
		cfg.Initial = domain.EntityItems
	}
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Store == nil {
		deps.Store = NewResultStore(cfg.Initial)
	}
	return &Controller{
		ctx:       ctx,
		cfg:       cfg,
		loop:      loop,
		clock:     deps.Clock,
		search:    deps.Search,
		store:     deps.Store,
		notifier:  deps.Notifier,
		publisher: deps.Publisher,
		logger:    deps.Logger,
		active:    cfg.Initial,
		filters:   make(map[domain.EntityType]domain.FilterSet),
		latest:    make(map[domain.EntityType]uint64),
		lastQuery: make(map[domain.EntityType]domain.SearchQuery),
		inFlight:  make(map[uint64]struct{}),
	}
}

// Start runs the initial search of the active entity type.
func (c *Controller) Start() {
	c.store.SetActive(c.active)
	c.dispatchNow()
}

// Change applies a partial edit. An entity type switch dispatches
// immediately; text and filter edits restart the settle timer.
func (c *Controller) Change(ch InputChange) {
	if c.stopped {
		return
	}
	switched, deferred := false, false
	if ch.EntityType != nil && *ch.EntityType != c.active {
		if _, err := domain.ParseEntityType(string(*ch.EntityType)); err != nil {
			c.logger.Warn("ignoring entity type", "error", err)
		} else {
			c.active = *ch.EntityType
			c.store.SetActive(c.active)
			switched = true
		}
	}
	if ch.FreeText != nil && *ch.FreeText != c.text {
		c.text = *ch.FreeText
		deferred = true
	}
	if ch.Filters != nil && *ch.Filters != c.filters[c.active] {
		c.filters[c.active] = *ch.Filters
		deferred = true
	}

	switch {
	case switched:
		c.dispatchNow()
	case deferred:
		c.restartTimer()
	}
}

// Submit dispatches the current input now.
func (c *Controller) Submit() {
	if c.stopped {
		return
	}
	c.dispatchNow()
}

// PositionAcquired records a new fix and dispatches now.
func (c *Controller) PositionAcquired(pos domain.GeoPosition) {
	if c.stopped {
		return
	}
	c.position = &pos
	c.dispatchNow()
}

// Stop cancels the settle timer. Responses arriving afterwards are ignored.
func (c *Controller) Stop() {
	c.cancelTimer()
	c.stopped = true
}

// Active returns the displayed entity type.
func (c *Controller) Active() domain.EntityType { return c.active }

// State reports the controller state.
func (c *Controller) State() State {
	debouncing := c.timer != nil
	switch {
	case len(c.inFlight) > 0 && debouncing:
		return StateInFlightDebouncing
	case len(c.inFlight) > 0:
		return StateInFlight
	case debouncing:
		return StateDebouncing
	}
	return StateIdle
}

func (c *Controller) Stats() Stats {
	return Stats{
		Dispatched: c.stats.dispatched.Load(),
		Suppressed: c.stats.suppressed.Load(),
		Applied:    c.stats.applied.Load(),
		Superseded: c.stats.superseded.Load(),
		Failed:     c.stats.failed.Load(),
	}
}

func (c *Controller) input() Input {
	return Input{
		FreeText:   c.text,
		EntityType: c.active,
		Filters:    c.filters[c.active],
		Position:   c.position,
		RadiusKm:   c.cfg.RadiusKm,
	}
}

// cancelTimer invalidates the pending expiry even if its callback already
// fired and is queued on the loop.
func (c *Controller) cancelTimer() {
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) restartTimer() {
	c.cancelTimer()
	gen := c.gen
	c.timer = c.clock.AfterFunc(c.cfg.Debounce, func() {
		c.loop.Post(func() { c.expire(gen) })
	})
}

func (c *Controller) expire(gen uint64) {
	if gen != c.gen || c.stopped {
		return
	}
	c.timer = nil
	c.dispatch(false)
}

func (c *Controller) dispatchNow() {
	c.cancelTimer()
	c.dispatch(true)
}

func (c *Controller) dispatch(immediate bool) {
	q, err := Compose(c.input())
	if err != nil {
		c.logger.Info("query rejected", "error", err)
		c.notify(domain.Notification{
			Level:   domain.LevelWarn,
			Code:    domain.CodeInvalidFilter,
			Message: "Some filters are invalid. Please check the selected ranges.",
		})
		return
	}

	t := q.EntityType
	if !immediate {
		if last, ok := c.lastQuery[t]; ok && last.Equal(q) {
			c.stats.suppressed.Add(1)
			c.logger.Debug("query unchanged, not dispatching", "entity_type", t)
			return
		}
	}

	c.token++
	token := c.token
	c.latest[t] = token
	c.lastQuery[t] = q
	c.inFlight[token] = struct{}{}
	c.stats.dispatched.Add(1)
	metrics.ExplorerDispatched.WithLabelValues(string(t)).Inc()
	c.logger.Debug("dispatching search", "token", token, "entity_type", t, "params", q.Params().Encode())

	if c.publisher != nil {
		event := &domain.SearchExecuted{
			Session:    c.cfg.Session,
			Token:      token,
			EntityType: t,
			Query:      q,
			Time:       c.clock.Now(),
		}
		go func() {
			if err := c.publisher.PublishSearchExecuted(c.ctx, event); err != nil {
				c.logger.Debug("publish search event", "error", err)
			}
		}()
	}

	start := c.clock.Now()
	go func() {
		results, err := c.search.Search(c.ctx, q)
		metrics.ExplorerSearchLatency.WithLabelValues(string(t)).Observe(c.clock.Now().Sub(start).Seconds())
		c.loop.Post(func() { c.resolve(token, t, results, err) })
	}()
}

func (c *Controller) resolve(token uint64, t domain.EntityType, results []domain.Locatable, err error) {
	delete(c.inFlight, token)
	if c.stopped {
		return
	}
	if c.latest[t] != token {
		c.stats.superseded.Add(1)
		metrics.ExplorerOutcomes.WithLabelValues(string(t), "superseded").Inc()
		return
	}
	if err != nil {
		if errors.Is(err, context.Canceled) && c.ctx.Err() != nil {
			return
		}
		c.stats.failed.Add(1)
		metrics.ExplorerOutcomes.WithLabelValues(string(t), "failed").Inc()
		// A later deferred edit back to the same query must retry.
		delete(c.lastQuery, t)
		c.logger.Warn("search failed", "token", token, "entity_type", t, "error", err)
		c.notify(domain.Notification{
			Level:   domain.LevelError,
			Code:    domain.CodeSearchFailed,
			Message: "Search is temporarily unavailable. Showing the last results.",
		})
		return
	}
	c.stats.applied.Add(1)
	metrics.ExplorerOutcomes.WithLabelValues(string(t), "applied").Inc()
	c.store.Replace(t, results)
}

func (c *Controller) notify(n domain.Notification) {
	if c.notifier != nil {
		c.notifier.Notify(n)
	}
}
