package explorer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/facebookgo/clock"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
)

// Default fix options.
const (
	DefaultFixTimeout = 10 * time.Second
	DefaultFixMaxAge  = 5 * time.Minute
	DefaultFreshness  = 5 * time.Minute
)

// Trigger says who asked for a position.
type Trigger int

const (
	// TriggerUser is an explicit user action. It is the only way out of
	// the unrequested and denied states.
	TriggerUser Trigger = iota
	// TriggerRefresh re-acquires a stale fix and only acts once permission is granted.
	TriggerRefresh
)

// LocatorConfig tunes position acquisition.
type LocatorConfig struct {
	Fix       ports.FixOptions
	Freshness time.Duration
}

func (c LocatorConfig) withDefaults() LocatorConfig {
	if c.Fix.Timeout <= 0 {
		c.Fix.Timeout = DefaultFixTimeout
	}
	if c.Fix.MaxAge <= 0 {
		c.Fix.MaxAge = DefaultFixMaxAge
	}
	if c.Freshness <= 0 {
		c.Freshness = DefaultFreshness
	}
	return c
}

// Locator acquires the user's position on request and caches the last fix.
// All methods must be called on the loop.
type Locator struct {
	loop   *Loop
	device ports.DeviceLocator
	clock  clock.Clock
	cfg    LocatorConfig
	logger *slog.Logger

	state   domain.PermissionState
	last    *domain.GeoPosition
	lastAt  time.Time
	onFix   []func(domain.GeoPosition)
	onError []func(error)
}

func NewLocator(loop *Loop, device ports.DeviceLocator, clk clock.Clock, cfg LocatorConfig, logger *slog.Logger) *Locator {
	if clk == nil {
		clk = clock.New()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{
		loop:   loop,
		device: device,
		clock:  clk,
		cfg:    cfg.withDefaults(),
		logger: logger,
		state:  domain.PermissionUnrequested,
	}
}

// State returns the permission state.
func (l *Locator) State() domain.PermissionState { return l.state }

// Position returns the last acquired fix, if any.
func (l *Locator) Position() (domain.GeoPosition, bool) {
	if l.last == nil {
		return domain.GeoPosition{}, false
	}
	return *l.last, true
}

// OnFix registers a callback for every acquired position.
func (l *Locator) OnFix(fn func(domain.GeoPosition)) { l.onFix = append(l.onFix, fn) }

// OnError registers a callback for failed acquisitions.
func (l *Locator) OnError(fn func(error)) { l.onError = append(l.onError, fn) }

// Request asks for a position. The outcome is delivered to the OnFix or
// OnError callbacks. A fresh cached fix is redelivered without touching the
// device. Request reports whether an outcome will be delivered; it returns
// false while a request is pending or when the trigger is not allowed to
// prompt the user.
func (l *Locator) Request(ctx context.Context, trigger Trigger) bool {
	switch l.state {
	case domain.PermissionPending:
		return false
	case domain.PermissionUnrequested, domain.PermissionDenied:
		if trigger != TriggerUser {
			return false
		}
	}

	if l.last != nil && l.clock.Now().Sub(l.lastAt) < l.cfg.Freshness {
		pos := *l.last
		l.logger.Debug("reusing cached position", "position", pos.String())
		for _, fn := range l.onFix {
			fn(pos)
		}
		return true
	}

	if l.device == nil {
		l.fail(domain.ErrUnsupported)
		return true
	}

	l.state = domain.PermissionPending
	opts := l.cfg.Fix
	go func() {
		fixCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
		pos, err := l.device.Locate(fixCtx, opts)
		if err == nil && !pos.Valid() {
			err = fmt.Errorf("%w: device returned %s", domain.ErrPositionUnavailable, pos)
		}
		if err != nil && errors.Is(fixCtx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w: no fix within %s", domain.ErrTimeout, opts.Timeout)
		}
		l.loop.Post(func() { l.resolve(pos, err) })
	}()
	return true
}

func (l *Locator) resolve(pos domain.GeoPosition, err error) {
	if l.state != domain.PermissionPending {
		return
	}
	if err != nil {
		l.fail(err)
		return
	}
	l.state = domain.PermissionGranted
	l.last = &pos
	l.lastAt = l.clock.Now()
	metrics.LocationOutcomes.WithLabelValues("granted").Inc()
	l.logger.Debug("position acquired", "position", pos.String())
	for _, fn := range l.onFix {
		fn(pos)
	}
}

func (l *Locator) fail(err error) {
	l.state = domain.PermissionDenied
	metrics.LocationOutcomes.WithLabelValues(locationOutcome(err)).Inc()
	l.logger.Info("position unavailable", "error", err)
	for _, fn := range l.onError {
		fn(err)
	}
}

func locationOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "denied"
	case errors.Is(err, domain.ErrTimeout):
		return "timeout"
	case errors.Is(err, domain.ErrUnsupported):
		return "unsupported"
	}
	return "unavailable"
}
