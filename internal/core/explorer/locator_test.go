package explorer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

type locatorHarness struct {
	loop    *Loop
	device  *fakeDevice
	locator *Locator

	mu    sync.Mutex
	fixes []domain.GeoPosition
	errs  []error
}

func newLocatorHarness(t *testing.T, locate func(ctx context.Context) (domain.GeoPosition, error), cfg LocatorConfig) *locatorHarness {
	t.Helper()
	h := &locatorHarness{
		loop:   startLoop(t),
		device: &fakeDevice{locate: locate},
	}
	h.locator = NewLocator(h.loop, h.device, newMockClock(), cfg, nil)
	h.locator.OnFix(func(p domain.GeoPosition) {
		h.mu.Lock()
		h.fixes = append(h.fixes, p)
		h.mu.Unlock()
	})
	h.locator.OnError(func(err error) {
		h.mu.Lock()
		h.errs = append(h.errs, err)
		h.mu.Unlock()
	})
	return h
}

func (h *locatorHarness) outcomes() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.fixes), len(h.errs)
}

func (h *locatorHarness) request(t *testing.T, trigger Trigger) (started bool) {
	t.Helper()
	onLoop(t, h.loop, func() { started = h.locator.Request(context.Background(), trigger) })
	return started
}

func (h *locatorHarness) state(t *testing.T) (s domain.PermissionState) {
	t.Helper()
	onLoop(t, h.loop, func() { s = h.locator.State() })
	return s
}

var home = domain.GeoPosition{Lat: 40.7128, Lng: -74.0060}

func TestLocator_GrantedCachesFix(t *testing.T) {
	h := newLocatorHarness(t, func(context.Context) (domain.GeoPosition, error) { return home, nil }, LocatorConfig{})

	assert.Equal(t, domain.PermissionUnrequested, h.state(t))
	require.True(t, h.request(t, TriggerUser))
	require.Eventually(t, func() bool { f, _ := h.outcomes(); return f == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, domain.PermissionGranted, h.state(t))

	// Inside the freshness window the device is not asked again.
	require.True(t, h.request(t, TriggerRefresh))
	fixes, _ := h.outcomes()
	assert.Equal(t, 2, fixes)
	assert.Equal(t, 1, h.device.count())
}

func TestLocator_SecondRequestWhilePendingIsNoop(t *testing.T) {
	release := make(chan struct{})
	h := newLocatorHarness(t, func(ctx context.Context) (domain.GeoPosition, error) {
		<-release
		return home, nil
	}, LocatorConfig{})

	require.True(t, h.request(t, TriggerUser))
	assert.Equal(t, domain.PermissionPending, h.state(t))
	assert.False(t, h.request(t, TriggerUser))

	close(release)
	require.Eventually(t, func() bool { f, _ := h.outcomes(); return f == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, 1, h.device.count())
}

func TestLocator_DeniedIsSticky(t *testing.T) {
	h := newLocatorHarness(t, func(context.Context) (domain.GeoPosition, error) {
		return domain.GeoPosition{}, domain.ErrPermissionDenied
	}, LocatorConfig{})

	require.True(t, h.request(t, TriggerUser))
	require.Eventually(t, func() bool { _, e := h.outcomes(); return e == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, domain.PermissionDenied, h.state(t))

	assert.False(t, h.request(t, TriggerRefresh))
	assert.Equal(t, 1, h.device.count())
	assert.Equal(t, domain.PermissionDenied, h.state(t))

	require.True(t, h.request(t, TriggerUser))
	require.Eventually(t, func() bool { return h.device.count() == 2 }, waitFor, time.Millisecond)
}

func TestLocator_RefreshNeverPrompts(t *testing.T) {
	h := newLocatorHarness(t, func(context.Context) (domain.GeoPosition, error) { return home, nil }, LocatorConfig{})

	assert.False(t, h.request(t, TriggerRefresh))
	assert.Equal(t, 0, h.device.count())
	assert.Equal(t, domain.PermissionUnrequested, h.state(t))
}

func TestLocator_CallerTimeout(t *testing.T) {
	h := newLocatorHarness(t, func(ctx context.Context) (domain.GeoPosition, error) {
		<-ctx.Done()
		return domain.GeoPosition{}, ctx.Err()
	}, LocatorConfig{Fix: ports.FixOptions{Timeout: 20 * time.Millisecond}})

	require.True(t, h.request(t, TriggerUser))
	require.Eventually(t, func() bool { _, e := h.outcomes(); return e == 1 }, waitFor, time.Millisecond)

	h.mu.Lock()
	err := h.errs[0]
	h.mu.Unlock()
	assert.True(t, errors.Is(err, domain.ErrTimeout), "got %v", err)
	assert.Equal(t, domain.PermissionDenied, h.state(t))
}

func TestLocator_ErrorMessagesAreDistinct(t *testing.T) {
	errs := []error{
		domain.ErrPermissionDenied,
		domain.ErrPositionUnavailable,
		domain.ErrTimeout,
		domain.ErrUnsupported,
	}
	seen := make(map[string]bool)
	for _, err := range errs {
		msg := domain.LocationMessage(err)
		assert.NotEmpty(t, msg)
		assert.False(t, seen[msg], "duplicate message %q", msg)
		seen[msg] = true
	}
}

func TestLocator_NoDeviceIsUnsupported(t *testing.T) {
	loop := startLoop(t)
	l := NewLocator(loop, nil, newMockClock(), LocatorConfig{}, nil)
	var got error
	l.OnError(func(err error) { got = err })

	onLoop(t, loop, func() { l.Request(context.Background(), TriggerUser) })
	assert.ErrorIs(t, got, domain.ErrUnsupported)
}
