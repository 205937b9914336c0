package explorer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

type controllerHarness struct {
	loop   *Loop
	clock  *clock.Mock
	search *fakeSearch
	store  *ResultStore
	sink   *recorder
	ctrl   *Controller
}

func newControllerHarness(t *testing.T) *controllerHarness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &controllerHarness{
		loop:   startLoop(t),
		clock:  newMockClock(),
		search: &fakeSearch{},
		store:  NewResultStore(domain.EntityItems),
		sink:   &recorder{},
	}
	h.ctrl = NewController(ctx, h.loop, ControllerConfig{Session: "test"}, ControllerDeps{
		Clock:    h.clock,
		Search:   h.search,
		Store:    h.store,
		Notifier: h.sink,
	})
	return h
}

func (h *controllerHarness) do(t *testing.T, fn func()) {
	t.Helper()
	onLoop(t, h.loop, fn)
}

func (h *controllerHarness) change(t *testing.T, ch InputChange) {
	t.Helper()
	h.do(t, func() { h.ctrl.Change(ch) })
}

func (h *controllerHarness) waitStats(t *testing.T, cond func(Stats) bool) {
	t.Helper()
	require.Eventually(t, func() bool { return cond(h.ctrl.Stats()) }, waitFor, time.Millisecond)
}

func text(s string) *string { return &s }

func entity(t domain.EntityType) *domain.EntityType { return &t }

func TestController_DebounceDispatchesFinalStateOnce(t *testing.T) {
	h := newControllerHarness(t)

	h.change(t, InputChange{FreeText: text("t")})
	h.change(t, InputChange{FreeText: text("ta")})
	h.clock.Add(300 * time.Millisecond)
	h.change(t, InputChange{FreeText: text("tabby")})
	h.change(t, InputChange{Filters: &domain.FilterSet{Rating: domain.Between(3, 5)}})
	h.change(t, InputChange{Filters: &domain.FilterSet{Rating: domain.Between(4, 5), Friendly: domain.Yes}})

	h.do(t, func() { assert.Equal(t, StateDebouncing, h.ctrl.State()) })

	h.clock.Add(499 * time.Millisecond)
	h.do(t, func() {})
	assert.Equal(t, 0, h.search.count())

	h.clock.Add(time.Millisecond)
	h.search.waitCalls(t, 1)

	q := h.search.call(0).query
	assert.Equal(t, "tabby", q.FreeText)
	assert.Equal(t, domain.EntityItems, q.EntityType)
	assert.Equal(t, domain.AtLeast(4), q.Filters.Rating)
	assert.Equal(t, domain.Yes, q.Filters.Friendly)

	h.clock.Add(time.Second)
	h.do(t, func() {})
	assert.Equal(t, 1, h.search.count())
	assert.EqualValues(t, 1, h.ctrl.Stats().Dispatched)
}

func TestController_ImmediateTriggerCancelsDebounce(t *testing.T) {
	h := newControllerHarness(t)

	h.change(t, InputChange{FreeText: text("ginger")})
	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 1)
	assert.Equal(t, "ginger", h.search.call(0).query.FreeText)

	h.clock.Add(time.Second)
	h.do(t, func() { assert.Equal(t, StateInFlight, h.ctrl.State()) })
	assert.Equal(t, 1, h.search.count())
}

func TestController_EntityTypeSwitchIsImmediate(t *testing.T) {
	h := newControllerHarness(t)

	h.change(t, InputChange{EntityType: entity(domain.EntitySites)})
	h.search.waitCalls(t, 1)
	assert.Equal(t, domain.EntitySites, h.search.call(0).query.EntityType)
	assert.Equal(t, domain.EntitySites, h.store.Snapshot().Active)
}

func TestController_SupersededResponsesAreDropped(t *testing.T) {
	tests := []struct {
		name  string
		order []int
	}{
		{"newer first", []int{1, 0}},
		{"older first", []int{0, 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newControllerHarness(t)
			older := item("1", "Old", 40.7, -73.9)
			newer := item("2", "New", 40.7, -73.9)

			h.change(t, InputChange{FreeText: text("a")})
			h.do(t, h.ctrl.Submit)
			h.search.waitCalls(t, 1)
			h.change(t, InputChange{FreeText: text("b")})
			h.do(t, h.ctrl.Submit)
			h.search.waitCalls(t, 2)

			responses := []func(){
				func() { h.search.call(0).respond(older) },
				func() { h.search.call(1).respond(newer) },
			}
			for _, i := range tt.order {
				responses[i]()
			}

			h.waitStats(t, func(s Stats) bool { return s.Applied+s.Superseded == 2 })
			stats := h.ctrl.Stats()
			assert.LessOrEqual(t, stats.Superseded, uint64(1))
			items := h.store.Snapshot().Items
			require.Len(t, items, 1)
			assert.Equal(t, "2", items[0].Ref().ID)
			assert.Empty(t, h.sink.notifications())
		})
	}
}

func TestController_OlderResponseAfterNewerIsSuperseded(t *testing.T) {
	h := newControllerHarness(t)

	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 1)
	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 2)

	h.search.call(1).respond(item("2", "New", 0, 0))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })
	h.search.call(0).respond(item("1", "Old", 0, 0))
	h.waitStats(t, func(s Stats) bool { return s.Superseded == 1 })

	items := h.store.Snapshot().Items
	require.Len(t, items, 1)
	assert.Equal(t, "2", items[0].Ref().ID)
}

func TestController_FailureKeepsResultsAndNotifiesOnce(t *testing.T) {
	h := newControllerHarness(t)

	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 1)
	h.search.call(0).respond(item("1", "Mittens", 0, 0))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })
	before := h.store.Snapshot()

	h.change(t, InputChange{FreeText: text("x")})
	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 2)
	h.search.call(1).fail(errors.New("502 bad gateway"))
	h.waitStats(t, func(s Stats) bool { return s.Failed == 1 })

	after := h.store.Snapshot()
	assert.Equal(t, before.Version, after.Version)
	require.Len(t, after.Items, 1)
	assert.Equal(t, "1", after.Items[0].Ref().ID)

	notes := h.sink.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.CodeSearchFailed, notes[0].Code)
}

func TestController_SupersededFailureIsSilent(t *testing.T) {
	h := newControllerHarness(t)

	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 1)
	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 2)

	h.search.call(0).fail(errors.New("timeout"))
	h.waitStats(t, func(s Stats) bool { return s.Superseded == 1 })
	assert.Empty(t, h.sink.notifications())
	assert.EqualValues(t, 0, h.ctrl.Stats().Failed)
}

func TestController_InvalidRangeIsNeverSent(t *testing.T) {
	h := newControllerHarness(t)

	h.change(t, InputChange{Filters: &domain.FilterSet{Rating: domain.Between(4, 2)}})
	h.clock.Add(DefaultDebounce)
	h.do(t, func() {})

	assert.Equal(t, 0, h.search.count())
	notes := h.sink.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, domain.CodeInvalidFilter, notes[0].Code)
}

func TestController_UnchangedDeferredQueryIsSuppressed(t *testing.T) {
	h := newControllerHarness(t)

	h.change(t, InputChange{FreeText: text("calico")})
	h.clock.Add(DefaultDebounce)
	h.search.waitCalls(t, 1)
	h.search.call(0).respond()

	h.change(t, InputChange{FreeText: text("calico ")})
	h.clock.Add(DefaultDebounce)
	h.do(t, func() {})

	assert.Equal(t, 1, h.search.count())
	assert.EqualValues(t, 1, h.ctrl.Stats().Suppressed)
}

func TestController_PositionAcquiredDispatchesWithRadius(t *testing.T) {
	h := newControllerHarness(t)

	h.do(t, func() { h.ctrl.PositionAcquired(domain.GeoPosition{Lat: 40.75, Lng: -73.99}) })
	h.search.waitCalls(t, 1)

	q := h.search.call(0).query
	require.NotNil(t, q.Position)
	assert.Equal(t, 40.75, q.Position.Lat)
	assert.Equal(t, domain.DefaultRadiusKm, q.RadiusKm)
}

func TestController_PerTypeResultsAreIndependent(t *testing.T) {
	h := newControllerHarness(t)

	h.do(t, h.ctrl.Start)
	h.search.waitCalls(t, 1)
	h.search.call(0).respond(item("1", "Mittens", 0, 0))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 1 })

	h.change(t, InputChange{EntityType: entity(domain.EntitySites)})
	h.search.waitCalls(t, 2)
	h.search.call(1).respond(site("9", "Corner Deli", 0, 0))
	h.waitStats(t, func(s Stats) bool { return s.Applied == 2 })

	snap := h.store.Snapshot()
	require.Len(t, snap.Items, 1)
	require.Len(t, snap.Sites, 1)
	assert.Len(t, snap.Locatables(), 2)
	assert.Equal(t, "9", snap.Displayed()[0].Ref().ID)
}

func TestController_StopIgnoresLateResponses(t *testing.T) {
	h := newControllerHarness(t)

	h.do(t, h.ctrl.Submit)
	h.search.waitCalls(t, 1)
	h.change(t, InputChange{FreeText: text("late")})
	h.do(t, h.ctrl.Stop)

	h.search.call(0).respond(item("1", "Late", 0, 0))
	h.clock.Add(time.Second)
	h.do(t, func() {})
	h.do(t, func() {})

	assert.Empty(t, h.store.Snapshot().Items)
	assert.Equal(t, 1, h.search.count())
}
