package explorer

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/facebookgo/clock"
	"github.com/stretchr/testify/require"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

const waitFor = 2 * time.Second

// --- search service ---

type reply struct {
	results []domain.Locatable
	err     error
}

type searchCall struct {
	query domain.SearchQuery
	reply chan reply
}

func (c *searchCall) respond(results ...domain.Locatable) { c.reply <- reply{results: results} }
func (c *searchCall) fail(err error)                      { c.reply <- reply{err: err} }

type fakeSearch struct {
	mu       sync.Mutex
	calls    []*searchCall
	facetsFn func(ctx context.Context) (domain.Facets, error)
}

func (f *fakeSearch) Search(ctx context.Context, q domain.SearchQuery) ([]domain.Locatable, error) {
	c := &searchCall{query: q, reply: make(chan reply, 1)}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	select {
	case r := <-c.reply:
		return r.results, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *fakeSearch) Facets(ctx context.Context) (domain.Facets, error) {
	if f.facetsFn != nil {
		return f.facetsFn(ctx)
	}
	return domain.Facets{}, nil
}

func (f *fakeSearch) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeSearch) call(i int) *searchCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[i]
}

// waitCalls blocks until exactly n searches have been issued.
func (f *fakeSearch) waitCalls(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return f.count() >= n }, waitFor, time.Millisecond)
	require.Equal(t, n, f.count())
}

// --- device ---

type fakeDevice struct {
	mu     sync.Mutex
	calls  int
	locate func(ctx context.Context) (domain.GeoPosition, error)
}

func (d *fakeDevice) Locate(ctx context.Context, _ ports.FixOptions) (domain.GeoPosition, error) {
	d.mu.Lock()
	d.calls++
	d.mu.Unlock()
	return d.locate(ctx)
}

func (d *fakeDevice) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// --- map surface ---

type fakeSurface struct {
	mu        sync.Mutex
	seq       int
	markers   map[ports.MarkerHandle]ports.MarkerSpec
	overlays  map[ports.OverlayHandle]ports.OverlayContent
	listeners map[ports.ListenerHandle]func()
	byMarker  map[ports.MarkerHandle]ports.ListenerHandle
	opened    []ports.OverlayHandle
	cameras   []ports.Camera
	detached  int
	created   int
	destroyed int
	updated   int
}

func newFakeSurface() *fakeSurface {
	return &fakeSurface{
		markers:   make(map[ports.MarkerHandle]ports.MarkerSpec),
		overlays:  make(map[ports.OverlayHandle]ports.OverlayContent),
		listeners: make(map[ports.ListenerHandle]func()),
		byMarker:  make(map[ports.MarkerHandle]ports.ListenerHandle),
	}
}

func (s *fakeSurface) next(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *fakeSurface) CreateMarker(spec ports.MarkerSpec) (ports.MarkerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := ports.MarkerHandle(s.next("m"))
	s.markers[h] = spec
	s.created++
	return h, nil
}

func (s *fakeSurface) UpdateMarker(h ports.MarkerHandle, spec ports.MarkerSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markers[h]; !ok {
		return fmt.Errorf("unknown marker %s", h)
	}
	s.markers[h] = spec
	s.updated++
	return nil
}

func (s *fakeSurface) DestroyMarker(h ports.MarkerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.markers, h)
	s.destroyed++
	return nil
}

func (s *fakeSurface) CreateOverlay(c ports.OverlayContent) (ports.OverlayHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := ports.OverlayHandle(s.next("o"))
	s.overlays[h] = c
	return h, nil
}

func (s *fakeSurface) UpdateOverlay(h ports.OverlayHandle, c ports.OverlayContent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overlays[h] = c
	return nil
}

func (s *fakeSurface) OpenOverlay(h ports.OverlayHandle, _ ports.MarkerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = append(s.opened, h)
	return nil
}

func (s *fakeSurface) DestroyOverlay(h ports.OverlayHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.overlays, h)
	return nil
}

func (s *fakeSurface) OnMarkerClick(h ports.MarkerHandle, fn func()) (ports.ListenerHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := ports.ListenerHandle(s.next("l"))
	s.listeners[l] = fn
	s.byMarker[h] = l
	return l, nil
}

func (s *fakeSurface) RemoveListener(h ports.ListenerHandle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, h)
	return nil
}

func (s *fakeSurface) SetCamera(c ports.Camera) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cameras = append(s.cameras, c)
	return nil
}

func (s *fakeSurface) Detach() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached++
	return nil
}

// click fires the listener of the marker titled title.
func (s *fakeSurface) click(title string) bool {
	s.mu.Lock()
	var fn func()
	for h, spec := range s.markers {
		if spec.Title == title {
			fn = s.listeners[s.byMarker[h]]
		}
	}
	s.mu.Unlock()
	if fn == nil {
		return false
	}
	fn()
	return true
}

func (s *fakeSurface) live() (markers, overlays, listeners int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.markers), len(s.overlays), len(s.listeners)
}

type fakeLoader struct {
	surface ports.MapSurface
	err     error
	gate    chan struct{}
}

func (l *fakeLoader) Load(ctx context.Context) (ports.MapSurface, error) {
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return l.surface, l.err
}

// --- sinks ---

type recorder struct {
	mu        sync.Mutex
	notes     []domain.Notification
	fallbacks [][]domain.Locatable
	lists     [][]domain.Locatable
	intents   []domain.NavigationIntent
}

func (r *recorder) Notify(n domain.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recorder) RenderFallback(l []domain.Locatable, _ *domain.GeoPosition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, l)
}

func (r *recorder) RenderList(_ domain.EntityType, l []domain.Locatable) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lists = append(r.lists, l)
}

func (r *recorder) Navigate(i domain.NavigationIntent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.intents = append(r.intents, i)
}

func (r *recorder) notifications() []domain.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.Notification(nil), r.notes...)
}

func (r *recorder) navigations() []domain.NavigationIntent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.NavigationIntent(nil), r.intents...)
}

func (r *recorder) fallbackCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fallbacks)
}

// --- fixtures ---

func item(id, name string, lat, lng float64) *domain.Item {
	return &domain.Item{ID: id, Name: name, Location: domain.GeoPosition{Lat: lat, Lng: lng}, Address: "1 Test St"}
}

func site(id, name string, lat, lng float64) *domain.Site {
	return &domain.Site{ID: id, Name: name, Location: domain.GeoPosition{Lat: lat, Lng: lng}, Address: "1 Test St"}
}

func withDistance(i *domain.Item, km float64) *domain.Item {
	cp := *i
	cp.DistanceKm = &km
	return &cp
}

func startLoop(t *testing.T) *Loop {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	loop := NewLoop(0)
	go loop.Run(ctx)
	t.Cleanup(func() {
		cancel()
		loop.Stop()
	})
	return loop
}

func onLoop(t *testing.T, loop *Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, loop.Do(ctx, fn))
}

func newMockClock() *clock.Mock {
	clk := clock.NewMock()
	clk.Add(time.Hour)
	return clk
}
