package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/explorer"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

var errClosed = errors.New("connection closed")

type fixOutcome struct {
	pos domain.GeoPosition
	err error
}

// Browser is the remote end of one session. It implements the device,
// map and presentation ports by exchanging frames with the page.
type Browser struct {
	out         *writer
	apiKey      string
	loadTimeout time.Duration
	logger      *slog.Logger

	mu        sync.Mutex
	seq       uint64
	closed    bool
	detached  bool
	fixes     map[string]chan fixOutcome
	load      chan error
	markers   map[ports.MarkerHandle]struct{}
	overlays  map[ports.OverlayHandle]struct{}
	listeners map[ports.ListenerHandle]listener
}

type listener struct {
	marker ports.MarkerHandle
	fn     func()
}

func newBrowser(out *writer, apiKey string, loadTimeout time.Duration, logger *slog.Logger) *Browser {
	if loadTimeout <= 0 {
		loadTimeout = DefaultMapLoadTimeout
	}
	return &Browser{
		out:         out,
		apiKey:      apiKey,
		loadTimeout: loadTimeout,
		logger:      logger,
		fixes:     make(map[string]chan fixOutcome),
		markers:   make(map[ports.MarkerHandle]struct{}),
		overlays:  make(map[ports.OverlayHandle]struct{}),
		listeners: make(map[ports.ListenerHandle]listener),
	}
}

func (b *Browser) next(prefix string) string {
	b.seq++
	return prefix + strconv.FormatUint(b.seq, 10)
}

// Locate asks the page for a fix and waits for the matching
// location.result or location.error frame.
func (b *Browser) Locate(ctx context.Context, opts ports.FixOptions) (domain.GeoPosition, error) {
	ch := make(chan fixOutcome, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return domain.GeoPosition{}, fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, errClosed)
	}
	id := b.next("fix")
	b.fixes[id] = ch
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.fixes, id)
		b.mu.Unlock()
	}()

	err := b.out.send(outLocationFix, fixRequest{
		ID:           id,
		TimeoutMs:    opts.Timeout.Milliseconds(),
		MaxAgeMs:     opts.MaxAge.Milliseconds(),
		HighAccuracy: opts.HighAccuracy,
	})
	if err != nil {
		return domain.GeoPosition{}, fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, err)
	}

	select {
	case r := <-ch:
		return r.pos, r.err
	case <-ctx.Done():
		return domain.GeoPosition{}, ctx.Err()
	}
}

func (b *Browser) resolveFix(id string, out fixOutcome) {
	b.mu.Lock()
	ch, ok := b.fixes[id]
	b.mu.Unlock()
	if !ok {
		b.logger.Debug("dropping location outcome for unknown request", "id", id)
		return
	}
	select {
	case ch <- out:
	default:
	}
}

// locationErr maps a browser geolocation error code to a domain error.
// Numeric codes follow the W3C GeolocationPositionError values.
func locationErr(code string) error {
	switch code {
	case "1", "permission_denied", "denied":
		return domain.ErrPermissionDenied
	case "3", "timeout":
		return domain.ErrTimeout
	case "unsupported":
		return domain.ErrUnsupported
	}
	return domain.ErrPositionUnavailable
}

// Load asks the page to load the map script. A missing or placeholder key
// fails without contacting the page. A page that answers with neither
// map.ready nor map.failed within loadTimeout is told to drop the map, and
// the session falls back to the list.
func (b *Browser) Load(ctx context.Context) (ports.MapSurface, error) {
	if !explorer.IsMapsConfigured(b.apiKey) {
		return nil, fmt.Errorf("%w: maps api key not configured", domain.ErrMapUnavailable)
	}
	ch := make(chan error, 1)
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, fmt.Errorf("%w: %v", domain.ErrMapUnavailable, errClosed)
	}
	b.load = ch
	b.mu.Unlock()

	if err := b.out.send(outMapLoad, map[string]string{"api_key": b.apiKey}); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMapUnavailable, err)
	}
	timer := time.NewTimer(b.loadTimeout)
	defer timer.Stop()
	select {
	case err := <-ch:
		if err != nil {
			return nil, err
		}
		return b, nil
	case <-timer.C:
		b.abandonLoad(ch)
		b.emit(outMapDetach, nil)
		return nil, fmt.Errorf("%w: no answer to map.load after %s", domain.ErrMapUnavailable, b.loadTimeout)
	case <-ctx.Done():
		b.abandonLoad(ch)
		return nil, fmt.Errorf("%w: %v", domain.ErrMapUnavailable, ctx.Err())
	}
}

// abandonLoad forgets ch so a late map.ready is ignored.
func (b *Browser) abandonLoad(ch chan error) {
	b.mu.Lock()
	if b.load == ch {
		b.load = nil
	}
	b.mu.Unlock()
}

func (b *Browser) resolveLoad(err error) {
	b.mu.Lock()
	ch := b.load
	b.load = nil
	b.mu.Unlock()
	if ch == nil {
		return
	}
	ch <- err
}

func (b *Browser) CreateMarker(spec ports.MarkerSpec) (ports.MarkerHandle, error) {
	b.mu.Lock()
	if err := b.usable(); err != nil {
		b.mu.Unlock()
		return "", err
	}
	h := ports.MarkerHandle(b.next("m"))
	b.markers[h] = struct{}{}
	b.mu.Unlock()
	return h, b.out.send(outMarkerCreate, markerFrame{Handle: h, Spec: &spec})
}

func (b *Browser) UpdateMarker(h ports.MarkerHandle, spec ports.MarkerSpec) error {
	if err := b.hasMarker(h); err != nil {
		return err
	}
	return b.out.send(outMarkerUpdate, markerFrame{Handle: h, Spec: &spec})
}

func (b *Browser) DestroyMarker(h ports.MarkerHandle) error {
	b.mu.Lock()
	if _, ok := b.markers[h]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown marker %q", h)
	}
	delete(b.markers, h)
	for lh, l := range b.listeners {
		if l.marker == h {
			delete(b.listeners, lh)
		}
	}
	b.mu.Unlock()
	return b.out.send(outMarkerDestroy, markerFrame{Handle: h})
}

func (b *Browser) CreateOverlay(content ports.OverlayContent) (ports.OverlayHandle, error) {
	b.mu.Lock()
	if err := b.usable(); err != nil {
		b.mu.Unlock()
		return "", err
	}
	h := ports.OverlayHandle(b.next("o"))
	b.overlays[h] = struct{}{}
	b.mu.Unlock()
	return h, b.out.send(outOverlayCreate, overlayFrame{Handle: h, Content: &content})
}

func (b *Browser) UpdateOverlay(h ports.OverlayHandle, content ports.OverlayContent) error {
	if err := b.hasOverlay(h); err != nil {
		return err
	}
	return b.out.send(outOverlayUpdate, overlayFrame{Handle: h, Content: &content})
}

func (b *Browser) OpenOverlay(h ports.OverlayHandle, anchor ports.MarkerHandle) error {
	if err := b.hasOverlay(h); err != nil {
		return err
	}
	return b.out.send(outOverlayOpen, overlayFrame{Handle: h, Anchor: anchor})
}

func (b *Browser) DestroyOverlay(h ports.OverlayHandle) error {
	b.mu.Lock()
	if _, ok := b.overlays[h]; !ok {
		b.mu.Unlock()
		return fmt.Errorf("unknown overlay %q", h)
	}
	delete(b.overlays, h)
	b.mu.Unlock()
	return b.out.send(outOverlayDestroy, overlayFrame{Handle: h})
}

// OnMarkerClick registers fn for marker.click frames naming h. Listeners
// live on the server; the page reports every marker click.
func (b *Browser) OnMarkerClick(h ports.MarkerHandle, fn func()) (ports.ListenerHandle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.markers[h]; !ok {
		return "", fmt.Errorf("unknown marker %q", h)
	}
	lh := ports.ListenerHandle(b.next("l"))
	b.listeners[lh] = listener{marker: h, fn: fn}
	return lh, nil
}

func (b *Browser) RemoveListener(h ports.ListenerHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.listeners[h]; !ok {
		return fmt.Errorf("unknown listener %q", h)
	}
	delete(b.listeners, h)
	return nil
}

func (b *Browser) SetCamera(c ports.Camera) error {
	b.mu.Lock()
	err := b.usable()
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return b.out.send(outMapCamera, c)
}

func (b *Browser) Detach() error {
	b.mu.Lock()
	if b.detached {
		b.mu.Unlock()
		return nil
	}
	b.detached = true
	clear(b.markers)
	clear(b.overlays)
	clear(b.listeners)
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return nil
	}
	return b.out.send(outMapDetach, nil)
}

func (b *Browser) clicked(h ports.MarkerHandle) {
	b.mu.Lock()
	var fns []func()
	for _, l := range b.listeners {
		if l.marker == h {
			fns = append(fns, l.fn)
		}
	}
	b.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

func (b *Browser) RenderFallback(locatables []domain.Locatable, user *domain.GeoPosition) {
	b.emit(outFallback, fallbackFrame{Locatables: entries(locatables), User: user})
}

func (b *Browser) RenderList(active domain.EntityType, results []domain.Locatable) {
	b.emit(outResults, resultsFrame{Active: active, Results: entries(results)})
}

func (b *Browser) Notify(n domain.Notification) {
	b.emit(outNotify, n)
}

func (b *Browser) Navigate(intent domain.NavigationIntent) {
	b.emit(outNavigate, navigateFrame{Kind: intent.Ref.Kind, ID: intent.Ref.ID, Path: intent.Path})
}

// emit sends a frame for ports that cannot report errors.
func (b *Browser) emit(typ string, data any) {
	if err := b.out.send(typ, data); err != nil {
		b.logger.Debug("send frame", "type", typ, "error", err)
	}
}

// close fails every outstanding request. Later requests fail immediately.
func (b *Browser) close() {
	b.mu.Lock()
	b.closed = true
	fixes := b.fixes
	b.fixes = make(map[string]chan fixOutcome)
	b.mu.Unlock()

	for _, ch := range fixes {
		select {
		case ch <- fixOutcome{err: fmt.Errorf("%w: %v", domain.ErrPositionUnavailable, errClosed)}:
		default:
		}
	}
	b.resolveLoad(fmt.Errorf("%w: %v", domain.ErrMapUnavailable, errClosed))
}

func (b *Browser) usable() error {
	if b.detached || b.closed {
		return fmt.Errorf("%w: surface detached", domain.ErrMapUnavailable)
	}
	return nil
}

func (b *Browser) hasMarker(h ports.MarkerHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.markers[h]; !ok {
		return fmt.Errorf("unknown marker %q", h)
	}
	return nil
}

func (b *Browser) hasOverlay(h ports.OverlayHandle) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.overlays[h]; !ok {
		return fmt.Errorf("unknown overlay %q", h)
	}
	return nil
}
