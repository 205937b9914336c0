package ws

import (
	"context"
	"encoding/json"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/explorer"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/logging"
)

var midtown = domain.GeoPosition{Lat: 40.7590, Lng: -73.9850}

// fakeConn is an in-memory WebSocket: tests push inbound frames and
// inspect every outbound text frame.
type fakeConn struct {
	in     chan []byte
	closed chan struct{}
	once   sync.Once

	mu     sync.Mutex
	frames []gjson.Result
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 16), closed: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case m := <-c.in:
		return websocket.TextMessage, m, nil
	case <-c.closed:
		return 0, nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(t int, b []byte) error {
	select {
	case <-c.closed:
		return io.ErrClosedPipe
	default:
	}
	if t == websocket.TextMessage {
		c.mu.Lock()
		c.frames = append(c.frames, gjson.ParseBytes(b))
		c.mu.Unlock()
	}
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, typ string, data any) {
	t.Helper()
	b, err := json.Marshal(frame{Type: typ, Data: data})
	require.NoError(t, err)
	c.in <- b
}

// await returns the data of the first outbound frame of type typ that satisfies match.
func (c *fakeConn) await(t *testing.T, typ string, match func(gjson.Result) bool) gjson.Result {
	t.Helper()
	var found gjson.Result
	require.Eventually(t, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		for _, f := range c.frames {
			if f.Get("type").String() != typ {
				continue
			}
			if match == nil || match(f.Get("data")) {
				found = f.Get("data")
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond, "no %s frame", typ)
	return found
}

func (c *fakeConn) count(typ string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, f := range c.frames {
		if f.Get("type").String() == typ {
			n++
		}
	}
	return n
}

type fakeSearch struct {
	mu      sync.Mutex
	queries []domain.SearchQuery
	facets  int
}

func (f *fakeSearch) Search(_ context.Context, q domain.SearchQuery) ([]domain.Locatable, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	if q.EntityType == domain.EntitySites {
		return []domain.Locatable{&domain.Site{ID: "b1", Name: "Midtown Deli", Location: midtown}}, nil
	}
	return []domain.Locatable{&domain.Item{ID: "c1", Name: "Mango", SiteID: "b1", Location: midtown}}, nil
}

func (f *fakeSearch) Facets(context.Context) (domain.Facets, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.facets++
	return domain.Facets{Categories: []string{"Orange Tabby"}, Tags: []string{}}, nil
}

func (f *fakeSearch) positioned() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, q := range f.queries {
		if q.Position != nil {
			return true
		}
	}
	return false
}

func (f *fakeSearch) facetCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.facets
}

func startHost(t *testing.T, apiKey string) (*Host, *fakeConn, *fakeSearch) {
	t.Helper()
	return startHostWith(t, HostConfig{MapsAPIKey: apiKey})
}

func startHostWith(t *testing.T, cfg HostConfig) (*Host, *fakeConn, *fakeSearch) {
	t.Helper()
	search := &fakeSearch{}
	cfg.Session = explorer.Config{
		Debounce: 10 * time.Millisecond,
		RadiusKm: 5,
		Fix:      ports.FixOptions{Timeout: time.Second},
		Camera:   explorer.DefaultCamera,
	}
	h := NewHost(cfg, search, nil, logging.Discard())

	conn := newFakeConn()
	served := make(chan struct{})
	go func() {
		h.Serve(conn)
		close(served)
	}()
	t.Cleanup(func() {
		_ = conn.Close()
		select {
		case <-served:
		case <-time.After(2 * time.Second):
			t.Error("Serve did not return")
		}
	})
	conn.await(t, outSession, nil)
	return h, conn, search
}

func TestServe_NoMapKeyFallsBackToList(t *testing.T) {
	_, conn, _ := startHost(t, "")

	results := conn.await(t, outResults, func(d gjson.Result) bool { return len(d.Get("results").Array()) > 0 })
	assert.Equal(t, "items", results.Get("active").String())
	assert.Equal(t, "/item/c1", results.Get("results.0.path").String())

	conn.await(t, outNotify, func(d gjson.Result) bool { return d.Get("code").String() == domain.CodeMapFallback })
	conn.await(t, outFallback, func(d gjson.Result) bool { return len(d.Get("locatables").Array()) > 0 })
	assert.Zero(t, conn.count(outMapLoad), "placeholder keys never reach the page")
}

func TestServe_LocationRoundTrip(t *testing.T) {
	_, conn, search := startHost(t, "")

	conn.push(t, inLocationRequest, nil)
	fix := conn.await(t, outLocationFix, nil)
	assert.Equal(t, int64(1000), fix.Get("timeout_ms").Int())

	conn.push(t, inLocationResult, locationResult{ID: fix.Get("id").String(), Lat: midtown.Lat, Lng: midtown.Lng})
	require.Eventually(t, search.positioned, 2*time.Second, 5*time.Millisecond)
	conn.await(t, outFallback, func(d gjson.Result) bool { return d.Get("user").Exists() })
}

func TestServe_LocationDenied(t *testing.T) {
	_, conn, _ := startHost(t, "")

	conn.push(t, inLocationRequest, nil)
	fix := conn.await(t, outLocationFix, nil)
	conn.in <- []byte(`{"type":"location.error","data":{"id":"` + fix.Get("id").String() + `","code":1}}`)

	n := conn.await(t, outNotify, func(d gjson.Result) bool { return d.Get("code").String() == domain.CodeLocation })
	assert.Equal(t, domain.LocationMessage(domain.ErrPermissionDenied), n.Get("message").String())
}

func TestServe_MapMarkersAndClicks(t *testing.T) {
	_, conn, _ := startHost(t, "AIza-real-key")

	load := conn.await(t, outMapLoad, nil)
	assert.Equal(t, "AIza-real-key", load.Get("api_key").String())
	conn.push(t, inMapReady, nil)

	conn.await(t, outMapCamera, nil)
	marker := conn.await(t, outMarkerCreate, func(d gjson.Result) bool { return d.Get("spec.kind").String() == "item" })
	conn.push(t, inMarkerClick, handleRef{Handle: marker.Get("handle").String()})

	nav := conn.await(t, outNavigate, nil)
	assert.Equal(t, "item", nav.Get("kind").String())
	assert.Equal(t, "c1", nav.Get("id").String())
	assert.Equal(t, "/item/c1", nav.Get("path").String())
}

func TestServe_MapFailedRendersFallback(t *testing.T) {
	_, conn, _ := startHost(t, "AIza-real-key")

	conn.await(t, outMapLoad, nil)
	conn.push(t, inMapFailed, mapFailed{Reason: "script blocked"})
	conn.await(t, outNotify, func(d gjson.Result) bool { return d.Get("code").String() == domain.CodeMapFallback })
	conn.await(t, outFallback, nil)
	assert.Zero(t, conn.count(outMarkerCreate))
}

func TestServe_UnansweredMapLoadFallsBack(t *testing.T) {
	_, conn, _ := startHostWith(t, HostConfig{MapsAPIKey: "AIza-real-key", MapLoadTimeout: 50 * time.Millisecond})

	conn.await(t, outMapLoad, nil)
	conn.await(t, outMapDetach, nil)
	conn.await(t, outNotify, func(d gjson.Result) bool { return d.Get("code").String() == domain.CodeMapFallback })
	conn.await(t, outFallback, func(d gjson.Result) bool { return len(d.Get("locatables").Array()) > 0 })

	// a page that loads late is ignored
	conn.push(t, inMapReady, nil)
	time.Sleep(20 * time.Millisecond)
	assert.Zero(t, conn.count(outMarkerCreate))
}

func TestServe_MinOnlyRatingFilter(t *testing.T) {
	_, conn, search := startHost(t, "")

	conn.in <- []byte(`{"type":"query.change","data":{"filters":{"rating":{"min":3}}}}`)
	require.Eventually(t, func() bool {
		search.mu.Lock()
		defer search.mu.Unlock()
		for _, q := range search.queries {
			if lo, ok := q.Filters.Rating.Min(); ok && lo == 3 {
				_, hasMax := q.Filters.Rating.Max()
				return !hasMax
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, conn.count(outError))
	conn.mu.Lock()
	defer conn.mu.Unlock()
	for _, f := range conn.frames {
		assert.NotEqual(t, domain.CodeInvalidFilter, f.Get("data.code").String())
	}
}

func TestServe_ResultClickNavigates(t *testing.T) {
	_, conn, _ := startHost(t, "")

	conn.push(t, inResultClick, domain.Ref{Kind: domain.KindSite, ID: "b1"})
	nav := conn.await(t, outNavigate, nil)
	assert.Equal(t, "/site/b1", nav.Get("path").String())
}

func TestServe_RejectsBadFrames(t *testing.T) {
	_, conn, _ := startHost(t, "")

	conn.in <- []byte(`not json`)
	conn.await(t, outError, func(d gjson.Result) bool { return d.Get("message").String() == "invalid JSON" })

	conn.push(t, "bogus", nil)
	conn.await(t, outError, func(d gjson.Result) bool { return d.Get("message").String() == `unknown frame type "bogus"` })

	conn.push(t, inQueryChange, map[string]string{"entity_type": "dogs"})
	conn.await(t, outError, func(d gjson.Result) bool {
		return strings.Contains(d.Get("message").String(), domain.ErrUnknownEntityType.Error())
	})
}

func TestHost_FacetsAreCachedUntilInvalidated(t *testing.T) {
	h, conn, search := startHost(t, "")

	conn.push(t, inFacetsRequest, nil)
	f := conn.await(t, outFacets, nil)
	assert.Equal(t, "Orange Tabby", f.Get("categories.0").String())

	conn.push(t, inFacetsRequest, nil)
	require.Eventually(t, func() bool { return conn.count(outFacets) == 2 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, search.facetCalls())

	h.InvalidateFacets()
	conn.push(t, inFacetsRequest, nil)
	require.Eventually(t, func() bool { return conn.count(outFacets) == 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, search.facetCalls())
}

func TestHost_CloseEndsSessions(t *testing.T) {
	h, _, _ := startHost(t, "")
	assert.Equal(t, 1, h.Len())

	h.Close()
	require.Eventually(t, func() bool { return h.Len() == 0 }, 2*time.Second, 5*time.Millisecond)
}

func TestLocationErr(t *testing.T) {
	tests := []struct {
		code string
		want error
	}{
		{"1", domain.ErrPermissionDenied},
		{"permission_denied", domain.ErrPermissionDenied},
		{"2", domain.ErrPositionUnavailable},
		{"3", domain.ErrTimeout},
		{"unsupported", domain.ErrUnsupported},
		{"", domain.ErrPositionUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.ErrorIs(t, locationErr(tt.code), tt.want)
		})
	}
}
