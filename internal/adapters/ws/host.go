package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/explorer"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
)

var (
	_ ports.DeviceLocator    = (*Browser)(nil)
	_ ports.MapLoader        = (*Browser)(nil)
	_ ports.MapSurface       = (*Browser)(nil)
	_ ports.FallbackRenderer = (*Browser)(nil)
	_ ports.ListRenderer     = (*Browser)(nil)
	_ ports.Notifier         = (*Browser)(nil)
	_ ports.Navigator        = (*Browser)(nil)
)

const (
	pingInterval  = 30 * time.Second
	facetsTimeout = 10 * time.Second
)

// DefaultMapLoadTimeout applies when HostConfig.MapLoadTimeout is unset.
const DefaultMapLoadTimeout = 15 * time.Second

// HostConfig configures every session the host creates.
type HostConfig struct {
	Session        explorer.Config
	MapsAPIKey     string
	MapLoadTimeout time.Duration
}

// Host owns the live explorer sessions.
type Host struct {
	cfg       HostConfig
	search    ports.SearchService
	publisher ports.EventPublisher
	logger    *slog.Logger

	mu       sync.Mutex
	sessions map[string]*live
}

type live struct {
	session *explorer.Session
	conn    Conn
}

// NewHost creates a host. publisher may be nil.
func NewHost(cfg HostConfig, search ports.SearchService, publisher ports.EventPublisher, logger *slog.Logger) *Host {
	if logger == nil {
		logger = slog.Default()
	}
	return &Host{
		cfg:       cfg,
		search:    search,
		publisher: publisher,
		logger:    logger,
		sessions:  make(map[string]*live),
	}
}

// Handler returns the fiber websocket handler. Each connection gets its own session.
func (h *Host) Handler() func(*websocket.Conn) {
	return func(c *websocket.Conn) {
		h.Serve(c)
	}
}

// Serve runs a session for conn until the connection fails.
func (h *Host) Serve(conn Conn) {
	defer conn.Close()

	id := uuid.NewString()
	logger := h.logger.With("session", id)
	out := &writer{conn: conn}
	browser := newBrowser(out, h.cfg.MapsAPIKey, h.cfg.MapLoadTimeout, logger)

	s := explorer.NewSession(id, h.cfg.Session, explorer.Deps{
		Search:    h.search,
		Device:    browser,
		Maps:      browser,
		Fallback:  browser,
		List:      browser,
		Notifier:  browser,
		Navigator: browser,
		Publisher: h.publisher,
		Logger:    h.logger,
	})

	h.register(s, conn)
	defer h.unregister(s)
	logger.Info("ws session started")

	if err := out.send(outSession, map[string]string{"id": id}); err != nil {
		logger.Debug("send session frame", "error", err)
		browser.close()
		s.Dispose()
		return
	}
	s.Start()

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := out.ping(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			break
		}
		if err := h.dispatch(s, browser, out, msg); err != nil {
			logger.Debug("bad frame", "error", err)
			_ = out.send(outError, map[string]string{"message": err.Error()})
		}
	}

	close(done)
	browser.close()
	s.Dispose()
	logger.Info("ws session closed")
}

func (h *Host) dispatch(s *explorer.Session, b *Browser, out *writer, msg []byte) error {
	if !gjson.ValidBytes(msg) {
		return fmt.Errorf("invalid JSON")
	}
	typ := gjson.GetBytes(msg, "type").String()
	data := gjson.GetBytes(msg, "data")

	switch typ {
	case inQueryChange:
		var qc queryChange
		if err := decode(data, &qc); err != nil {
			return err
		}
		ch := explorer.InputChange{FreeText: qc.Text, Filters: qc.Filters}
		if qc.EntityType != nil {
			t, err := domain.ParseEntityType(*qc.EntityType)
			if err != nil {
				return err
			}
			ch.EntityType = &t
		}
		s.OnQueryChange(ch)

	case inQuerySubmit:
		s.OnExplicitSubmit()

	case inLocationRequest:
		s.OnLocationRequested()

	case inLocationResult:
		var r locationResult
		if err := decode(data, &r); err != nil {
			return err
		}
		b.resolveFix(r.ID, fixOutcome{pos: domain.GeoPosition{Lat: r.Lat, Lng: r.Lng}})

	case inLocationError:
		// code may arrive as a number or a string
		id := data.Get("id").String()
		b.resolveFix(id, fixOutcome{err: locationErr(data.Get("code").String())})

	case inMapReady:
		b.resolveLoad(nil)

	case inMapFailed:
		var f mapFailed
		if err := decode(data, &f); err != nil {
			return err
		}
		b.resolveLoad(fmt.Errorf("%w: %s", domain.ErrMapUnavailable, f.Reason))

	case inMarkerClick:
		var r handleRef
		if err := decode(data, &r); err != nil {
			return err
		}
		b.clicked(ports.MarkerHandle(r.Handle))

	case inResultClick:
		var ref domain.Ref
		if err := decode(data, &ref); err != nil {
			return err
		}
		if ref.ID == "" || (ref.Kind != domain.KindSite && ref.Kind != domain.KindItem) {
			return fmt.Errorf("invalid result reference %q", ref.String())
		}
		s.OnMarkerClicked(ref)

	case inFacetsRequest:
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), facetsTimeout)
			defer cancel()
			f, err := s.Facets(ctx)
			if err != nil {
				h.logger.Warn("load facets", "session", s.ID(), "error", err)
				_ = out.send(outError, map[string]string{"message": "filters unavailable"})
				return
			}
			_ = out.send(outFacets, f)
		}()

	default:
		return fmt.Errorf("unknown frame type %q", typ)
	}
	return nil
}

func decode(data gjson.Result, v any) error {
	if !data.Exists() {
		return nil
	}
	if err := json.Unmarshal([]byte(data.Raw), v); err != nil {
		return fmt.Errorf("decode frame data: %w", err)
	}
	return nil
}

// InvalidateFacets drops the cached filter catalog of every session, so the
// next facets.request refetches it.
func (h *Host) InvalidateFacets() {
	for _, l := range h.snapshot() {
		l.session.InvalidateFacets()
	}
}

// Len returns the number of live sessions.
func (h *Host) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every live connection. Each Serve call then disposes its session.
func (h *Host) Close() {
	for _, l := range h.snapshot() {
		_ = l.conn.Close()
	}
}

func (h *Host) snapshot() []*live {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*live, 0, len(h.sessions))
	for _, l := range h.sessions {
		out = append(out, l)
	}
	return out
}

func (h *Host) register(s *explorer.Session, conn Conn) {
	h.mu.Lock()
	h.sessions[s.ID()] = &live{session: s, conn: conn}
	h.mu.Unlock()
	metrics.ActiveSessions.Inc()
}

func (h *Host) unregister(s *explorer.Session) {
	h.mu.Lock()
	delete(h.sessions, s.ID())
	h.mu.Unlock()
	metrics.ActiveSessions.Dec()
}
