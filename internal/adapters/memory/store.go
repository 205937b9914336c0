// Package memory provides in-process repositories backed by an R-tree over
// site coordinates. It serves the search API without a database.
package memory

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dhconnelly/rtreego"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/pkg/geospatial"
)

const (
	tolerance   = 1e-7
	minChildren = 25
	maxChildren = 50
	dimensions  = 2
)

// siteEntry indexes a site's position.
type siteEntry struct {
	id   string
	rect *rtreego.Rect
}

func (e *siteEntry) Bounds() *rtreego.Rect {
	return e.rect
}

// Store holds sites and items. Items are located at their site.
type Store struct {
	mu    sync.RWMutex
	sites map[string]domain.Site
	items map[string]domain.Item
	tree  *rtreego.Rtree
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		sites: make(map[string]domain.Site),
		items: make(map[string]domain.Item),
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
	}
}

// Sites returns a ports.SiteRepository view.
func (s *Store) Sites() *SiteRepo { return &SiteRepo{s: s} }

// Items returns a ports.ItemRepository view.
func (s *Store) Items() *ItemRepo { return &ItemRepo{s: s} }

// Facets returns a ports.FacetRepository view.
func (s *Store) Facets() *FacetRepo { return &FacetRepo{s: s} }

// Len returns the number of sites and items.
func (s *Store) Len() (sites, items int) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sites), len(s.items)
}

func (s *Store) putSites(sites []domain.Site) error {
	for _, site := range sites {
		if !site.Location.Valid() {
			return fmt.Errorf("site %s: %w", site.ID, domain.ErrInvalidPosition)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, site := range sites {
		site.DistanceKm = nil
		s.sites[site.ID] = site
	}
	s.reindex()
	return nil
}

func (s *Store) putItems(items []domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range items {
		if _, ok := s.sites[item.SiteID]; !ok {
			return fmt.Errorf("item %s: site %q: %w", item.ID, item.SiteID, domain.ErrNotFound)
		}
	}
	for _, item := range items {
		item.DistanceKm = nil
		s.items[item.ID] = item
	}
	return nil
}

// reindex rebuilds the tree. Callers hold the write lock.
func (s *Store) reindex() {
	s.tree = rtreego.NewTree(dimensions, minChildren, maxChildren)
	for id, site := range s.sites {
		p := rtreego.Point{site.Location.Lat, site.Location.Lng}
		s.tree.Insert(&siteEntry{id: id, rect: p.ToRect(tolerance)})
	}
}

// within returns the distance in km of every site inside the radius. Callers
// hold the read lock.
func (s *Store) within(center domain.GeoPosition, radiusKm float64) (map[string]float64, error) {
	minLat, minLng, maxLat, maxLng := geospatial.BoundingBox(center.Lat, center.Lng, radiusKm)
	bounds, err := rtreego.NewRect(
		rtreego.Point{minLat, minLng},
		[]float64{maxLat - minLat, maxLng - minLng},
	)
	if err != nil {
		return nil, fmt.Errorf("invalid radius search: %w", err)
	}

	out := make(map[string]float64)
	for _, result := range s.tree.SearchIntersect(bounds) {
		entry, ok := result.(*siteEntry)
		if !ok {
			continue
		}
		loc := s.sites[entry.id].Location
		if d := geospatial.HaversineKm(center.Lat, center.Lng, loc.Lat, loc.Lng); d <= radiusKm {
			out[entry.id] = geospatial.RoundKm(d)
		}
	}
	return out, nil
}

// matcher applies the free-text constraint.
type matcher string

func newMatcher(q string) matcher {
	return matcher(strings.ToLower(strings.TrimSpace(q)))
}

func (m matcher) any(fields ...string) bool {
	if m == "" {
		return true
	}
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), string(m)) {
			return true
		}
	}
	return false
}

func inRange(v float64, r, dom domain.Range) bool {
	lo, hi := r.Resolve(dom)
	return v >= lo && v <= hi
}

func flagMatches(v bool, t domain.TriState) bool {
	switch t {
	case domain.Yes:
		return v
	case domain.No:
		return !v
	}
	return true
}

func containsFold(field, want string) bool {
	return want == "" || strings.Contains(strings.ToLower(field), strings.ToLower(want))
}

// ordered is a search hit with its sort keys.
type ordered struct {
	name string
	id   string
	dist *float64
}

func less(a, b ordered) bool {
	if a.dist != nil && b.dist != nil && *a.dist != *b.dist {
		return *a.dist < *b.dist
	}
	if a.name != b.name {
		return a.name < b.name
	}
	return a.id < b.id
}

func page[T any](all []T, keys []ordered, offset, limit int) []T {
	idx := make([]int, len(all))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return less(keys[idx[i]], keys[idx[j]]) })

	if offset >= len(idx) {
		return []T{}
	}
	end := len(idx)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]T, 0, end-offset)
	for _, i := range idx[offset:end] {
		out = append(out, all[i])
	}
	return out
}
