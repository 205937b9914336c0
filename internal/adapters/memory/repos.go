package memory

import (
	"context"
	"sort"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// SiteRepo implements ports.SiteRepository over a Store.
type SiteRepo struct {
	s *Store
}

func (r *SiteRepo) Upsert(ctx context.Context, site *domain.Site) error {
	return r.s.putSites([]domain.Site{*site})
}

func (r *SiteRepo) UpsertBatch(ctx context.Context, sites []domain.Site) error {
	return r.s.putSites(sites)
}

func (r *SiteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	site, ok := r.s.sites[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &site, nil
}

// Search filters sites conjunctively and orders them by distance when q has
// a position, by name otherwise.
func (r *SiteRepo) Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Site, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var near map[string]float64
	if q.Position != nil {
		var err error
		if near, err = r.s.within(*q.Position, radius(q)); err != nil {
			return nil, 0, err
		}
	}

	text := newMatcher(q.FreeText)
	var (
		hits []domain.Site
		keys []ordered
	)
	for id, site := range r.s.sites {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		var dist *float64
		if near != nil {
			d, ok := near[id]
			if !ok {
				continue
			}
			dist = &d
		}
		if !text.any(site.Name, site.Address, site.Description) ||
			!inRange(site.Rating, q.Filters.Rating, domain.RatingDomain) ||
			!inRange(float64(site.ItemCount), q.Filters.Count, domain.CountDomain) ||
			!flagMatches(site.IsVerified, q.Filters.Verified) {
			continue
		}
		site.DistanceKm = dist
		hits = append(hits, site)
		keys = append(keys, ordered{name: site.Name, id: site.ID, dist: dist})
	}
	return page(hits, keys, offset, limit), len(hits), nil
}

// ItemRepo implements ports.ItemRepository over a Store.
type ItemRepo struct {
	s *Store
}

func (r *ItemRepo) Upsert(ctx context.Context, item *domain.Item) error {
	return r.s.putItems([]domain.Item{*item})
}

func (r *ItemRepo) UpsertBatch(ctx context.Context, items []domain.Item) error {
	return r.s.putItems(items)
}

func (r *ItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	item, ok := r.s.items[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	r.s.locate(&item)
	return &item, nil
}

// Search filters items conjunctively. Text matches the item's own fields
// and its site's name and address.
func (r *ItemRepo) Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Item, int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()

	var near map[string]float64
	if q.Position != nil {
		var err error
		if near, err = r.s.within(*q.Position, radius(q)); err != nil {
			return nil, 0, err
		}
	}

	text := newMatcher(q.FreeText)
	f := q.Filters
	var (
		hits []domain.Item
		keys []ordered
	)
	for _, item := range r.s.items {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		var dist *float64
		if near != nil {
			d, ok := near[item.SiteID]
			if !ok {
				continue
			}
			dist = &d
		}
		r.s.locate(&item)
		if !text.any(item.Name, item.Description, item.Breed, item.Personality, item.SiteName, item.Address) ||
			!containsFold(item.Breed, f.Category) ||
			!containsFold(item.Personality, f.Tag) ||
			!inRange(item.Rating, f.Rating, domain.RatingDomain) ||
			!flagMatches(item.IsFriendly, f.Friendly) {
			continue
		}
		item.DistanceKm = dist
		hits = append(hits, item)
		keys = append(keys, ordered{name: item.Name, id: item.ID, dist: dist})
	}
	return page(hits, keys, offset, limit), len(hits), nil
}

// locate copies the site's name, address and position onto item. Callers
// hold the read lock.
func (s *Store) locate(item *domain.Item) {
	if site, ok := s.sites[item.SiteID]; ok {
		item.SiteName = site.Name
		item.Address = site.Address
		item.Location = site.Location
	}
}

func radius(q domain.SearchQuery) float64 {
	if q.RadiusKm > 0 {
		return q.RadiusKm
	}
	return domain.DefaultRadiusKm
}

// FacetRepo implements ports.FacetRepository over a Store.
type FacetRepo struct {
	s *Store
}

func (r *FacetRepo) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(func(i domain.Item) string { return i.Breed }), nil
}

func (r *FacetRepo) Tags(ctx context.Context) ([]string, error) {
	return r.distinct(func(i domain.Item) string { return i.Personality }), nil
}

func (r *FacetRepo) RatingStats(ctx context.Context) (domain.RatingStats, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	if len(r.s.items) == 0 {
		return domain.RatingStats{Min: 0, Max: 5}, nil
	}

	first := true
	var st domain.RatingStats
	var sum float64
	for _, item := range r.s.items {
		if first || item.Rating < st.Min {
			st.Min = item.Rating
		}
		if first || item.Rating > st.Max {
			st.Max = item.Rating
		}
		first = false
		sum += item.Rating
	}
	st.Average = sum / float64(len(r.s.items))
	return st, nil
}

func (r *FacetRepo) distinct(field func(domain.Item) string) []string {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	seen := make(map[string]struct{})
	for _, item := range r.s.items {
		if v := field(item); v != "" {
			seen[v] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for v := range seen {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
