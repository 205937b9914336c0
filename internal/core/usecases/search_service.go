package usecases

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
)

// Page limits.
const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// DefaultCacheTTL is the cache lifetime of search pages, in seconds.
const DefaultCacheTTL = 60

// Page is one page of search results.
type Page[T any] struct {
	Items  []T `json:"items"`
	Offset int `json:"offset"`
	Limit  int `json:"limit"`
	Total  int `json:"total"`
}

// SearchService answers site and item searches. Filtering only: with a
// position results are ordered by distance, otherwise by name.
type SearchService struct {
	sites ports.SiteRepository
	items ports.ItemRepository
	cache ports.CacheService
	ttl   int
	gen   atomic.Uint64
}

// NewSearchService creates a new SearchService. cache may be nil.
func NewSearchService(sites ports.SiteRepository, items ports.ItemRepository, cache ports.CacheService, ttlSeconds int) *SearchService {
	if ttlSeconds <= 0 {
		ttlSeconds = DefaultCacheTTL
	}
	return &SearchService{sites: sites, items: items, cache: cache, ttl: ttlSeconds}
}

// ClampPage normalizes offset and limit.
func ClampPage(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return offset, limit
}

// SearchSites returns one page of matching sites.
func (s *SearchService) SearchSites(ctx context.Context, q domain.SearchQuery, offset, limit int) (*Page[domain.Site], error) {
	offset, limit = ClampPage(offset, limit)
	return cachedPage(ctx, s, q, offset, limit, func() ([]domain.Site, int, error) {
		return s.sites.Search(ctx, q, offset, limit)
	})
}

// SearchItems returns one page of matching items.
func (s *SearchService) SearchItems(ctx context.Context, q domain.SearchQuery, offset, limit int) (*Page[domain.Item], error) {
	offset, limit = ClampPage(offset, limit)
	return cachedPage(ctx, s, q, offset, limit, func() ([]domain.Item, int, error) {
		return s.items.Search(ctx, q, offset, limit)
	})
}

// GetSite returns a single site.
func (s *SearchService) GetSite(ctx context.Context, id string) (*domain.Site, error) {
	return s.sites.GetByID(ctx, id)
}

// GetItem returns a single item.
func (s *SearchService) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	return s.items.GetByID(ctx, id)
}

// Invalidate makes every cached page stale. Keys embed a generation, so old
// entries simply expire.
func (s *SearchService) Invalidate() {
	s.gen.Add(1)
}

func (s *SearchService) cacheKey(q domain.SearchQuery, offset, limit int) string {
	return fmt.Sprintf("search:%d:%s:%s:%d:%d", s.gen.Load(), q.EntityType, q.Params().Encode(), offset, limit)
}

func cachedPage[T any](ctx context.Context, s *SearchService, q domain.SearchQuery, offset, limit int, load func() ([]T, int, error)) (*Page[T], error) {
	t := string(q.EntityType)
	metrics.SearchQueries.WithLabelValues(t, fmt.Sprint(q.Position != nil)).Inc()

	// Try cache
	key := s.cacheKey(q, offset, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key); err == nil {
			var page Page[T]
			if err := json.Unmarshal(data, &page); err == nil {
				metrics.CacheHits.WithLabelValues("search_" + t).Inc()
				return &page, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("search_" + t).Inc()
	}

	results, total, err := load()
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", t, err)
	}
	if results == nil {
		results = []T{}
	}
	metrics.SearchResults.WithLabelValues(t).Observe(float64(total))
	page := &Page[T]{Items: results, Offset: offset, Limit: limit, Total: total}

	if s.cache != nil {
		if data, err := json.Marshal(page); err == nil {
			_ = s.cache.Set(ctx, key, data, s.ttl)
		}
	}
	return page, nil
}
