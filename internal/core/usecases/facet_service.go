package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
	"github.com/samirrijal/bodegamap/internal/pkg/metrics"
)

const facetsCacheKey = "search:filters"

// FacetService enumerates filter values.
type FacetService struct {
	facets ports.FacetRepository
	cache  ports.CacheService
	ttl    int
}

// NewFacetService creates a new FacetService. cache may be nil.
func NewFacetService(facets ports.FacetRepository, cache ports.CacheService, ttlSeconds int) *FacetService {
	if ttlSeconds <= 0 {
		ttlSeconds = 5 * DefaultCacheTTL
	}
	return &FacetService{facets: facets, cache: cache, ttl: ttlSeconds}
}

// Facets loads categories, tags and rating stats concurrently.
func (s *FacetService) Facets(ctx context.Context) (*domain.Facets, error) {
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, facetsCacheKey); err == nil {
			var f domain.Facets
			if err := json.Unmarshal(data, &f); err == nil {
				metrics.CacheHits.WithLabelValues("filters").Inc()
				return &f, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("filters").Inc()
	}

	var f domain.Facets
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		if f.Categories, err = s.facets.Categories(gctx); err != nil {
			return fmt.Errorf("categories: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if f.Tags, err = s.facets.Tags(gctx); err != nil {
			return fmt.Errorf("tags: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		if f.RatingRange, err = s.facets.RatingStats(gctx); err != nil {
			return fmt.Errorf("rating stats: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if f.Categories == nil {
		f.Categories = []string{}
	}
	if f.Tags == nil {
		f.Tags = []string{}
	}

	if s.cache != nil {
		if data, err := json.Marshal(f); err == nil {
			_ = s.cache.Set(ctx, facetsCacheKey, data, s.ttl)
		}
	}
	return &f, nil
}

// Invalidate drops the cached facets.
func (s *FacetService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Delete(ctx, facetsCacheKey)
}
