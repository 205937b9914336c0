package explorer

import (
	"context"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

// catalogFetchTimeout bounds the shared facet fetch.
const catalogFetchTimeout = 10 * time.Second

// Catalog memoizes the facet values used to populate filter controls.
// Unlike the rest of the package it is safe for concurrent use.
type Catalog struct {
	search ports.SearchService
	group  singleflight.Group

	mu     sync.Mutex
	gen    uint64
	facets *domain.Facets
}

func NewCatalog(search ports.SearchService) *Catalog {
	return &Catalog{search: search}
}

// Load returns the cached facets, fetching them on first use. Concurrent
// callers share one fetch, which runs detached from any single caller so
// one caller giving up does not fail the others. Failures are not cached.
func (c *Catalog) Load(ctx context.Context) (domain.Facets, error) {
	c.mu.Lock()
	if c.facets != nil {
		f := *c.facets
		c.mu.Unlock()
		return f, nil
	}
	gen := c.gen
	c.mu.Unlock()

	ch := c.group.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), catalogFetchTimeout)
		defer cancel()
		f, err := c.search.Facets(fctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		// A fetch that raced an Invalidate is returned but not kept.
		if c.gen == gen {
			c.facets = &f
		}
		c.mu.Unlock()
		return f, nil
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return domain.Facets{}, res.Err
		}
		return res.Val.(domain.Facets), nil
	case <-ctx.Done():
		return domain.Facets{}, ctx.Err()
	}
}

// Invalidate drops the cached facets.
func (c *Catalog) Invalidate() {
	c.mu.Lock()
	c.gen++
	c.facets = nil
	c.mu.Unlock()
}
