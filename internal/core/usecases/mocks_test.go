package usecases_test

import (
	"context"
	"errors"
	"sync"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// --- Mock SiteRepository ---

type mockSiteRepo struct {
	searchFn      func(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Site, int, error)
	getByIDFn     func(ctx context.Context, id string) (*domain.Site, error)
	upsertBatchFn func(ctx context.Context, sites []domain.Site) error
}

func (m *mockSiteRepo) Upsert(ctx context.Context, site *domain.Site) error { return nil }

func (m *mockSiteRepo) UpsertBatch(ctx context.Context, sites []domain.Site) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, sites)
	}
	return nil
}

func (m *mockSiteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	if m.getByIDFn != nil {
		return m.getByIDFn(ctx, id)
	}
	return nil, domain.ErrNotFound
}

func (m *mockSiteRepo) Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Site, int, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q, offset, limit)
	}
	return nil, 0, nil
}

// --- Mock ItemRepository ---

type mockItemRepo struct {
	searchFn      func(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Item, int, error)
	upsertBatchFn func(ctx context.Context, items []domain.Item) error
}

func (m *mockItemRepo) Upsert(ctx context.Context, item *domain.Item) error { return nil }

func (m *mockItemRepo) UpsertBatch(ctx context.Context, items []domain.Item) error {
	if m.upsertBatchFn != nil {
		return m.upsertBatchFn(ctx, items)
	}
	return nil
}

func (m *mockItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	return nil, domain.ErrNotFound
}

func (m *mockItemRepo) Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Item, int, error) {
	if m.searchFn != nil {
		return m.searchFn(ctx, q, offset, limit)
	}
	return nil, 0, nil
}

// --- Mock FacetRepository ---

type mockFacetRepo struct {
	categoriesFn func(ctx context.Context) ([]string, error)
	tags         []string
	stats        domain.RatingStats
}

func (m *mockFacetRepo) Categories(ctx context.Context) ([]string, error) {
	if m.categoriesFn != nil {
		return m.categoriesFn(ctx)
	}
	return nil, nil
}

func (m *mockFacetRepo) Tags(ctx context.Context) ([]string, error) { return m.tags, nil }

func (m *mockFacetRepo) RatingStats(ctx context.Context) (domain.RatingStats, error) {
	return m.stats, nil
}

// --- In-memory CacheService ---

var errCacheMiss = errors.New("cache miss")

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: make(map[string][]byte)} }

func (c *memCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	if !ok {
		return nil, errCacheMiss
	}
	return v, nil
}

func (c *memCache) Set(ctx context.Context, key string, value []byte, ttlSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// --- Mock EventPublisher ---

type mockPublisher struct {
	catalogUpdates int
}

func (m *mockPublisher) PublishSearchExecuted(ctx context.Context, event *domain.SearchExecuted) error {
	return nil
}

func (m *mockPublisher) PublishNavigation(ctx context.Context, session string, intent domain.NavigationIntent) error {
	return nil
}

func (m *mockPublisher) PublishCatalogUpdated(ctx context.Context) error {
	m.catalogUpdates++
	return nil
}
