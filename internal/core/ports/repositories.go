package ports

import (
	"context"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// SiteRepository persists sites.
type SiteRepository interface {
	Upsert(ctx context.Context, site *domain.Site) error
	UpsertBatch(ctx context.Context, sites []domain.Site) error
	GetByID(ctx context.Context, id string) (*domain.Site, error)
	// Search applies every constraint of q conjunctively. Distance is set on
	// each result iff q carries a position. Returns the page and the total match count.
	Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Site, int, error)
}

// ItemRepository persists items.
type ItemRepository interface {
	Upsert(ctx context.Context, item *domain.Item) error
	UpsertBatch(ctx context.Context, items []domain.Item) error
	GetByID(ctx context.Context, id string) (*domain.Item, error)
	Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Item, int, error)
}

// FacetRepository enumerates filter values.
type FacetRepository interface {
	Categories(ctx context.Context) ([]string, error)
	Tags(ctx context.Context) ([]string, error)
	RatingStats(ctx context.Context) (domain.RatingStats, error)
}
