package workflows

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

// ImportActivities holds the activity implementations for the catalog import workflow.
type ImportActivities struct {
	Sites     ports.SiteRepository
	Items     ports.ItemRepository
	Publisher ports.EventPublisher
}

// UpsertSites writes a batch of sites.
func (a *ImportActivities) UpsertSites(ctx context.Context, sites []domain.Site) (int, error) {
	if err := a.Sites.UpsertBatch(ctx, sites); err != nil {
		return 0, fmt.Errorf("upsert sites: %w", err)
	}
	return len(sites), nil
}

// UpsertItems writes a batch of items. Their sites must already exist.
func (a *ImportActivities) UpsertItems(ctx context.Context, items []domain.Item) (int, error) {
	if err := a.Items.UpsertBatch(ctx, items); err != nil {
		return 0, fmt.Errorf("upsert items: %w", err)
	}
	return len(items), nil
}

// AnnounceCatalog tells subscribers the catalog changed.
func (a *ImportActivities) AnnounceCatalog(ctx context.Context) error {
	if a.Publisher == nil {
		slog.Info("catalog updated (no publisher)")
		return nil
	}
	return a.Publisher.PublishCatalogUpdated(ctx)
}
