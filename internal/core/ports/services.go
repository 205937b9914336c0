package ports

import (
	"context"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// EventPublisher emits analytics and catalog events. Publishing is best
// effort: callers log failures and carry on.
type EventPublisher interface {
	PublishSearchExecuted(ctx context.Context, event *domain.SearchExecuted) error
	// PublishNavigation records that session followed intent to a detail view.
	PublishNavigation(ctx context.Context, session string, intent domain.NavigationIntent) error
	// PublishCatalogUpdated tells every search and explorer process that
	// sites or items changed, so cached results and facets are stale.
	PublishCatalogUpdated(ctx context.Context) error
}

// EventSubscriber delivers catalog changes. A handler error redelivers the event.
type EventSubscriber interface {
	SubscribeCatalogUpdated(ctx context.Context, handler func(ctx context.Context) error) error
}

// CacheService is a byte cache keyed by string. Get reports a miss as an
// error; callers treat every Get error as a miss.
type CacheService interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttlSeconds int) error
	Delete(ctx context.Context, key string) error
}
