package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/ports"
)

// Catalog is a batch of sites and their items, as read from a seed file.
type Catalog struct {
	Sites []domain.Site `json:"sites"`
	Items []domain.Item `json:"items"`
}

// ReadCatalog decodes a JSON catalog. Unknown fields are rejected.
func ReadCatalog(r io.Reader) (Catalog, error) {
	var c Catalog
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("decode catalog: %w", err)
	}
	return c, nil
}

// ReadCatalogFile reads the catalog at path.
func ReadCatalogFile(path string) (Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return Catalog{}, err
	}
	defer f.Close()
	return ReadCatalog(f)
}

// ImportStats reports what an import wrote.
type ImportStats struct {
	Sites int
	Items int
}

// ImportService loads catalogs into the repositories.
type ImportService struct {
	sites     ports.SiteRepository
	items     ports.ItemRepository
	publisher ports.EventPublisher
}

// NewImportService creates a new ImportService. publisher may be nil.
func NewImportService(sites ports.SiteRepository, items ports.ItemRepository, publisher ports.EventPublisher) *ImportService {
	return &ImportService{sites: sites, items: items, publisher: publisher}
}

// Import validates c, upserts it and announces the change. Items inherit
// their site's name, address and location.
func (s *ImportService) Import(ctx context.Context, c Catalog) (ImportStats, error) {
	if err := c.Prepare(); err != nil {
		return ImportStats{}, err
	}

	if len(c.Sites) > 0 {
		if err := s.sites.UpsertBatch(ctx, c.Sites); err != nil {
			return ImportStats{}, fmt.Errorf("upsert sites: %w", err)
		}
	}
	if len(c.Items) > 0 {
		if err := s.items.UpsertBatch(ctx, c.Items); err != nil {
			return ImportStats{Sites: len(c.Sites)}, fmt.Errorf("upsert items: %w", err)
		}
	}

	if s.publisher != nil {
		// Subscribers refresh on their own schedule if this is lost.
		_ = s.publisher.PublishCatalogUpdated(ctx)
	}
	return ImportStats{Sites: len(c.Sites), Items: len(c.Items)}, nil
}

// Prepare validates c and copies each site's name, address and location onto
// its items. All problems are reported together.
func (c *Catalog) Prepare() error {
	var errs []error
	byID := make(map[string]*domain.Site, len(c.Sites))
	for i := range c.Sites {
		site := &c.Sites[i]
		switch {
		case site.ID == "" || site.Name == "":
			errs = append(errs, fmt.Errorf("site %d: id and name are required", i))
		case !site.Location.Valid():
			errs = append(errs, fmt.Errorf("site %s: %w", site.ID, domain.ErrInvalidPosition))
		default:
			byID[site.ID] = site
		}
	}

	counts := make(map[string]int)
	for i := range c.Items {
		item := &c.Items[i]
		if item.ID == "" || item.Name == "" {
			errs = append(errs, fmt.Errorf("item %d: id and name are required", i))
			continue
		}
		site, ok := byID[item.SiteID]
		if !ok {
			errs = append(errs, fmt.Errorf("item %s: unknown site %q", item.ID, item.SiteID))
			continue
		}
		item.SiteName = site.Name
		item.Address = site.Address
		item.Location = site.Location
		counts[site.ID]++
	}
	for id, n := range counts {
		if byID[id].ItemCount < n {
			byID[id].ItemCount = n
		}
	}
	return errors.Join(errs...)
}
