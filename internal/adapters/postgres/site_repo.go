package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/pkg/geospatial"
)

// SiteRepo implements ports.SiteRepository with pgx.
type SiteRepo struct {
	db *DB
}

// NewSiteRepo creates a new SiteRepo.
func NewSiteRepo(db *DB) *SiteRepo {
	return &SiteRepo{db: db}
}

const upsertSiteSQL = `
	INSERT INTO sites (id, name, address, location, description, phone, hours,
	                   rating, review_count, item_count, is_verified, primary_photo)
	VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326)::geography, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE
	SET name = EXCLUDED.name, address = EXCLUDED.address, location = EXCLUDED.location,
	    description = EXCLUDED.description, phone = EXCLUDED.phone, hours = EXCLUDED.hours,
	    rating = EXCLUDED.rating, review_count = EXCLUDED.review_count,
	    item_count = EXCLUDED.item_count, is_verified = EXCLUDED.is_verified,
	    primary_photo = EXCLUDED.primary_photo
`

func siteArgs(s *domain.Site) []any {
	return []any{s.ID, s.Name, s.Address, s.Location.Lng, s.Location.Lat,
		s.Description, s.Phone, s.Hours, s.Rating, s.ReviewCount, s.ItemCount,
		s.IsVerified, s.PrimaryPhoto}
}

// Upsert inserts or updates a single site.
func (r *SiteRepo) Upsert(ctx context.Context, s *domain.Site) error {
	_, err := r.db.Pool.Exec(ctx, upsertSiteSQL, siteArgs(s)...)
	return err
}

// UpsertBatch inserts many sites using pgx.Batch.
func (r *SiteRepo) UpsertBatch(ctx context.Context, sites []domain.Site) error {
	batch := &pgx.Batch{}
	for i := range sites {
		batch.Queue(upsertSiteSQL, siteArgs(&sites[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range sites {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

const siteColumns = `
	s.id, s.name, s.address,
	ST_Y(s.location::geometry) AS lat,
	ST_X(s.location::geometry) AS lng,
	COALESCE(s.description, ''), COALESCE(s.phone, ''), COALESCE(s.hours, ''),
	s.rating, s.review_count, s.item_count, s.is_verified,
	COALESCE(s.primary_photo, ''), s.created_at`

func siteDest(s *domain.Site) []any {
	return []any{&s.ID, &s.Name, &s.Address, &s.Location.Lat, &s.Location.Lng,
		&s.Description, &s.Phone, &s.Hours, &s.Rating, &s.ReviewCount, &s.ItemCount,
		&s.IsVerified, &s.PrimaryPhoto, &s.CreatedAt}
}

// GetByID returns a site by id.
func (r *SiteRepo) GetByID(ctx context.Context, id string) (*domain.Site, error) {
	var s domain.Site
	err := r.db.Pool.QueryRow(ctx, `SELECT `+siteColumns+` FROM sites s WHERE s.id = $1`, id).
		Scan(siteDest(&s)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Search filters sites by name, address and description, rating, item count,
// the verified flag and, with a position, ST_DWithin. Positioned results are
// ordered by distance, others by name.
func (r *SiteRepo) Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Site, int, error) {
	w := &where{}
	w.text(q.FreeText, "s.name", "s.address", "s.description")
	w.bounds("s.rating", q.Filters.Rating, domain.RatingDomain)
	w.bounds("s.item_count", q.Filters.Count, domain.CountDomain)
	w.flag("s.is_verified", q.Filters.Verified)
	distance := w.near("s.location", q)

	order := "s.name, s.id"
	if q.Position != nil {
		order = "distance, s.id"
	}
	sql := fmt.Sprintf(`
		SELECT %s, %s AS distance, count(*) OVER () AS total
		FROM sites s
		%s
		ORDER BY %s
		LIMIT %s OFFSET %s
	`, siteColumns, distance, w, order, w.arg(limit), w.arg(offset))

	rows, err := r.db.Pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		sites []domain.Site
		total int
	)
	for rows.Next() {
		var s domain.Site
		var dist *float64
		if err := rows.Scan(append(siteDest(&s), &dist, &total)...); err != nil {
			return nil, 0, err
		}
		if dist != nil {
			d := geospatial.RoundKm(*dist)
			s.DistanceKm = &d
		}
		sites = append(sites, s)
	}
	return sites, total, rows.Err()
}
