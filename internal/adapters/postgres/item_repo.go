package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/pkg/geospatial"
)

// ItemRepo implements ports.ItemRepository with pgx. Items have no location
// of their own; every query joins their site.
type ItemRepo struct {
	db *DB
}

// NewItemRepo creates a new ItemRepo.
func NewItemRepo(db *DB) *ItemRepo {
	return &ItemRepo{db: db}
}

const upsertItemSQL = `
	INSERT INTO items (id, site_id, name, description, age, breed, sex, personality,
	                   color, is_friendly, rating, review_count, primary_photo)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	ON CONFLICT (id) DO UPDATE
	SET site_id = EXCLUDED.site_id, name = EXCLUDED.name, description = EXCLUDED.description,
	    age = EXCLUDED.age, breed = EXCLUDED.breed, sex = EXCLUDED.sex,
	    personality = EXCLUDED.personality, color = EXCLUDED.color,
	    is_friendly = EXCLUDED.is_friendly, rating = EXCLUDED.rating,
	    review_count = EXCLUDED.review_count, primary_photo = EXCLUDED.primary_photo,
	    is_active = true
`

func itemArgs(i *domain.Item) []any {
	return []any{i.ID, i.SiteID, i.Name, i.Description, i.Age, i.Breed, i.Sex,
		i.Personality, i.Color, i.IsFriendly, i.Rating, i.ReviewCount, i.PrimaryPhoto}
}

// Upsert inserts or updates a single item.
func (r *ItemRepo) Upsert(ctx context.Context, i *domain.Item) error {
	_, err := r.db.Pool.Exec(ctx, upsertItemSQL, itemArgs(i)...)
	return err
}

// UpsertBatch inserts many items using pgx.Batch.
func (r *ItemRepo) UpsertBatch(ctx context.Context, items []domain.Item) error {
	batch := &pgx.Batch{}
	for i := range items {
		batch.Queue(upsertItemSQL, itemArgs(&items[i])...)
	}
	br := r.db.Pool.SendBatch(ctx, batch)
	defer br.Close()
	for range items {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("batch exec: %w", err)
		}
	}
	return nil
}

const itemColumns = `
	c.id, c.name, c.site_id, s.name, s.address,
	ST_Y(s.location::geometry) AS lat,
	ST_X(s.location::geometry) AS lng,
	COALESCE(c.description, ''), COALESCE(c.age, ''), COALESCE(c.breed, ''),
	COALESCE(c.sex, ''), COALESCE(c.personality, ''), COALESCE(c.color, ''),
	c.is_friendly, c.rating, c.review_count, COALESCE(c.primary_photo, ''), c.created_at`

func itemDest(i *domain.Item) []any {
	return []any{&i.ID, &i.Name, &i.SiteID, &i.SiteName, &i.Address,
		&i.Location.Lat, &i.Location.Lng, &i.Description, &i.Age, &i.Breed,
		&i.Sex, &i.Personality, &i.Color, &i.IsFriendly, &i.Rating,
		&i.ReviewCount, &i.PrimaryPhoto, &i.CreatedAt}
}

// GetByID returns an active item by id.
func (r *ItemRepo) GetByID(ctx context.Context, id string) (*domain.Item, error) {
	var i domain.Item
	err := r.db.Pool.QueryRow(ctx, `
		SELECT `+itemColumns+`
		FROM items c JOIN sites s ON s.id = c.site_id
		WHERE c.id = $1 AND c.is_active
	`, id).Scan(itemDest(&i)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &i, nil
}

// Search filters active items. Free text matches the item's name,
// description, breed and personality and its site's name and address.
func (r *ItemRepo) Search(ctx context.Context, q domain.SearchQuery, offset, limit int) ([]domain.Item, int, error) {
	w := &where{}
	w.add("c.is_active")
	w.text(q.FreeText, "c.name", "c.description", "c.breed", "c.personality", "s.name", "s.address")
	if q.Filters.Category != "" {
		w.add("c.breed ILIKE " + w.arg("%"+escapeLike(q.Filters.Category)+"%"))
	}
	if q.Filters.Tag != "" {
		w.add("c.personality ILIKE " + w.arg("%"+escapeLike(q.Filters.Tag)+"%"))
	}
	w.bounds("c.rating", q.Filters.Rating, domain.RatingDomain)
	w.flag("c.is_friendly", q.Filters.Friendly)
	distance := w.near("s.location", q)

	order := "c.name, c.id"
	if q.Position != nil {
		order = "distance, c.id"
	}
	sql := fmt.Sprintf(`
		SELECT %s, %s AS distance, count(*) OVER () AS total
		FROM items c JOIN sites s ON s.id = c.site_id
		%s
		ORDER BY %s
		LIMIT %s OFFSET %s
	`, itemColumns, distance, w, order, w.arg(limit), w.arg(offset))

	rows, err := r.db.Pool.Query(ctx, sql, w.args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items []domain.Item
		total int
	)
	for rows.Next() {
		var i domain.Item
		var dist *float64
		if err := rows.Scan(append(itemDest(&i), &dist, &total)...); err != nil {
			return nil, 0, err
		}
		if dist != nil {
			d := geospatial.RoundKm(*dist)
			i.DistanceKm = &d
		}
		items = append(items, i)
	}
	return items, total, rows.Err()
}
