package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// FacetRepo implements ports.FacetRepository over active items.
type FacetRepo struct {
	db *DB
}

// NewFacetRepo creates a new FacetRepo.
func NewFacetRepo(db *DB) *FacetRepo {
	return &FacetRepo{db: db}
}

// Categories returns the distinct breeds.
func (r *FacetRepo) Categories(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `
		SELECT DISTINCT breed FROM items
		WHERE is_active AND breed IS NOT NULL AND breed <> ''
		ORDER BY breed
	`)
}

// Tags returns the distinct personalities.
func (r *FacetRepo) Tags(ctx context.Context) ([]string, error) {
	return r.distinct(ctx, `
		SELECT DISTINCT personality FROM items
		WHERE is_active AND personality IS NOT NULL AND personality <> ''
		ORDER BY personality
	`)
}

// RatingStats returns min, max and average item rating, defaulting to 0, 5 and 0.
func (r *FacetRepo) RatingStats(ctx context.Context) (domain.RatingStats, error) {
	var s domain.RatingStats
	err := r.db.Pool.QueryRow(ctx, `
		SELECT COALESCE(MIN(rating), 0), COALESCE(MAX(rating), 5), COALESCE(AVG(rating), 0)::float8
		FROM items WHERE is_active
	`).Scan(&s.Min, &s.Max, &s.Average)
	return s, err
}

func (r *FacetRepo) distinct(ctx context.Context, sql string) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, sql)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[string])
}
