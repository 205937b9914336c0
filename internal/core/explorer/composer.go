package explorer

import (
	"fmt"
	"strings"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// Input is the raw user state a query is composed from.
type Input struct {
	FreeText   string
	EntityType domain.EntityType
	Filters    domain.FilterSet
	Position   *domain.GeoPosition
	RadiusKm   float64
}

// Compose merges the user's input into a SearchQuery. It performs no I/O and
// is deterministic: equal inputs yield Equal queries. Numeric bounds are
// clamped into their domains and an absent bound stays absent; inverted
// ranges are rejected with
// domain.ErrInvalidRange. Facets that do not apply to the entity type are dropped.
func Compose(in Input) (domain.SearchQuery, error) {
	t, err := domain.ParseEntityType(string(in.EntityType))
	if err != nil {
		return domain.SearchQuery{}, err
	}

	rating := in.Filters.Rating.Normalized(domain.RatingDomain)
	if rating.Inverted() {
		return domain.SearchQuery{}, fmt.Errorf("%w: rating %s", domain.ErrInvalidRange, rating)
	}

	filters := domain.FilterSet{Rating: rating}
	switch t {
	case domain.EntityItems:
		filters.Category = strings.TrimSpace(in.Filters.Category)
		filters.Tag = strings.TrimSpace(in.Filters.Tag)
		filters.Friendly = triState(in.Filters.Friendly)
	case domain.EntitySites:
		count := in.Filters.Count.Normalized(domain.CountDomain)
		if count.Inverted() {
			return domain.SearchQuery{}, fmt.Errorf("%w: count %s", domain.ErrInvalidRange, count)
		}
		filters.Count = count
		filters.Verified = triState(in.Filters.Verified)
	}

	q := domain.SearchQuery{
		FreeText:   strings.Join(strings.Fields(in.FreeText), " "),
		EntityType: t,
		Filters:    filters,
	}

	// Text and position are independent, conjunctive constraints.
	if in.Position != nil {
		p := *in.Position
		if !p.Valid() {
			return domain.SearchQuery{}, fmt.Errorf("%w: %s", domain.ErrInvalidPosition, p)
		}
		q.Position = &p
		q.RadiusKm = in.RadiusKm
		if q.RadiusKm <= 0 {
			q.RadiusKm = domain.DefaultRadiusKm
		}
	}
	return q, nil
}

func triState(t domain.TriState) domain.TriState {
	switch t {
	case domain.Yes, domain.No:
		return t
	}
	return domain.Any
}
