package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// EntityType selects which collection a search runs against.
type EntityType string

const (
	EntitySites EntityType = "sites"
	EntityItems EntityType = "items"
)

// ParseEntityType validates a path segment such as "sites".
func ParseEntityType(s string) (EntityType, error) {
	switch EntityType(s) {
	case EntitySites, EntityItems:
		return EntityType(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownEntityType, s)
}

// Kind returns the marker kind of the entities the type yields.
func (t EntityType) Kind() Kind {
	if t == EntitySites {
		return KindSite
	}
	return KindItem
}

// Domains of the numeric facets. A bound equal to its domain edge is no constraint.
var (
	RatingDomain = Between(0, 5)
	CountDomain  = Between(0, 100)
)

// DefaultRadiusKm is used when a position is known and no radius was chosen.
const DefaultRadiusKm = 5.0

// Range is a closed numeric interval whose bounds are each optional. An
// absent bound is the domain edge, so the zero value constrains nothing.
// A present bound of 0 is a real constraint ("at most 0 items").
type Range struct {
	min, max       float64
	hasMin, hasMax bool
}

func Between(min, max float64) Range { return Range{min: min, max: max, hasMin: true, hasMax: true} }

func AtLeast(min float64) Range { return Range{min: min, hasMin: true} }

func AtMost(max float64) Range { return Range{max: max, hasMax: true} }

// Min returns the lower bound and whether it is set.
func (r Range) Min() (float64, bool) { return r.min, r.hasMin }

// Max returns the upper bound and whether it is set.
func (r Range) Max() (float64, bool) { return r.max, r.hasMax }

// Normalized clamps the present bounds into dom and drops those that land on
// its edges, so equivalent ranges compare equal.
func (r Range) Normalized(dom Range) Range {
	clamp := func(v float64) float64 { return math.Max(dom.min, math.Min(v, dom.max)) }
	out := Range{}
	if r.hasMin {
		if v := clamp(r.min); v > dom.min {
			out.min, out.hasMin = v, true
		}
	}
	if r.hasMax {
		if v := clamp(r.max); v < dom.max {
			out.max, out.hasMax = v, true
		}
	}
	return out
}

// Resolve returns the bounds clamped into dom, absent ones at its edges.
func (r Range) Resolve(dom Range) (lo, hi float64) {
	n := r.Normalized(dom)
	lo, hi = dom.min, dom.max
	if n.hasMin {
		lo = n.min
	}
	if n.hasMax {
		hi = n.max
	}
	return lo, hi
}

// Inverted reports whether both bounds are set and min exceeds max.
func (r Range) Inverted() bool {
	return r.hasMin && r.hasMax && r.min > r.max
}

func (r Range) String() string {
	lo, hi := "*", "*"
	if r.hasMin {
		lo = formatFloat(r.min)
	}
	if r.hasMax {
		hi = formatFloat(r.max)
	}
	return lo + ".." + hi
}

type rangeJSON struct {
	Min *float64 `json:"min,omitempty"`
	Max *float64 `json:"max,omitempty"`
}

func (r Range) MarshalJSON() ([]byte, error) {
	var j rangeJSON
	if r.hasMin {
		j.Min = &r.min
	}
	if r.hasMax {
		j.Max = &r.max
	}
	return json.Marshal(j)
}

// UnmarshalJSON treats a missing or null key as an absent bound.
func (r *Range) UnmarshalJSON(b []byte) error {
	var j rangeJSON
	if err := json.Unmarshal(b, &j); err != nil {
		return err
	}
	*r = Range{}
	if j.Min != nil {
		r.min, r.hasMin = *j.Min, true
	}
	if j.Max != nil {
		r.max, r.hasMax = *j.Max, true
	}
	return nil
}

// TriState is a boolean filter that may be left unconstrained.
type TriState string

const (
	Any TriState = ""
	Yes TriState = "yes"
	No  TriState = "no"
)

func (t TriState) param() (string, bool) {
	switch t {
	case Yes:
		return "true", true
	case No:
		return "false", true
	}
	return "", false
}

func parseTriState(v string) TriState {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		return Yes
	case "false", "0", "no":
		return No
	}
	return Any
}

// FilterSet holds the facet constraints of one entity type.
// Items use Category (breed), Tag (personality), Rating and Friendly.
// Sites use Rating, Count (items per site) and Verified.
type FilterSet struct {
	Category string   `json:"category,omitempty"`
	Tag      string   `json:"tag,omitempty"`
	Rating   Range    `json:"rating"`
	Count    Range    `json:"count"`
	Friendly TriState `json:"friendly,omitempty"`
	Verified TriState `json:"verified,omitempty"`
}

// SearchQuery is an immutable query descriptor.
type SearchQuery struct {
	FreeText   string       `json:"q,omitempty"`
	EntityType EntityType   `json:"entity_type"`
	Filters    FilterSet    `json:"filters"`
	Position   *GeoPosition `json:"position,omitempty"`
	RadiusKm   float64      `json:"radius,omitempty"`
}

// Equal reports whether both queries would produce the same request.
func (q SearchQuery) Equal(o SearchQuery) bool {
	if q.FreeText != o.FreeText || q.EntityType != o.EntityType || q.Filters != o.Filters || q.RadiusKm != o.RadiusKm {
		return false
	}
	if (q.Position == nil) != (o.Position == nil) {
		return false
	}
	return q.Position == nil || *q.Position == *o.Position
}

// Params renders the outgoing query parameters. Default-valued fields are omitted,
// so a default filter set is indistinguishable from no filters.
func (q SearchQuery) Params() url.Values {
	v := url.Values{}
	if q.FreeText != "" {
		v.Set("q", q.FreeText)
	}
	f := q.Filters
	if f.Category != "" {
		v.Set("category", f.Category)
	}
	if f.Tag != "" {
		v.Set("tag", f.Tag)
	}
	setRange(v, "min_rating", "max_rating", f.Rating.Normalized(RatingDomain))
	setRange(v, "min_count", "max_count", f.Count.Normalized(CountDomain))
	if s, ok := f.Friendly.param(); ok {
		v.Set("friendly", s)
	}
	if s, ok := f.Verified.param(); ok {
		v.Set("verified", s)
	}
	if q.Position != nil {
		v.Set("lat", formatFloat(q.Position.Lat))
		v.Set("lng", formatFloat(q.Position.Lng))
		if q.RadiusKm > 0 {
			v.Set("radius", formatFloat(q.RadiusKm))
		}
	}
	return v
}

// ParseQuery rebuilds a SearchQuery from request parameters.
func ParseQuery(t EntityType, v url.Values) (SearchQuery, error) {
	q := SearchQuery{
		FreeText:   strings.TrimSpace(v.Get("q")),
		EntityType: t,
		Filters: FilterSet{
			Category: v.Get("category"),
			Tag:      v.Get("tag"),
			Friendly: parseTriState(v.Get("friendly")),
			Verified: parseTriState(v.Get("verified")),
		},
	}

	var err error
	if q.Filters.Rating, err = parseRange(v, "min_rating", "max_rating", RatingDomain); err != nil {
		return SearchQuery{}, err
	}
	if q.Filters.Count, err = parseRange(v, "min_count", "max_count", CountDomain); err != nil {
		return SearchQuery{}, err
	}

	lat, lng := v.Get("lat"), v.Get("lng")
	if lat != "" || lng != "" {
		la, errLat := strconv.ParseFloat(lat, 64)
		ln, errLng := strconv.ParseFloat(lng, 64)
		p := GeoPosition{Lat: la, Lng: ln}
		if errLat != nil || errLng != nil || !p.Valid() {
			return SearchQuery{}, fmt.Errorf("%w: lat and lng must both be valid coordinates", ErrInvalidPosition)
		}
		q.Position = &p
		q.RadiusKm = DefaultRadiusKm
		if r := v.Get("radius"); r != "" {
			radius, err := strconv.ParseFloat(r, 64)
			if err != nil || radius <= 0 {
				return SearchQuery{}, fmt.Errorf("%w: radius must be a positive number", ErrInvalidPosition)
			}
			q.RadiusKm = radius
		}
	}
	return q, nil
}

func setRange(v url.Values, minKey, maxKey string, r Range) {
	if lo, ok := r.Min(); ok {
		v.Set(minKey, formatFloat(lo))
	}
	if hi, ok := r.Max(); ok {
		v.Set(maxKey, formatFloat(hi))
	}
}

func parseRange(v url.Values, minKey, maxKey string, domain Range) (Range, error) {
	var r Range
	if s := v.Get(minKey); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s is not a number", ErrInvalidRange, minKey)
		}
		r.min, r.hasMin = f, true
	}
	if s := v.Get(maxKey); s != "" {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return Range{}, fmt.Errorf("%w: %s is not a number", ErrInvalidRange, maxKey)
		}
		r.max, r.hasMax = f, true
	}
	r = r.Normalized(domain)
	if r.Inverted() {
		return Range{}, fmt.Errorf("%w: %s > %s", ErrInvalidRange, minKey, maxKey)
	}
	return r, nil
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
