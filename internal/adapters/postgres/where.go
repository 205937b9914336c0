package postgres

import (
	"strconv"
	"strings"

	"github.com/samirrijal/bodegamap/internal/core/domain"
)

// where accumulates conjunctive SQL conditions with positional arguments.
type where struct {
	conds []string
	args  []any
}

// arg binds v and returns its placeholder.
func (w *where) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (w *where) add(cond string) {
	w.conds = append(w.conds, cond)
}

// text matches the free text against any of columns, case-insensitively.
func (w *where) text(q string, columns ...string) {
	if q == "" {
		return
	}
	p := w.arg("%" + escapeLike(q) + "%")
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = c + " ILIKE " + p
	}
	w.add("(" + strings.Join(parts, " OR ") + ")")
}

// bounds constrains column to r, skipping absent sides and sides at the domain edge.
func (w *where) bounds(column string, r, dom domain.Range) {
	r = r.Normalized(dom)
	if lo, ok := r.Min(); ok {
		w.add(column + " >= " + w.arg(lo))
	}
	if hi, ok := r.Max(); ok {
		w.add(column + " <= " + w.arg(hi))
	}
}

func (w *where) flag(column string, t domain.TriState) {
	switch t {
	case domain.Yes:
		w.add(column + " = true")
	case domain.No:
		w.add(column + " = false")
	}
}

// near restricts column to the query radius and returns the distance
// expression in km, or "NULL" without a position.
func (w *where) near(column string, q domain.SearchQuery) string {
	if q.Position == nil {
		return "NULL::float8"
	}
	point := "ST_SetSRID(ST_MakePoint(" + w.arg(q.Position.Lng) + ", " + w.arg(q.Position.Lat) + "), 4326)::geography"
	radius := q.RadiusKm
	if radius <= 0 {
		radius = domain.DefaultRadiusKm
	}
	w.add("ST_DWithin(" + column + ", " + point + ", " + w.arg(radius*1000) + ")")
	return "ST_Distance(" + column + ", " + point + ") / 1000.0"
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(w.conds, " AND ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
