package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/usecases"
)

// SearchResponse is the body of GET /search/{entityType}.
type SearchResponse struct {
	Items      any        `json:"items"`
	Pagination Pagination `json:"pagination"`
}

// queryValues returns the raw query string as url.Values, keeping repeated keys.
func queryValues(c *fiber.Ctx) url.Values {
	v, _ := url.ParseQuery(string(c.Request().URI().QueryString()))
	return v
}

// SearchHandler filters sites or items. Every parameter is optional; with
// lat/lng results carry a distance and are restricted to the radius.
func SearchHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		t, err := domain.ParseEntityType(c.Params("entityType"))
		if err != nil {
			return errQuery(c, err)
		}
		v := queryValues(c)
		if len(v.Get("q")) > 200 {
			return errBadRequest(c, "query too long (max 200 characters)")
		}
		q, err := domain.ParseQuery(t, v)
		if err != nil {
			return errQuery(c, err)
		}
		offset, limit := usecases.ClampPage(c.QueryInt("offset", 0), c.QueryInt("limit", usecases.DefaultLimit))

		ctx := c.UserContext()
		var (
			items any
			total int
		)
		switch t {
		case domain.EntitySites:
			page, err := deps.Search.SearchSites(ctx, q, offset, limit)
			if err != nil {
				return errInternal(c, err)
			}
			items, total = page.Items, page.Total
		case domain.EntityItems:
			page, err := deps.Search.SearchItems(ctx, q, offset, limit)
			if err != nil {
				return errInternal(c, err)
			}
			items, total = page.Items, page.Total
		}

		pg := Pagination{Offset: offset, Limit: limit, Total: total}
		SetLinkHeaders(c, pg)
		return c.JSON(SearchResponse{Items: items, Pagination: pg})
	}
}

// FiltersHandler returns the facet values offered to the user.
func FiltersHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := deps.Facets.Facets(c.UserContext())
		if err != nil {
			return errInternal(c, err)
		}
		return c.JSON(f)
	}
}

// GetSiteHandler returns a single site by ID.
func GetSiteHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		site, err := deps.Search.GetSite(c.UserContext(), c.Params("id"))
		if err != nil {
			return errNotFound(c, "site not found")
		}
		return c.JSON(site)
	}
}

// GetItemHandler returns a single item by ID.
func GetItemHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		item, err := deps.Search.GetItem(c.UserContext(), c.Params("id"))
		if err != nil {
			return errNotFound(c, "item not found")
		}
		return c.JSON(item)
	}
}
