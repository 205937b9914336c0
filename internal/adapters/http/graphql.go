package http

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/bodegamap/internal/core/domain"
	"github.com/samirrijal/bodegamap/internal/core/usecases"
)

// searchArgs mirror the REST query parameters.
var searchArgs = graphql.FieldConfigArgument{
	"q":          &graphql.ArgumentConfig{Type: graphql.String},
	"category":   &graphql.ArgumentConfig{Type: graphql.String},
	"tag":        &graphql.ArgumentConfig{Type: graphql.String},
	"min_rating": &graphql.ArgumentConfig{Type: graphql.Float},
	"max_rating": &graphql.ArgumentConfig{Type: graphql.Float},
	"min_count":  &graphql.ArgumentConfig{Type: graphql.Float},
	"max_count":  &graphql.ArgumentConfig{Type: graphql.Float},
	"friendly":   &graphql.ArgumentConfig{Type: graphql.Boolean},
	"verified":   &graphql.ArgumentConfig{Type: graphql.Boolean},
	"lat":        &graphql.ArgumentConfig{Type: graphql.Float},
	"lng":        &graphql.ArgumentConfig{Type: graphql.Float},
	"radius":     &graphql.ArgumentConfig{Type: graphql.Float},
	"offset":     &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 0},
	"limit":      &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: usecases.DefaultLimit},
}

// argsQuery renders GraphQL arguments as REST parameters and parses them the
// same way the REST handler does.
func argsQuery(t domain.EntityType, args map[string]interface{}) (domain.SearchQuery, int, int, error) {
	v := url.Values{}
	for k, a := range args {
		switch x := a.(type) {
		case string:
			v.Set(k, x)
		case float64:
			v.Set(k, strconv.FormatFloat(x, 'f', -1, 64))
		case bool:
			v.Set(k, strconv.FormatBool(x))
		}
	}
	q, err := domain.ParseQuery(t, v)
	offset, _ := args["offset"].(int)
	limit, _ := args["limit"].(int)
	offset, limit = usecases.ClampPage(offset, limit)
	return q, offset, limit, err
}

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPositionType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPosition",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	siteType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Site",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"name":         &graphql.Field{Type: graphql.String},
			"address":      &graphql.Field{Type: graphql.String},
			"location":     &graphql.Field{Type: geoPositionType},
			"description":  &graphql.Field{Type: graphql.String},
			"phone":        &graphql.Field{Type: graphql.String},
			"hours":        &graphql.Field{Type: graphql.String},
			"rating":       &graphql.Field{Type: graphql.Float},
			"review_count": &graphql.Field{Type: graphql.Int},
			"item_count":   &graphql.Field{Type: graphql.Int},
			"is_verified":  &graphql.Field{Type: graphql.Boolean},
			"distance":     &graphql.Field{Type: graphql.Float, Resolve: resolveDistance},
		},
	})

	itemType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Item",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"name":        &graphql.Field{Type: graphql.String},
			"site_id":     &graphql.Field{Type: graphql.String},
			"site_name":   &graphql.Field{Type: graphql.String},
			"address":     &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: geoPositionType},
			"breed":       &graphql.Field{Type: graphql.String},
			"age":         &graphql.Field{Type: graphql.String},
			"sex":         &graphql.Field{Type: graphql.String},
			"personality": &graphql.Field{Type: graphql.String},
			"is_friendly": &graphql.Field{Type: graphql.Boolean},
			"rating":      &graphql.Field{Type: graphql.Float},
			"distance":    &graphql.Field{Type: graphql.Float, Resolve: resolveDistance},
		},
	})

	ratingType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RatingRange",
		Fields: graphql.Fields{
			"min":     &graphql.Field{Type: graphql.Float},
			"max":     &graphql.Field{Type: graphql.Float},
			"average": &graphql.Field{Type: graphql.Float},
		},
	})

	facetsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Facets",
		Fields: graphql.Fields{
			"categories":   &graphql.Field{Type: graphql.NewList(graphql.String)},
			"tags":         &graphql.Field{Type: graphql.NewList(graphql.String)},
			"rating_range": &graphql.Field{Type: ratingType},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"sites": &graphql.Field{
				Type:        graphql.NewList(siteType),
				Description: "Filter bodegas",
				Args:        searchArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, offset, limit, err := argsQuery(domain.EntitySites, p.Args)
					if err != nil {
						return nil, err
					}
					page, err := deps.Search.SearchSites(p.Context, q, offset, limit)
					if err != nil {
						return nil, err
					}
					return page.Items, nil
				},
			},
			"items": &graphql.Field{
				Type:        graphql.NewList(itemType),
				Description: "Filter cats",
				Args:        searchArgs,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q, offset, limit, err := argsQuery(domain.EntityItems, p.Args)
					if err != nil {
						return nil, err
					}
					page, err := deps.Search.SearchItems(p.Context, q, offset, limit)
					if err != nil {
						return nil, err
					}
					return page.Items, nil
				},
			},
			"site": &graphql.Field{
				Type:        siteType,
				Description: "Get a bodega by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Search.GetSite(p.Context, p.Args["id"].(string))
				},
			},
			"item": &graphql.Field{
				Type:        itemType,
				Description: "Get a cat by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Search.GetItem(p.Context, p.Args["id"].(string))
				},
			},
			"facets": &graphql.Field{
				Type:        facetsType,
				Description: "Filter values",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Facets.Facets(p.Context)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

func resolveDistance(p graphql.ResolveParams) (interface{}, error) {
	var d *float64
	switch s := p.Source.(type) {
	case domain.Site:
		d = s.DistanceKm
	case *domain.Site:
		d = s.DistanceKm
	case domain.Item:
		d = s.DistanceKm
	case *domain.Item:
		d = s.DistanceKm
	default:
		return nil, fmt.Errorf("distance on %T", p.Source)
	}
	if d == nil {
		return nil, nil
	}
	return *d, nil
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.UserContext(),
		})

		return c.JSON(result)
	}
}
