package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/samirrijal/parksmart/internal/core/domain"
)

// buildSchema creates the GraphQL schema over the live registry.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lon": &graphql.Field{Type: graphql.Float},
		},
	})

	moneyType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Money",
		Fields: graphql.Fields{
			"amount":   &graphql.Field{Type: graphql.Int, Description: "Minor currency units"},
			"currency": &graphql.Field{Type: graphql.String},
			"display": &graphql.Field{
				Type: graphql.String,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if m, ok := p.Source.(domain.Money); ok {
						return m.String(), nil
					}
					return nil, nil
				},
			},
		},
	})

	spotType := graphql.NewObject(graphql.ObjectConfig{
		Name: "ParkingSpot",
		Fields: graphql.Fields{
			"id":             &graphql.Field{Type: graphql.String},
			"name":           &graphql.Field{Type: graphql.String},
			"address":        &graphql.Field{Type: graphql.String},
			"location":       &graphql.Field{Type: geoPointType},
			"capacity":       &graphql.Field{Type: graphql.Int},
			"available":      &graphql.Field{Type: graphql.Int},
			"price_per_hour": &graphql.Field{Type: moneyType},
			"full": &graphql.Field{
				Type: graphql.Boolean,
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					if s, ok := p.Source.(domain.ParkingSpot); ok {
						return s.Full(), nil
					}
					return nil, nil
				},
			},
		},
	})

	rankedType := graphql.NewObject(graphql.ObjectConfig{
		Name: "RankedSpot",
		Fields: graphql.Fields{
			"spot":            &graphql.Field{Type: spotType},
			"distance_meters": &graphql.Field{Type: graphql.Float},
			"full":            &graphql.Field{Type: graphql.Boolean},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"spots": &graphql.Field{
				Type:        graphql.NewList(spotType),
				Description: "Every parking spot with its live availability",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Hub.Registry().All(), nil
				},
			},
			"spot": &graphql.Field{
				Type:        spotType,
				Description: "Get a parking spot by id",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Hub.Registry().Get(p.Args["id"].(string))
				},
			},
			"nearby": &graphql.Field{
				Type:        graphql.NewList(rankedType),
				Description: "Rank parking spots by distance from a location",
				Args: graphql.FieldConfigArgument{
					"lat":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lon":         &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"limit":       &graphql.ArgumentConfig{Type: graphql.Int},
					"excludeFull": &graphql.ArgumentConfig{Type: graphql.Boolean},
					"radius":      &graphql.ArgumentConfig{Type: graphql.Float},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					point := domain.GeoPoint{Lat: p.Args["lat"].(float64), Lon: p.Args["lon"].(float64)}
					return deps.Hub.Nearby(p.Context, point, rankOptionsFromArgs(deps.Defaults, p.Args))
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
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
		if req.Query == "" {
			return errBadRequest(c, "query is required")
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
