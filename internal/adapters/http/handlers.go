package http

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/samirrijal/parksmart/internal/core/domain"
	"github.com/samirrijal/parksmart/internal/core/usecases"
)

const maxNearbyRadius = 50000

var validate = validator.New(validator.WithRequiredStructEnabled())

// FeedStatus summarises the live registry.
type FeedStatus struct {
	Spots        int    `json:"spots"`
	FullSpots    int    `json:"full_spots"`
	FreeCapacity int    `json:"free_capacity"`
	Version      uint64 `json:"version"`
	Sessions     int    `json:"sessions"`
}

// FeedStatusHandler reports the size and version of the registry.
func FeedStatusHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		spots, version := deps.Hub.Registry().Snapshot()
		st := FeedStatus{Spots: len(spots), Version: version, Sessions: deps.Hub.Len()}
		for _, s := range spots {
			if s.Full() {
				st.FullSpots++
			}
			st.FreeCapacity += s.Available
		}
		return c.JSON(st)
	}
}

// ListSpotsHandler returns the registry snapshot in load order.
func ListSpotsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		resp := paginate(c, deps.Hub.Registry().All())
		setLinkHeaders(c, resp.Pagination)
		return c.JSON(resp)
	}
}

// GetSpotHandler returns a single spot with its live availability.
func GetSpotHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		spot, err := deps.Hub.Registry().Get(c.Params("id"))
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(spot)
	}
}

// NearbyResponse is a one-shot ranking around a query point.
type NearbyResponse struct {
	Position domain.GeoPoint       `json:"position"`
	Results  []domain.RankedResult `json:"results"`
}

// NearbySpotsHandler ranks the registry against lat/lon without opening a session.
func NearbySpotsHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if c.Query("lat") == "" || c.Query("lon") == "" {
			return errBadRequest(c, "lat and lon are required")
		}
		point := domain.GeoPoint{Lat: c.QueryFloat("lat", 0), Lon: c.QueryFloat("lon", 0)}
		if !point.Valid() {
			return errBadRequest(c, "lat must be within [-90,90] and lon within [-180,180]")
		}

		opts := deps.Defaults
		opts.MaxResults = c.QueryInt("limit", opts.MaxResults)
		opts.ExcludeFull = c.QueryBool("exclude_full", opts.ExcludeFull)
		opts.MaxDistanceMeters = c.QueryFloat("radius", opts.MaxDistanceMeters)
		if opts.MaxResults < 0 || opts.MaxResults > 200 {
			return errBadRequest(c, "limit must be between 0 and 200")
		}
		if opts.MaxDistanceMeters < 0 || opts.MaxDistanceMeters > maxNearbyRadius {
			return errBadRequest(c, "radius must be between 0 and 50000 meters")
		}

		results, err := deps.Hub.Nearby(c.UserContext(), point, opts)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(NearbyResponse{Position: point, Results: results})
	}
}

type availabilityRequest struct {
	Available *int `json:"available" validate:"required,min=0"`
}

// UpdateAvailabilityHandler applies a manual availability change to the registry.
// Every live session re-ranks; the change is persisted and rebroadcast when
// those adapters are configured.
func UpdateAvailabilityHandler(deps *Dependencies) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req availabilityRequest
		if err := c.BodyParser(&req); err != nil {
			return errBadRequest(c, "invalid request body")
		}
		if err := validate.Struct(req); err != nil {
			return errBadRequest(c, validationMessage(err))
		}

		update := domain.AvailabilityUpdate{
			SpotID:     c.Params("id"),
			Available:  *req.Available,
			ObservedAt: time.Now().UTC(),
		}
		if err := deps.Availability.Apply(c.UserContext(), update); err != nil {
			return errDomain(c, err)
		}

		spot, err := deps.Hub.Registry().Get(update.SpotID)
		if err != nil {
			return errDomain(c, err)
		}
		return c.JSON(spot)
	}
}

func validationMessage(err error) string {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, strings.ToLower(fe.Field())+" is required")
		case "min":
			msgs = append(msgs, strings.ToLower(fe.Field())+" must be at least "+fe.Param())
		default:
			msgs = append(msgs, strings.ToLower(fe.Field())+" is invalid")
		}
	}
	return strings.Join(msgs, "; ")
}

// rankOptionsFromArgs is shared by the GraphQL resolvers.
func rankOptionsFromArgs(defaults usecases.RankOptions, args map[string]interface{}) usecases.RankOptions {
	opts := defaults
	if v, ok := args["limit"].(int); ok {
		opts.MaxResults = v
	}
	if v, ok := args["excludeFull"].(bool); ok {
		opts.ExcludeFull = v
	}
	if v, ok := args["radius"].(float64); ok {
		opts.MaxDistanceMeters = v
	}
	return opts
}
