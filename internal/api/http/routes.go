package httpapi

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/weather-aggregation-server/internal/registry"
	"github.com/i474232898/weather-aggregation-server/internal/store"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

var validate = validator.New()

// RegisterRoutes wires the admin HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *weather.Service, reg *registry.Registry) {
	v1 := app.Group("/api/v1")

	v1.Get("/weather/latest", func(c *fiber.Ctx) error {
		obs, err := service.Latest()
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(obs)
	})

	v1.Get("/weather/stations", func(c *fiber.Ctx) error {
		observations := service.Observations()
		return c.JSON(fiber.Map{
			"count":        len(observations),
			"observations": observations,
		})
	})

	v1.Get("/weather/stations/:id", func(c *fiber.Ctx) error {
		q, err := parseStationParam(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		obs, err := service.Station(q.ID)
		if err != nil {
			return lookupError(err)
		}
		return c.JSON(obs)
	})

	v1.Get("/producers", func(c *fiber.Ctx) error {
		producers := reg.Producers()
		if producers == nil {
			producers = []registry.Session{}
		}
		return c.JSON(fiber.Map{
			"count":       len(producers),
			"connections": reg.Len(),
			"producers":   producers,
		})
	})

	v1.Get("/clock", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"lamport": service.Clock()})
	})
}

func lookupError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fiber.NewError(fiber.StatusNotFound, "no weather data")
	}
	return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch weather data")
}

// stationParam holds the path parameter identifying a station.
type stationParam struct {
	ID string `validate:"required,max=64,printascii"`
}

func parseStationParam(c *fiber.Ctx) (stationParam, error) {
	q := stationParam{ID: c.Params("id")}

	if err := validate.Struct(q); err != nil {
		return q, err
	}
	return q, nil
}
