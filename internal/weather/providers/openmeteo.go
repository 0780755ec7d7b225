// Package providers turns external weather APIs into payloads a content
// server can push.
package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/sony/gobreaker"

	"github.com/i474232898/weather-aggregation-server/internal/resilience"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

// DefaultOpenMeteoURL is the public current-weather endpoint.
const DefaultOpenMeteoURL = "https://api.open-meteo.com/v1/forecast"

// OpenMeteoProvider implements the weather.Provider interface for Open-Meteo.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenMeteoProvider(client *http.Client, baseURL string) *OpenMeteoProvider {
	if baseURL == "" {
		baseURL = DefaultOpenMeteoURL
	}
	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		httpCfg: resilience.HTTPClientConfig{
			Client: client,
			Retry: resilience.RetryConfig{
				Attempts: 3,
				Delay:    500 * time.Millisecond,
			},
		},
		circuit: resilience.NewCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

// Fetch reads the current weather at the station's coordinates.
func (p *OpenMeteoProvider) Fetch(ctx context.Context, station weather.StationSpec) (weather.Payload, error) {
	if station.ID == "" {
		return nil, weather.ErrMissingStationID
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", station.Lat))
		values.Set("longitude", fmt.Sprintf("%f", station.Lon))
		values.Set("current_weather", "true")

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	resp, err := resilience.Do(ctx, p.httpCfg, p.circuit, buildRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.name, err)
	}
	defer resp.Body.Close()

	var payload struct {
		CurrentWeather struct {
			Temperature   float64 `json:"temperature"`
			WindSpeed     float64 `json:"windspeed"`
			WindDirection float64 `json:"winddirection"`
			Time          string  `json:"time"`
			WeatherCode   int     `json:"weathercode"`
		} `json:"current_weather"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", p.name, err)
	}

	// Open-Meteo reports minutes without seconds, e.g. 2026-01-01T12:00.
	ts, err := time.Parse("2006-01-02T15:04", payload.CurrentWeather.Time)
	if err != nil {
		ts = time.Now().UTC()
	}

	return weather.Payload{
		weather.StationIDField: station.ID,
		"lat":                  station.Lat,
		"lon":                  station.Lon,
		"air_temp":             payload.CurrentWeather.Temperature,
		"wind_spd_kmh":         payload.CurrentWeather.WindSpeed,
		"wind_dir_deg":         payload.CurrentWeather.WindDirection,
		"condition":            string(mapOpenMeteoCondition(payload.CurrentWeather.WeatherCode)),
		"local_date_time_full": ts.Format("20060102150405"),
		"source":               p.name,
	}, nil
}

func mapOpenMeteoCondition(code int) weather.Condition {
	// Mapping based on Open-Meteo weather codes (simplified).
	switch {
	case code == 0:
		return weather.ConditionClear
	case code >= 1 && code <= 3:
		return weather.ConditionCloudy
	case (code >= 51 && code <= 67) || (code >= 80 && code <= 82):
		return weather.ConditionRain
	case code >= 71 && code <= 77:
		return weather.ConditionSnow
	case code >= 95:
		return weather.ConditionStorm
	default:
		return weather.ConditionUnknown
	}
}
