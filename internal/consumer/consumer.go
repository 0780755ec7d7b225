// Package consumer pulls observations from the aggregation server.
package consumer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/segmentio/encoding/json"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/common"
	"github.com/i474232898/weather-aggregation-server/internal/lamport"
	"github.com/i474232898/weather-aggregation-server/internal/protocol"
	"github.com/i474232898/weather-aggregation-server/internal/resilience"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

// ErrNotFound is returned when the server holds no matching observation.
var ErrNotFound = errors.New("no weather data available")

// Client issues GET requests against the aggregation server.
type Client struct {
	url     string
	clock   *lamport.Clock
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

// New creates a new Client.
func New(serverAddr string, client *http.Client, clock *lamport.Clock, log *zap.SugaredLogger) (*Client, error) {
	base, err := common.BaseURL(serverAddr)
	if err != nil {
		return nil, err
	}
	return &Client{
		url:   base + "/weather",
		clock: clock,
		httpCfg: resilience.HTTPClientConfig{
			Client: client,
			Retry:  resilience.RetryConfig{Attempts: 3, Delay: time.Second},
			Retryable: func(err error) bool {
				return !resilience.IsStatus(err, http.StatusNotFound)
			},
		},
		circuit: resilience.NewCircuitBreaker("consumer", http.StatusNotFound),
		log:     log,
	}, nil
}

// Latest fetches the most recently aggregated observation.
func (c *Client) Latest(ctx context.Context) (weather.Payload, error) {
	return c.get(ctx, "")
}

// Station fetches the observation for one station.
func (c *Client) Station(ctx context.Context, id string) (weather.Payload, error) {
	if id == "" {
		return nil, weather.ErrMissingStationID
	}
	return c.get(ctx, id)
}

func (c *Client) get(ctx context.Context, station string) (weather.Payload, error) {
	u := c.url
	if station != "" {
		u += "?" + url.Values{protocol.StationQueryParam: {station}}.Encode()
	}

	buildRequest := func() (*http.Request, error) {
		ts := c.clock.Increment()

		req, err := http.NewRequest(http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set(protocol.HeaderLamportClock, strconv.FormatInt(ts, 10))
		req.Close = true
		return req, nil
	}

	resp, err := resilience.Do(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		if resilience.IsStatus(err, http.StatusNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer resp.Body.Close()

	if raw := resp.Header.Get(protocol.HeaderLamportClock); raw != "" {
		if ts, err := strconv.ParseInt(raw, 10, 64); err == nil {
			c.clock.Update(ts)
		}
	}

	var payload weather.Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding observation: %w", err)
	}
	c.log.Debugw("observation fetched", "station", payload.StationID(), "lamport", c.clock.Value())
	return payload, nil
}
