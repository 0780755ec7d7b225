// Package producer pushes observations to the aggregation server the way a
// content server does.
package producer

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/common"
	"github.com/i474232898/weather-aggregation-server/internal/lamport"
	"github.com/i474232898/weather-aggregation-server/internal/protocol"
	"github.com/i474232898/weather-aggregation-server/internal/resilience"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

// DefaultResource is the path producers PUT to.
const DefaultResource = "/weather.json"

// Config holds the push settings.
type Config struct {
	ServerAddr string
	Resource   string
	Retry      resilience.RetryConfig
}

// DefaultRetry is three attempts with a fixed two second pause.
var DefaultRetry = resilience.RetryConfig{Attempts: 3, Delay: 2 * time.Second}

// Client pushes payloads, stamping each attempt with its Lamport clock.
type Client struct {
	url     string
	clock   *lamport.Clock
	httpCfg resilience.HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
	log     *zap.SugaredLogger
}

// New creates a new Client.
func New(cfg Config, client *http.Client, clock *lamport.Clock, log *zap.SugaredLogger) (*Client, error) {
	base, err := common.BaseURL(cfg.ServerAddr)
	if err != nil {
		return nil, err
	}
	resource := cfg.Resource
	if resource == "" {
		resource = DefaultResource
	}
	retry := cfg.Retry
	if retry.Attempts == 0 {
		retry = DefaultRetry
	}

	c := &Client{
		url:     base + resource,
		clock:   clock,
		circuit: resilience.NewCircuitBreaker("producer"),
		log:     log,
	}
	c.httpCfg = resilience.HTTPClientConfig{
		Client: client,
		Retry:  retry,
		OnRetry: func(n uint, err error) {
			c.log.Warnw("push failed, retrying", "attempt", n+1, "of", retry.Attempts, "error", err)
		},
	}
	return c, nil
}

// Push sends one payload and returns the server's status code. Any non-2xx
// response counts as a failure and is retried.
func (c *Client) Push(ctx context.Context, payload weather.Payload) (int, error) {
	if payload.StationID() == "" {
		return 0, weather.ErrMissingStationID
	}
	body, err := payload.Encode()
	if err != nil {
		return 0, fmt.Errorf("encoding payload: %w", err)
	}

	buildRequest := func() (*http.Request, error) {
		ts := c.clock.Increment()

		req, err := http.NewRequest(http.MethodPut, c.url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(protocol.HeaderLamportClock, strconv.FormatInt(ts, 10))
		req.Close = true
		return req, nil
	}

	resp, err := resilience.Do(ctx, c.httpCfg, c.circuit, buildRequest)
	if err != nil {
		return 0, fmt.Errorf("pushing %s: %w", payload.StationID(), err)
	}
	defer resp.Body.Close()

	c.mergeClock(resp)
	c.log.Infow("observation pushed",
		"station", payload.StationID(),
		"status", resp.StatusCode,
		"lamport", c.clock.Value(),
	)
	return resp.StatusCode, nil
}

// PushAll pushes each payload in order and stops at the first failure.
func (c *Client) PushAll(ctx context.Context, payloads []weather.Payload) error {
	for _, p := range payloads {
		if _, err := c.Push(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) mergeClock(resp *http.Response) {
	raw := resp.Header.Get(protocol.HeaderLamportClock)
	if raw == "" {
		return
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.log.Debugw("ignoring invalid server clock", "value", raw)
		return
	}
	c.clock.Update(ts)
}
