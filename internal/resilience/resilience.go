// Package resilience wraps outbound HTTP exchanges in bounded fixed-delay
// retries and a circuit breaker.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avast/retry-go"
	"github.com/sony/gobreaker"
)

// RetryConfig controls the retry loop.
type RetryConfig struct {
	// Attempts is the total number of tries, first one included.
	Attempts uint
	// Delay is the fixed pause between tries.
	Delay time.Duration
}

// HTTPClientConfig bundles HTTP client and resilience settings.
type HTTPClientConfig struct {
	Client *http.Client
	Retry  RetryConfig

	// Retryable decides whether a failed attempt is tried again. When nil,
	// every failure except an open circuit or a cancelled context is retried.
	Retryable func(error) bool

	// OnRetry is called before each new attempt.
	OnRetry func(attempt uint, err error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code %d", e.Code)
}

var (
	// ErrCircuitOpen is returned when the breaker refuses the call.
	ErrCircuitOpen = errors.New("circuit breaker open")

	errNoHTTPClient  = errors.New("http client not configured")
	errInvalidConfig = errors.New("invalid retry configuration")
)

// NewCircuitBreaker returns a breaker with the settings used for every
// aggregation-server peer. Responses with one of the expected status codes
// are valid answers and do not count towards tripping the breaker.
func NewCircuitBreaker(name string, expected ...int) *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:         name,
		MaxRequests:  5,
		Interval:     1 * time.Minute,
		Timeout:      30 * time.Second,
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			for _, code := range expected {
				if IsStatus(err, code) {
					return true
				}
			}
			return false
		},
	})
}

// Do executes the request built by buildRequest with retries and the circuit
// breaker. buildRequest is called once per attempt. On success the caller owns
// the response body; on failure the last attempt's error is returned.
func Do(
	ctx context.Context,
	cfg HTTPClientConfig,
	cb *gobreaker.CircuitBreaker,
	buildRequest func() (*http.Request, error),
) (*http.Response, error) {
	if cfg.Client == nil {
		return nil, errNoHTTPClient
	}
	if cfg.Retry.Attempts == 0 || cfg.Retry.Delay < 0 {
		return nil, errInvalidConfig
	}

	var (
		resp    *http.Response
		lastErr error
	)

	attempt := func() error {
		if err := ctx.Err(); err != nil {
			lastErr = err
			return err
		}

		req, err := buildRequest()
		if err != nil {
			lastErr = err
			return err
		}
		req = req.WithContext(ctx)

		result, err := cb.Execute(func() (interface{}, error) {
			r, execErr := cfg.Client.Do(req)
			if execErr != nil {
				return nil, execErr
			}
			if r.StatusCode < 200 || r.StatusCode >= 300 {
				r.Body.Close()
				return nil, &StatusError{Code: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				err = fmt.Errorf("%w: %v", ErrCircuitOpen, err)
			}
			lastErr = err
			return err
		}

		r, ok := result.(*http.Response)
		if !ok {
			lastErr = fmt.Errorf("unexpected result type from circuit breaker")
			return lastErr
		}
		resp = r
		return nil
	}

	err := retry.Do(attempt,
		retry.Attempts(cfg.Retry.Attempts),
		retry.Delay(cfg.Retry.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
				return false
			}
			if cfg.Retryable != nil {
				return cfg.Retryable(err)
			}
			return true
		}),
		retry.OnRetry(func(n uint, err error) {
			if cfg.OnRetry != nil {
				cfg.OnRetry(n, err)
			}
		}),
	)
	if err != nil {
		return nil, lastErr
	}
	return resp, nil
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
