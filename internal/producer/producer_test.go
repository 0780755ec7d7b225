package producer

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/lamport"
	"github.com/i474232898/weather-aggregation-server/internal/registry"
	"github.com/i474232898/weather-aggregation-server/internal/resilience"
	"github.com/i474232898/weather-aggregation-server/internal/server"
	"github.com/i474232898/weather-aggregation-server/internal/store"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

var fastRetry = resilience.RetryConfig{Attempts: 3, Delay: 10 * time.Millisecond}

func startAggregator(t *testing.T) (string, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore(20)
	srv := server.New(weather.NewService(st, lamport.New()), registry.New(), server.Options{}, zap.NewNop().Sugar())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go srv.Serve(ln)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return ln.Addr().String(), st
}

func TestPushAgainstAggregator(t *testing.T) {
	addr, st := startAggregator(t)
	clock := lamport.New()

	c, err := New(Config{ServerAddr: addr, Retry: fastRetry}, &http.Client{Timeout: 2 * time.Second}, clock, zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := c.Push(context.Background(), weather.Payload{"id": "IDS60901", "air_temp": 15.5})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}

	status, err = c.Push(context.Background(), weather.Payload{"id": "IDS60901", "air_temp": 16.0})
	if err != nil || status != http.StatusOK {
		t.Fatalf("expected 200, got %d (%v)", status, err)
	}

	obs, err := st.Get("IDS60901")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if obs.Payload["air_temp"] != 16.0 {
		t.Fatalf("second push not applied: %+v", obs)
	}
	// The producer clock absorbed the server's reply, so it is ahead of
	// the timestamp it last sent.
	if clock.Value() <= obs.LamportTimestamp {
		t.Fatalf("expected clock %d beyond sent timestamp %d", clock.Value(), obs.LamportTimestamp)
	}
}

func TestPushRetriesWithFreshTimestamps(t *testing.T) {
	var (
		calls  atomic.Int32
		mu     sync.Mutex
		stamps []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		stamps = append(stamps, r.Header.Get("Lamport-Clock"))
		mu.Unlock()
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c, err := New(Config{ServerAddr: srv.URL, Retry: fastRetry}, srv.Client(), lamport.New(), zap.NewNop().Sugar())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	status, err := c.Push(context.Background(), weather.Payload{"id": "A"})
	if err != nil || status != http.StatusOK {
		t.Fatalf("expected eventual 200, got %d (%v)", status, err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(stamps) != 3 || stamps[0] != "1" || stamps[1] != "2" || stamps[2] != "3" {
		t.Fatalf("expected one increment per attempt, got %v", stamps)
	}
}

func TestPushFailsAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c, _ := New(Config{ServerAddr: srv.URL, Retry: fastRetry}, srv.Client(), lamport.New(), zap.NewNop().Sugar())
	_, err := c.Push(context.Background(), weather.Payload{"id": "A"})
	if !resilience.IsStatus(err, http.StatusBadRequest) {
		t.Fatalf("expected 400 failure, got %v", err)
	}
}

func TestPushRequiresStationID(t *testing.T) {
	c, _ := New(Config{ServerAddr: "localhost:4567"}, http.DefaultClient, lamport.New(), zap.NewNop().Sugar())
	if _, err := c.Push(context.Background(), weather.Payload{"air_temp": 1}); !errors.Is(err, weather.ErrMissingStationID) {
		t.Fatalf("expected ErrMissingStationID, got %v", err)
	}
}
