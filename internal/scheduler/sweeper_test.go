package scheduler

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/registry"
	"github.com/i474232898/weather-aggregation-server/internal/store"
	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

type fakeConn struct {
	closed bool
	err    error
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.err
}

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

func testConfig() Config {
	return Config{
		Interval:        time.Second,
		IdleInterval:    time.Second,
		IdleTimeout:     30 * time.Second,
		MaxAge:          30 * time.Second,
		MaxObservations: 2,
	}
}

func TestRunOnceClosesIdleAndTrimsStore(t *testing.T) {
	reg := registry.New()
	st := store.NewMemoryStore(0)

	idle := &fakeConn{}
	broken := &fakeConn{err: errors.New("reset by peer")}
	active := &fakeConn{}
	reg.Touch("idle", idle, "", t0)
	reg.Touch("broken", broken, "", t0)
	reg.Touch("active", active, "", t0.Add(50*time.Second))

	st.TryUpdate("expired", weather.Payload{"id": "expired"}, 1, t0)
	st.TryUpdate("a", weather.Payload{"id": "a"}, 1, t0.Add(40*time.Second))
	st.TryUpdate("b", weather.Payload{"id": "b"}, 1, t0.Add(41*time.Second))
	st.TryUpdate("c", weather.Payload{"id": "c"}, 1, t0.Add(42*time.Second))

	s := New(testConfig(), st, reg, zap.NewNop().Sugar())
	s.RunOnce(t0.Add(60 * time.Second))

	if !idle.closed || !broken.closed {
		t.Fatalf("expected both idle connections closed, idle=%v broken=%v", idle.closed, broken.closed)
	}
	if active.closed {
		t.Fatalf("active connection must stay open")
	}
	if got := reg.Len(); got != 1 {
		t.Fatalf("expected 1 session left, got %d", got)
	}

	if got := st.Len(); got != 2 {
		t.Fatalf("expected 2 observations left, got %d", got)
	}
	if _, err := st.Get("a"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected a trimmed as least recently updated, got %v", err)
	}
}

func TestSweepConnectionsReportsCount(t *testing.T) {
	reg := registry.New()
	reg.Watch("pending", &fakeConn{}, "", t0)

	s := New(testConfig(), store.NewMemoryStore(0), reg, zap.NewNop().Sugar())
	if got := s.SweepConnections(t0.Add(10 * time.Second)); got != 0 {
		t.Fatalf("expected nothing expired yet, got %d", got)
	}
	if got := s.SweepConnections(t0.Add(31 * time.Second)); got != 1 {
		t.Fatalf("expected pending connection expired, got %d", got)
	}
}

func TestStartRunsSweepsPeriodically(t *testing.T) {
	reg := registry.New()
	conn := &fakeConn{}
	reg.Touch("stale", conn, "", time.Now().Add(-time.Hour))

	cfg := testConfig()
	cfg.Interval = 20 * time.Millisecond
	cfg.IdleInterval = 20 * time.Millisecond

	s := New(cfg, store.NewMemoryStore(0), reg, zap.NewNop().Sugar())
	if err := s.Start(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for reg.Len() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("sweeper never expired the stale session")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestStartRejectsNonPositiveIntervals(t *testing.T) {
	cfg := testConfig()
	cfg.Interval = 0

	s := New(cfg, store.NewMemoryStore(0), registry.New(), zap.NewNop().Sugar())
	if err := s.Start(); err == nil {
		t.Fatalf("expected error for zero interval")
	}
}
