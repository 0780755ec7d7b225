// Package scheduler runs the periodic eviction sweeps of the aggregation
// server.
package scheduler

import (
	"fmt"
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/i474232898/weather-aggregation-server/internal/registry"
)

// ObservationStore is the part of the store the sweeper trims.
type ObservationStore interface {
	EvictExpired(now time.Time, maxAge time.Duration) int
	EnforceRetention(max int) int
}

// SessionRegistry hands back idle sessions for closing.
type SessionRegistry interface {
	SweepIdle(now time.Time, idleTimeout time.Duration) []registry.Expired
}

// Config holds sweep intervals and eviction thresholds.
type Config struct {
	// Interval between data (age + retention) sweeps.
	Interval time.Duration
	// IdleInterval between connection sweeps.
	IdleInterval time.Duration

	IdleTimeout     time.Duration
	MaxAge          time.Duration
	MaxObservations int
}

// Sweeper periodically expires idle connections and trims the store.
type Sweeper struct {
	scheduler *gocron.Scheduler
	store     ObservationStore
	registry  SessionRegistry
	cfg       Config
	log       *zap.SugaredLogger
	now       func() time.Time
}

// New creates a new Sweeper.
func New(cfg Config, store ObservationStore, reg SessionRegistry, log *zap.SugaredLogger) *Sweeper {
	return &Sweeper{
		scheduler: gocron.NewScheduler(time.UTC),
		store:     store,
		registry:  reg,
		cfg:       cfg,
		log:       log,
		now:       time.Now,
	}
}

// Start schedules both sweeps and starts the underlying scheduler.
func (s *Sweeper) Start() error {
	if s.cfg.Interval <= 0 || s.cfg.IdleInterval <= 0 {
		return fmt.Errorf("sweeper: intervals must be positive (data %s, idle %s)", s.cfg.Interval, s.cfg.IdleInterval)
	}

	_, err := s.scheduler.Every(s.cfg.IdleInterval).SingletonMode().Do(func() {
		s.SweepConnections(s.now())
	})
	if err != nil {
		return err
	}

	_, err = s.scheduler.Every(s.cfg.Interval).SingletonMode().Do(func() {
		s.SweepData(s.now())
	})
	if err != nil {
		return err
	}

	s.scheduler.StartAsync()
	s.log.Infow("sweeper started",
		"interval", s.cfg.Interval,
		"idleInterval", s.cfg.IdleInterval,
		"idleTimeout", s.cfg.IdleTimeout,
	)
	return nil
}

// Stop stops the scheduler and cancels any future sweeps.
func (s *Sweeper) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}

// RunOnce performs one full cycle: connections first, then data.
func (s *Sweeper) RunOnce(now time.Time) {
	s.SweepConnections(now)
	s.SweepData(now)
}

// SweepConnections closes every connection idle beyond the idle timeout and
// returns how many sessions were expired. A failing close is logged and the
// sweep continues.
func (s *Sweeper) SweepConnections(now time.Time) int {
	expired := s.registry.SweepIdle(now, s.cfg.IdleTimeout)
	for _, e := range expired {
		if err := e.Conn.Close(); err != nil {
			s.log.Warnw("closing idle connection failed", "session", e.ID, "remote", e.RemoteAddr, "error", err)
			continue
		}
		s.log.Infow("closed idle connection",
			"session", e.ID,
			"remote", e.RemoteAddr,
			"producer", e.Producer,
			"idle", now.Sub(e.LastActiveAt),
		)
	}
	return len(expired)
}

// SweepData evicts expired observations and enforces the retention bound.
func (s *Sweeper) SweepData(now time.Time) (expired, trimmed int) {
	expired = s.store.EvictExpired(now, s.cfg.MaxAge)
	trimmed = s.store.EnforceRetention(s.cfg.MaxObservations)
	if expired > 0 || trimmed > 0 {
		s.log.Debugw("store swept", "expired", expired, "trimmed", trimmed)
	}
	return expired, trimmed
}
