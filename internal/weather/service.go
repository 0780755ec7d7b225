package weather

import (
	"time"

	"github.com/i474232898/weather-aggregation-server/internal/lamport"
)

// Service couples the observation store with the server's Lamport clock.
type Service struct {
	store Store
	clock *lamport.Clock
	now   func() time.Time
}

// NewService creates a new Service.
func NewService(store Store, clock *lamport.Clock) *Service {
	return &Service{
		store: store,
		clock: clock,
		now:   time.Now,
	}
}

// Observe merges a timestamp carried by an inbound request into the clock.
func (s *Service) Observe(received int64) int64 {
	return s.clock.Update(received)
}

// Put offers a parsed payload stamped with the producer's Lamport timestamp.
// The clock is merged before the store is consulted, and advanced once more
// for every processed update, stale or not.
func (s *Service) Put(payload Payload, ts int64) UpdateStatus {
	s.clock.Update(ts)

	status := s.store.TryUpdate(payload.StationID(), payload, ts, s.now().UTC())
	s.clock.Increment()
	return status
}

// Clock returns the current server clock value.
func (s *Service) Clock() int64 {
	return s.clock.Value()
}

// Latest returns the most recently accepted observation across all stations.
func (s *Service) Latest() (Observation, error) {
	return s.store.Latest()
}

// Station returns the observation held for one station.
func (s *Service) Station(id string) (Observation, error) {
	return s.store.Get(id)
}

// Observations returns all retained observations, most recently updated first.
func (s *Service) Observations() []Observation {
	return s.store.List()
}
