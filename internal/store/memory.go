package store

import (
	"container/list"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/weather-aggregation-server/internal/weather"
)

var (
	// ErrNotFound is returned when no observation is available.
	ErrNotFound = errors.New("no weather data")
)

type entry struct {
	obs  weather.Observation
	elem *list.Element
}

// MemoryStore is a concurrency-safe in-memory observation store holding the
// latest observation per station.
type MemoryStore struct {
	mu sync.RWMutex

	// key: station id
	data map[string]*entry

	// recency holds station ids, most recently updated at the front.
	recency *list.List

	// retention configuration
	maxEntries int // max number of stations retained (0 = unlimited)
}

// NewMemoryStore creates a new MemoryStore. If maxEntries is <= 0, it is
// treated as unlimited.
func NewMemoryStore(maxEntries int) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]*entry),
		recency:    list.New(),
		maxEntries: maxEntries,
	}
}

// TryUpdate stores the payload for a station unless an observation with an
// equal or newer Lamport timestamp is already held. Stale updates leave the
// store untouched.
func (s *MemoryStore) TryUpdate(stationID string, payload weather.Payload, lamport int64, now time.Time) weather.UpdateStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	obs := weather.Observation{
		StationID:        stationID,
		Payload:          payload,
		LamportTimestamp: lamport,
		ReceivedAt:       now,
	}

	if e, ok := s.data[stationID]; ok {
		if lamport <= e.obs.LamportTimestamp {
			return weather.UpdateStale
		}
		e.obs = obs
		s.recency.MoveToFront(e.elem)
		return weather.UpdateAccepted
	}

	s.data[stationID] = &entry{
		obs:  obs,
		elem: s.recency.PushFront(stationID),
	}
	s.enforceRetentionLocked(s.maxEntries)
	return weather.UpdateCreated
}

// Latest returns the most recently accepted observation across all stations.
func (s *MemoryStore) Latest() (weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	front := s.recency.Front()
	if front == nil {
		return weather.Observation{}, ErrNotFound
	}
	return s.data[front.Value.(string)].obs, nil
}

// Get returns the observation held for a station.
func (s *MemoryStore) Get(stationID string) (weather.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.data[stationID]
	if !ok {
		return weather.Observation{}, ErrNotFound
	}
	return e.obs, nil
}

// List returns all observations, most recently updated first.
func (s *MemoryStore) List() []weather.Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]weather.Observation, 0, len(s.data))
	for el := s.recency.Front(); el != nil; el = el.Next() {
		result = append(result, s.data[el.Value.(string)].obs)
	}
	return result
}

// EvictExpired removes observations received more than maxAge before now and
// returns how many were removed. A non-positive maxAge disables age eviction.
func (s *MemoryStore) EvictExpired(now time.Time, maxAge time.Duration) int {
	if maxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-maxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, e := range s.data {
		if e.obs.ReceivedAt.Before(cutoff) {
			s.removeLocked(id, e)
			removed++
		}
	}
	return removed
}

// EnforceRetention evicts least recently updated observations until at most
// max remain, and returns how many were removed. A non-positive max is a no-op.
func (s *MemoryStore) EnforceRetention(max int) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.enforceRetentionLocked(max)
}

// Len returns the number of stations held.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.data)
}

func (s *MemoryStore) enforceRetentionLocked(max int) int {
	if max <= 0 {
		return 0
	}
	removed := 0
	for len(s.data) > max {
		back := s.recency.Back()
		id := back.Value.(string)
		s.removeLocked(id, s.data[id])
		removed++
	}
	return removed
}

func (s *MemoryStore) removeLocked(id string, e *entry) {
	s.recency.Remove(e.elem)
	delete(s.data, id)
}
