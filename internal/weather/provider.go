package weather

import (
	"context"
	"time"
)

// StationSpec identifies a station whose readings are sourced from an
// external provider rather than a feed file.
type StationSpec struct {
	ID  string
	Lat float64
	Lon float64
}

// Provider abstracts an external weather data source that can produce a
// payload ready to be pushed to the aggregation server.
type Provider interface {
	Name() string
	Fetch(ctx context.Context, station StationSpec) (Payload, error)
}

// Store is the contract the observation store must satisfy.
type Store interface {
	TryUpdate(stationID string, payload Payload, lamport int64, now time.Time) UpdateStatus
	Latest() (Observation, error)
	Get(stationID string) (Observation, error)
	List() []Observation
	EvictExpired(now time.Time, maxAge time.Duration) int
	EnforceRetention(max int) int
	Len() int
}
