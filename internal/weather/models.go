package weather

import (
	"strings"
	"time"
)

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
)

// StationIDField is the payload field carrying the station identifier.
const StationIDField = "id"

// Payload is the field/value document pushed by a producer for one station.
type Payload map[string]any

// StationID returns the trimmed station identifier, or "" when absent or not a string.
func (p Payload) StationID() string {
	id, ok := p[StationIDField].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(id)
}

// Observation is one station's latest accepted reading.
type Observation struct {
	StationID        string    `json:"stationId"`
	Payload          Payload   `json:"payload"`
	LamportTimestamp int64     `json:"lamportTimestamp"`
	ReceivedAt       time.Time `json:"receivedAt"` // wall clock, retention only
}

// UpdateStatus is the outcome of offering an update to the store.
type UpdateStatus int

const (
	// UpdateStale means the update's Lamport timestamp was not newer than the
	// stored one; the store was left untouched.
	UpdateStale UpdateStatus = iota
	// UpdateAccepted replaced an existing observation.
	UpdateAccepted
	// UpdateCreated stored the first observation for a station.
	UpdateCreated
)

func (s UpdateStatus) String() string {
	switch s {
	case UpdateAccepted:
		return "accepted"
	case UpdateCreated:
		return "created"
	default:
		return "stale"
	}
}

// Applied reports whether the update mutated the store.
func (s UpdateStatus) Applied() bool {
	return s == UpdateAccepted || s == UpdateCreated
}
