package weather

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/segmentio/encoding/json"
)

var (
	// ErrEmptyPayload is returned for a body with no content at all.
	ErrEmptyPayload = errors.New("empty payload")
	// ErrInvalidPayload is returned when the body is not a JSON object.
	ErrInvalidPayload = errors.New("invalid payload")
	// ErrMissingStationID is returned when a payload or feed record has no id.
	ErrMissingStationID = errors.New("missing station id")
)

// ParsePayload strictly decodes a PUT body into a Payload. The body must be a
// single JSON object with a non-empty string "id" field.
func ParsePayload(body []byte) (Payload, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, ErrEmptyPayload
	}

	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrInvalidPayload)
	}

	p := Payload(obj)
	if p.StationID() == "" {
		return nil, ErrMissingStationID
	}
	return p, nil
}

// Encode serializes the payload as a JSON object.
func (p Payload) Encode() ([]byte, error) {
	return json.Marshal(p)
}
