package weather

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
)

// ParseFeed converts a flat key:value feed into payloads. Every "id" line
// starts a new record; keys seen before the first id are an error.
// Lines without a colon or with an empty key are skipped. Values that parse as
// numbers become JSON numbers, except the id which always stays a string.
func ParseFeed(r io.Reader) ([]Payload, error) {
	var (
		records []Payload
		current Payload
		lineNo  int
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}

		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if key == "" {
			continue
		}

		if key == StationIDField {
			if value == "" {
				return nil, fmt.Errorf("line %d: %w", lineNo, ErrMissingStationID)
			}
			current = Payload{StationIDField: value}
			records = append(records, current)
			continue
		}

		if current == nil {
			return nil, fmt.Errorf("line %d: key %q before first id: %w", lineNo, key, ErrMissingStationID)
		}
		current[key] = feedValue(value)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}

	if len(records) == 0 {
		return nil, ErrMissingStationID
	}
	return records, nil
}

func feedValue(v string) any {
	f, err := strconv.ParseFloat(v, 64)
	if err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return v
}
