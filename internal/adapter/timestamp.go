package adapter

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

// ParseTimestamp accepts RFC3339 strings with or without fractional
// seconds.
func ParseTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("missing timestamp")
	}

	if ts, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return ts.UTC(), nil
	}

	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, err
	}
	return ts.UTC(), nil
}

// EpochMillis converts a Unix millisecond timestamp. Zero stays the zero
// time.
func EpochMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// FlexibleTime decodes timestamps stored as RFC3339 strings, epoch
// milliseconds or epoch seconds.
func FlexibleTime(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		if ts, err := ParseTimestamp(text); err == nil {
			return ts
		}
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return epoch(n)
		}
		return time.Time{}
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return epoch(int64(number))
	}
	return time.Time{}
}

// epoch treats values below 1e11 as seconds.
func epoch(n int64) time.Time {
	if n <= 0 {
		return time.Time{}
	}
	if n < 100_000_000_000 {
		return time.Unix(n, 0).UTC()
	}
	return EpochMillis(n)
}
