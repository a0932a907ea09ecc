package composite

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User data keys written by the built-in scripts.
const (
	DatesKey            = "dates"
	AcquisitionDatesKey = "acquisition_dates"
)

// DateLayout is the timestamp layout used in date lists.
const DateLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrMissingDates is returned when user data has no date list under a key.
var ErrMissingDates = errors.New("date list not found in user data")

// timeLayouts observed in scene and user data timestamps.
var timeLayouts = []string{
	DateLayout,
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// ParseTime parses a scene timestamp in any of the layouts the engine emits.
// The result is in UTC.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty time string")
	}

	var lastErr error
	for _, layout := range timeLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		lastErr = err
	}
	return time.Time{}, fmt.Errorf("failed to parse time %q: %w", s, lastErr)
}

// FormatTime formats t for a date list.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// WriteDates stores the scene dates under key as a JSON-encoded string list,
// in scene order. Existing user data under other keys is replaced.
func WriteDates(out *OutputMetadata, key string, scenes []Scene) error {
	dates := make([]string, len(scenes))
	for i, scene := range scenes {
		dates[i] = FormatTime(scene.Date)
	}

	encoded, err := json.Marshal(dates)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	out.UserData = map[string]any{key: string(encoded)}
	return nil
}

// ParseDates reads back a date list written by WriteDates.
func ParseDates(userData map[string]any, key string) ([]time.Time, error) {
	raw, ok := userData[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingDates, key)
	}

	encoded, ok := raw.(string)
	if !ok {
		return nil, fmt.Errorf("user data %q must be a JSON string, got %T", key, raw)
	}

	var values []string
	if err := json.Unmarshal([]byte(encoded), &values); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}

	dates := make([]time.Time, len(values))
	for i, v := range values {
		t, err := ParseTime(v)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", key, i, err)
		}
		dates[i] = t
	}
	return dates, nil
}
