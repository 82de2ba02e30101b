package session

import (
	"encoding/json"
	"fmt"
	"time"
)

// isoLayout is the local, zone-less ISO-8601 form used throughout the log
// files (microsecond precision).
const isoLayout = "2006-01-02T15:04:05.000000"

// parseLayouts are accepted when reading timestamps back.
var parseLayouts = []string{
	isoLayout,
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	time.RFC3339,
}

// Timestamp is a time.Time that serializes as a zone-less local ISO-8601 string.
type Timestamp struct {
	time.Time
}

// Now returns the current time as a Timestamp.
func Now() Timestamp {
	return Timestamp{time.Now()}
}

// String formats t in the log layout.
func (t Timestamp) String() string {
	return t.Local().Format(isoLayout)
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// ParseTimestamp parses any of the accepted layouts. Zone-less values are read
// in local time.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range parseLayouts {
		if v, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Timestamp{v}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("timestamp: unrecognized format %q", s)
}
