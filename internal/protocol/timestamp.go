package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// wireTimeLayout matches the ISO form produced by JavaScript's Date#toJSON.
const wireTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Timestamp accepts either an RFC 3339 string or epoch milliseconds and always
// encodes as an RFC 3339 UTC string with millisecond precision.
type Timestamp time.Time

// NewTimestamp converts t to a Timestamp.
func NewTimestamp(t time.Time) *Timestamp {
	ts := Timestamp(t)
	return &ts
}

// Time returns the underlying time.
func (t Timestamp) Time() time.Time {
	return time.Time(t)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(t).UTC().Format(wireTimeLayout))
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 {
		return fmt.Errorf("empty timestamp")
	}

	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", time.DateOnly} {
			if parsed, err := time.Parse(layout, s); err == nil {
				*t = Timestamp(parsed)
				return nil
			}
		}
		return fmt.Errorf("invalid timestamp %q", s)
	}

	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	*t = Timestamp(time.UnixMilli(int64(ms)))
	return nil
}
