// Package chase provides a client for the Chase self-directed investing web
// interface. Data is read from the JSON the site's own pages fetch; orders are
// placed by driving the order-entry form.
package chase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexibleFloat handles JSON fields that can be a number, a numeric string,
// or an object like {"value": 1.5}.
type FlexibleFloat float64

// UnmarshalJSON implements custom unmarshaling for FlexibleFloat.
func (f *FlexibleFloat) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = 0
		return nil
	}

	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		*f = FlexibleFloat(num)
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.TrimSpace(strings.NewReplacer(",", "", "$", "").Replace(s))
		if s == "" {
			*f = 0
			return nil
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return fmt.Errorf("parsing %q as number: %w", s, err)
		}
		*f = FlexibleFloat(v)
		return nil
	}

	var obj struct {
		Value float64 `json:"value"`
	}
	if err := json.Unmarshal(data, &obj); err == nil {
		*f = FlexibleFloat(obj.Value)
		return nil
	}

	return fmt.Errorf("cannot decode %s as number", data)
}

// Float64 returns f as a float64.
func (f FlexibleFloat) Float64() float64 { return float64(f) }

// FlexibleString accepts a JSON string or number. Account ids arrive as either.
type FlexibleString string

// UnmarshalJSON implements custom unmarshaling for FlexibleString.
func (s *FlexibleString) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		*s = FlexibleString(str)
		return nil
	}
	var num json.Number
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&num); err != nil {
		return fmt.Errorf("cannot decode %s as string", data)
	}
	*s = FlexibleString(num.String())
	return nil
}

// Timestamp parses the site's "2006-01-02T15:04:05.000Z" timestamps.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON implements custom unmarshaling for Timestamp.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes the timestamp in RFC 3339 form.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339Nano))
}
