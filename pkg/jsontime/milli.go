// Package jsontime provides a JSON-serializable time type for wire
// payloads that carry epoch-millisecond timestamps.
package jsontime

import (
	"encoding/json"
	"time"
)

// Milli is a time.Time that serializes to/from Unix milliseconds in JSON.
type Milli time.Time

// NowEpochMilli returns the current time as Milli.
func NowEpochMilli() Milli {
	return Milli(time.Now())
}

// FromEpochMilli converts an epoch-millisecond value to Milli.
func FromEpochMilli(ms int64) Milli {
	return Milli(time.UnixMilli(ms))
}

// Time returns the underlying time.Time value.
func (ep Milli) Time() time.Time {
	return time.Time(ep)
}

// EpochMilli returns the time as Unix milliseconds.
func (ep Milli) EpochMilli() int64 {
	return time.Time(ep).UnixMilli()
}

// UnmarshalJSON implements json.Unmarshaler.
func (ep *Milli) UnmarshalJSON(b []byte) error {
	var t int64
	if err := json.Unmarshal(b, &t); err != nil {
		return err
	}
	*ep = Milli(time.UnixMilli(t))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (ep Milli) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Time(ep).UnixMilli())
}
