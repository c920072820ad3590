// Package session owns the realtime session lifecycle: credential
// acquisition, the connection state machine, start/stop race safety, and
// diagnostic event taps.
package session

import "encoding/json"

// State is the lifecycle state of a session controller.
type State int

const (
	// Idle is the pre-first-start state.
	Idle State = iota
	Connecting
	Active
	Disconnecting
	Disconnected
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Disconnecting:
		return "disconnecting"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	switch name {
	case "idle":
		*s = Idle
	case "connecting":
		*s = Connecting
	case "active":
		*s = Active
	case "disconnecting":
		*s = Disconnecting
	default:
		*s = Disconnected
	}
	return nil
}
