package session

import (
	"encoding/json"
	"testing"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Idle, "idle"},
		{Connecting, "connecting"},
		{Active, "active"},
		{Disconnecting, "disconnecting"},
		{Disconnected, "disconnected"},
		{State(99), "unknown"},
	}
	for _, tc := range tests {
		if got := tc.state.String(); got != tc.want {
			t.Errorf("State(%d).String() = %q; want %q", tc.state, got, tc.want)
		}
	}
}

func TestState_JSONRoundTrip(t *testing.T) {
	for _, s := range []State{Idle, Connecting, Active, Disconnecting, Disconnected} {
		b, err := json.Marshal(s)
		if err != nil {
			t.Fatalf("Marshal(%v): %v", s, err)
		}
		var out State
		if err := json.Unmarshal(b, &out); err != nil {
			t.Fatalf("Unmarshal(%s): %v", b, err)
		}
		if out != s {
			t.Errorf("round trip %v -> %s -> %v", s, b, out)
		}
	}
}

func TestState_UnmarshalUnknown(t *testing.T) {
	var s State
	if err := json.Unmarshal([]byte(`"no-such-state"`), &s); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if s != Disconnected {
		t.Errorf("unknown state = %v; want disconnected", s)
	}
}
