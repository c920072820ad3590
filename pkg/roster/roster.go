// Package roster models the live set of participants in a realtime session
// and the heuristic used to attribute sender-less messages to one of them.
package roster

// AttrAgentState is the participant attribute key that a remote
// conversational agent sets to advertise its current state
// (e.g. "listening", "thinking", "speaking").
const AttrAgentState = "lk.agent.state"

// AgentIdentityPrefix marks participant identities reserved for agents.
const AgentIdentityPrefix = "agent-"

// KindAgent is the participant kind reported for agent processes by
// transports that carry a kind field.
const KindAgent = "agent"

// Participant is one roster entry. Entries are created and removed by
// transport roster events; consumers only read them.
type Participant struct {
	// Identity is the stable unique identity string.
	Identity string `json:"identity"`

	// Name is the display name, if any.
	Name string `json:"name,omitempty"`

	// Local is true for the participant that owns this client session.
	Local bool `json:"local,omitempty"`

	// Kind is the transport-reported participant role ("standard",
	// "agent", ...). Empty when the transport version has no kind field.
	Kind string `json:"kind,omitempty"`

	// Attributes is a free-form key/value signal map.
	Attributes map[string]string `json:"attributes,omitempty"`
}

// IsAgent reports whether the participant looks like a remote
// conversational agent by any of the known signals.
func (p Participant) IsAgent() bool {
	if _, ok := p.Attributes[AttrAgentState]; ok {
		return true
	}
	if p.Kind == KindAgent {
		return true
	}
	return hasAgentPrefix(p.Identity)
}
