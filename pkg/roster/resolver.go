package roster

import "strings"

// ResolveSender infers which roster participant authored a message that
// carries no explicit sender. Precedence, first match wins:
//
//  1. a participant whose attribute map carries an agent-state marker
//  2. a participant whose kind field indicates an agent role
//  3. a participant whose identity starts with the "agent-" prefix
//  4. the first remote (non-local) participant
//  5. the local participant
//
// The heuristic is best-effort: with multiple non-agent remote participants
// present it may misattribute. Returns false only for an empty roster.
func ResolveSender(participants []Participant) (Participant, bool) {
	for _, p := range participants {
		if _, ok := p.Attributes[AttrAgentState]; ok {
			return p, true
		}
	}
	for _, p := range participants {
		if p.Kind == KindAgent {
			return p, true
		}
	}
	for _, p := range participants {
		if hasAgentPrefix(p.Identity) {
			return p, true
		}
	}
	for _, p := range participants {
		if !p.Local {
			return p, true
		}
	}
	for _, p := range participants {
		if p.Local {
			return p, true
		}
	}
	return Participant{}, false
}

func hasAgentPrefix(identity string) bool {
	return strings.HasPrefix(identity, AgentIdentityPrefix)
}
