package wire

import (
	"encoding/json"

	"github.com/google/uuid"

	"github.com/voxlane/voxlane/pkg/jsontime"
)

// ChatEnvelope is the JSON envelope published on the chat topics.
// The same shape is used by current and legacy senders; legacy ones omit
// the edit timestamp.
type ChatEnvelope struct {
	ID            string          `json:"id"`
	Timestamp     jsontime.Milli  `json:"timestamp"`
	Message       string          `json:"message"`
	EditTimestamp *jsontime.Milli `json:"editTimestamp,omitempty"`
}

// NewChatEnvelope builds an envelope for an outbound message.
func NewChatEnvelope(text string) *ChatEnvelope {
	return &ChatEnvelope{
		ID:        uuid.NewString(),
		Timestamp: jsontime.NowEpochMilli(),
		Message:   text,
	}
}

// Encode serializes the envelope for publication.
func (e *ChatEnvelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// ParseChatEnvelope parses a chat-topic payload. It reports ok=false for
// payloads that are not a chat envelope (missing id or message); those are
// handed to DecodePayload instead.
func ParseChatEnvelope(raw []byte) (*ChatEnvelope, bool) {
	var e ChatEnvelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if e.ID == "" || e.Message == "" {
		return nil, false
	}
	return &e, true
}
