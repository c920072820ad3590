// Package transport defines the boundary to the realtime session transport
// and provides two concrete implementations (WebSocket and WebRTC data
// channel).
//
// The transport is treated as a black box by the rest of the module: it
// exposes connect/disconnect, a readable participant roster, and
// name-addressed event subscription. Event names and publish primitives
// vary across transport versions; callers probe for alternates via
// SubscribeAny and for publish capabilities via type assertion.
package transport

import (
	"context"
	"errors"

	"github.com/voxlane/voxlane/pkg/roster"
)

// EventName identifies a subscribable session event.
type EventName string

// Canonical event names. Older transport versions expose some of these
// under different names; see Alternates.
const (
	EventDisconnected      EventName = "disconnected"
	EventConnectionState   EventName = "connection_state_changed"
	EventReconnecting      EventName = "reconnecting"
	EventParticipantJoined EventName = "participant_joined"
	EventParticipantLeft   EventName = "participant_left"
	EventDataReceived      EventName = "data_received"
	EventTranscription     EventName = "transcription_received"
	EventChatMessage       EventName = "chat_message"
	EventDeviceError       EventName = "device_error"
)

// Alternates maps each canonical event name to the names older transport
// versions use for the same event.
var Alternates = map[EventName][]EventName{
	EventDisconnected:      {"disconnect"},
	EventConnectionState:   {"connection_state"},
	EventReconnecting:      {"reconnect_attempt"},
	EventParticipantJoined: {"participant_connected"},
	EventParticipantLeft:   {"participant_disconnected"},
	EventDataReceived:      {"data"},
	EventTranscription:     {"transcription"},
	EventChatMessage:       {"chat"},
	EventDeviceError:       {"media_device_error"},
}

// ErrUnknownEvent is returned by Subscribe when the session's transport
// version does not support the given event name.
var ErrUnknownEvent = errors.New("transport: unknown event name")

// ErrNotConnected is returned by operations that require a live connection.
var ErrNotConnected = errors.New("transport: not connected")

// Event is one notification delivered to a subscriber. Only the fields
// relevant to the event's name are populated.
type Event struct {
	Name        EventName
	Participant *roster.Participant
	Topic       string
	ID          string
	Timestamp   int64 // epoch milliseconds, 0 when the source reports none
	Text        string
	Final       bool
	Data        []byte
	State       string
	Attempt     int
	Err         error
}

// Handler consumes session events. Handlers must not block.
type Handler func(Event)

// Detach removes a subscription. Detach is idempotent.
type Detach func()

// Session is a realtime connection to the remote room.
//
// Connect/Disconnect are owned by the session controller; event
// subscriptions and publish calls are shared with the aggregator and the
// outbound bridge.
type Session interface {
	// Connect opens the transport connection to serverURL using token.
	Connect(ctx context.Context, serverURL, token string) error

	// Disconnect closes the connection. Safe to call more than once.
	Disconnect() error

	// LocalParticipant returns the session owner's roster entry, or nil
	// before Connect succeeds.
	LocalParticipant() *roster.Participant

	// Participants returns a snapshot of the current roster.
	Participants() []roster.Participant

	// Subscribe registers a handler for the named event and returns a
	// detach function. Returns ErrUnknownEvent if this transport version
	// does not emit the event.
	Subscribe(name EventName, h Handler) (Detach, error)
}

// PublishOptions is the options-object form accepted by newer transports.
type PublishOptions struct {
	Topic    string
	Reliable bool
}

// OptionPublisher is the options-object publish primitive.
type OptionPublisher interface {
	PublishData(ctx context.Context, payload []byte, opts PublishOptions) error
}

// TopicPublisher is the positional-topic publish primitive.
type TopicPublisher interface {
	PublishToTopic(ctx context.Context, topic string, payload []byte) error
}

// FlagPublisher is the positional-topic-plus-reliable-flag primitive.
type FlagPublisher interface {
	PublishWithFlag(ctx context.Context, topic string, payload []byte, reliable bool) error
}

// RawPublisher publishes a payload with no topic routing at all.
type RawPublisher interface {
	PublishRaw(ctx context.Context, payload []byte) error
}

// ChatSender is the structured chat-message API exposed by transports that
// have one. The returned id identifies the message for later edits.
type ChatSender interface {
	SendChat(ctx context.Context, text string) (id string, err error)
}

// SubscribeAny subscribes under the canonical event name, falling back to
// its known alternates. It returns ErrUnknownEvent only when the session
// supports none of them.
func SubscribeAny(s Session, name EventName, h Handler) (Detach, error) {
	detach, err := s.Subscribe(name, h)
	if err == nil {
		return detach, nil
	}
	if !errors.Is(err, ErrUnknownEvent) {
		return nil, err
	}
	for _, alt := range Alternates[name] {
		detach, err = s.Subscribe(alt, h)
		if err == nil {
			return detach, nil
		}
		if !errors.Is(err, ErrUnknownEvent) {
			return nil, err
		}
	}
	return nil, ErrUnknownEvent
}
