package transport

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/voxlane/voxlane/pkg/roster"
)

// wsFrame is the JSON frame exchanged with the websocket room server.
type wsFrame struct {
	Type         string              `json:"type"`
	Participant  *roster.Participant `json:"participant,omitempty"`
	Participants []roster.Participant `json:"participants,omitempty"`
	From         string              `json:"from,omitempty"`
	Topic        string              `json:"topic,omitempty"`
	ID           string              `json:"id,omitempty"`
	Timestamp    int64               `json:"timestamp,omitempty"`
	Message      string              `json:"message,omitempty"`
	Text         string              `json:"text,omitempty"`
	Final        bool                `json:"final,omitempty"`
	Payload      string              `json:"payload,omitempty"` // base64
	Reliable     bool                `json:"reliable,omitempty"`
	State        string              `json:"state,omitempty"`
	Attempt      int                 `json:"attempt,omitempty"`
	Error        string              `json:"error,omitempty"`
}

// WebSocketSession is a Session over a JSON websocket stream.
//
// It supports the canonical event names and exposes the options-object and
// positional-topic publish primitives plus the structured chat API.
type WebSocketSession struct {
	*dispatcher

	dialTimeout time.Duration

	mu        sync.Mutex
	conn      *websocket.Conn
	local     *roster.Participant
	remote    map[string]roster.Participant
	closeCh   chan struct{}
	closeOnce sync.Once
}

// NewWebSocketSession creates a disconnected websocket session.
func NewWebSocketSession() *WebSocketSession {
	return &WebSocketSession{
		dispatcher: newDispatcher(
			EventDisconnected,
			EventConnectionState,
			EventReconnecting,
			EventParticipantJoined,
			EventParticipantLeft,
			EventDataReceived,
			EventTranscription,
			EventChatMessage,
			EventDeviceError,
		),
		dialTimeout: 15 * time.Second,
		remote:      make(map[string]roster.Participant),
	}
}

// Connect dials the room server and waits for the welcome frame carrying
// the local participant and the initial roster.
func (s *WebSocketSession) Connect(ctx context.Context, serverURL, token string) error {
	headers := http.Header{}
	headers.Set("Authorization", "Bearer "+token)
	headers.Set("X-Connect-Id", uuid.NewString())

	dialer := websocket.Dialer{HandshakeTimeout: s.dialTimeout}
	conn, resp, err := dialer.DialContext(ctx, serverURL, headers)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("transport: connect failed (HTTP %d): %w", resp.StatusCode, err)
		}
		return fmt.Errorf("transport: connect failed: %w", err)
	}

	var welcome wsFrame
	if err := conn.ReadJSON(&welcome); err != nil {
		conn.Close()
		return fmt.Errorf("transport: read welcome: %w", err)
	}
	if welcome.Type != "welcome" || welcome.Participant == nil {
		conn.Close()
		return fmt.Errorf("transport: unexpected first frame %q", welcome.Type)
	}

	s.mu.Lock()
	s.conn = conn
	local := *welcome.Participant
	local.Local = true
	s.local = &local
	for _, p := range welcome.Participants {
		if p.Identity != local.Identity {
			s.remote[p.Identity] = p
		}
	}
	s.closeCh = make(chan struct{})
	s.closeOnce = sync.Once{}
	s.mu.Unlock()

	go s.readLoop(conn, s.closeCh)
	return nil
}

// Disconnect closes the connection. The disconnected event fires from the
// read loop when the connection actually goes down.
func (s *WebSocketSession) Disconnect() error {
	s.mu.Lock()
	conn := s.conn
	closeCh := s.closeCh
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	s.closeOnce.Do(func() {
		close(closeCh)
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		conn.Close()
	})
	return nil
}

// LocalParticipant returns the session owner's roster entry.
func (s *WebSocketSession) LocalParticipant() *roster.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Participants returns the roster: the local participant followed by every
// known remote one.
func (s *WebSocketSession) Participants() []roster.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]roster.Participant, 0, len(s.remote)+1)
	if s.local != nil {
		out = append(out, *s.local)
	}
	for _, p := range s.remote {
		out = append(out, p)
	}
	return out
}

// Subscribe implements Session.
func (s *WebSocketSession) Subscribe(name EventName, h Handler) (Detach, error) {
	return s.subscribe(name, h)
}

// PublishData implements the options-object publish primitive.
func (s *WebSocketSession) PublishData(ctx context.Context, payload []byte, opts PublishOptions) error {
	return s.writeFrame(&wsFrame{
		Type:     "publish",
		Topic:    opts.Topic,
		Reliable: opts.Reliable,
		Payload:  base64.StdEncoding.EncodeToString(payload),
	})
}

// PublishToTopic implements the positional-topic publish primitive.
func (s *WebSocketSession) PublishToTopic(ctx context.Context, topic string, payload []byte) error {
	return s.PublishData(ctx, payload, PublishOptions{Topic: topic, Reliable: true})
}

// SendChat sends a structured chat message and returns its id.
func (s *WebSocketSession) SendChat(ctx context.Context, text string) (string, error) {
	id := uuid.NewString()
	err := s.writeFrame(&wsFrame{
		Type:      "chat",
		ID:        id,
		Timestamp: time.Now().UnixMilli(),
		Message:   text,
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *WebSocketSession) writeFrame(f *wsFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return ErrNotConnected
	}
	if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		if b, err := json.Marshal(f); err == nil {
			slog.Debug("ws send", "frame", truncate(string(b), 500))
		}
	}
	return s.conn.WriteJSON(f)
}

func (s *WebSocketSession) readLoop(conn *websocket.Conn, closeCh chan struct{}) {
	for {
		select {
		case <-closeCh:
			s.emit(Event{Name: EventDisconnected})
			return
		default:
		}

		var f wsFrame
		if err := conn.ReadJSON(&f); err != nil {
			select {
			case <-closeCh:
				s.emit(Event{Name: EventDisconnected})
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					s.emit(Event{Name: EventDisconnected})
				} else {
					s.emit(Event{Name: EventDisconnected, Err: err})
				}
			}
			return
		}

		if slog.Default().Enabled(context.Background(), slog.LevelDebug) {
			if b, err := json.Marshal(f); err == nil {
				slog.Debug("ws recv", "frame", truncate(string(b), 1000))
			}
		}

		s.handleFrame(&f)
	}
}

func (s *WebSocketSession) handleFrame(f *wsFrame) {
	switch f.Type {
	case "participant_joined":
		if f.Participant == nil {
			return
		}
		s.mu.Lock()
		s.remote[f.Participant.Identity] = *f.Participant
		s.mu.Unlock()
		s.emit(Event{Name: EventParticipantJoined, Participant: f.Participant})

	case "participant_left":
		if f.Participant == nil {
			return
		}
		s.mu.Lock()
		delete(s.remote, f.Participant.Identity)
		s.mu.Unlock()
		s.emit(Event{Name: EventParticipantLeft, Participant: f.Participant})

	case "participant_updated":
		// Attribute changes (e.g. the agent-state marker) replace the
		// roster entry in place without a join/leave event.
		if f.Participant == nil {
			return
		}
		s.mu.Lock()
		if _, ok := s.remote[f.Participant.Identity]; ok {
			s.remote[f.Participant.Identity] = *f.Participant
		}
		s.mu.Unlock()

	case "chat":
		s.emit(Event{
			Name:        EventChatMessage,
			Participant: s.lookup(f.From),
			Topic:       f.Topic,
			ID:          f.ID,
			Timestamp:   f.Timestamp,
			Text:        f.Message,
		})

	case "transcription":
		s.emit(Event{
			Name:        EventTranscription,
			Participant: s.lookup(f.From),
			ID:          f.ID,
			Timestamp:   f.Timestamp,
			Text:        f.Text,
			Final:       f.Final,
		})

	case "data":
		payload, err := base64.StdEncoding.DecodeString(f.Payload)
		if err != nil {
			slog.Debug("ws data frame with bad payload encoding", "err", err)
			return
		}
		s.emit(Event{
			Name:        EventDataReceived,
			Participant: s.lookup(f.From),
			Topic:       f.Topic,
			Data:        payload,
		})

	case "state":
		s.emit(Event{Name: EventConnectionState, State: f.State})

	case "reconnecting":
		s.emit(Event{Name: EventReconnecting, Attempt: f.Attempt})

	case "device_error":
		s.emit(Event{Name: EventDeviceError, Err: fmt.Errorf("%s", f.Error)})

	default:
		slog.Debug("ws frame ignored", "type", f.Type)
	}
}

// lookup resolves a frame's sender identity against the roster. Returns
// nil for unknown or absent identities; the caller falls back to the
// sender heuristic.
func (s *WebSocketSession) lookup(identity string) *roster.Participant {
	if identity == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.local != nil && s.local.Identity == identity {
		p := *s.local
		return &p
	}
	if p, ok := s.remote[identity]; ok {
		return &p
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}

var (
	_ Session         = (*WebSocketSession)(nil)
	_ OptionPublisher = (*WebSocketSession)(nil)
	_ TopicPublisher  = (*WebSocketSession)(nil)
	_ ChatSender      = (*WebSocketSession)(nil)
)
