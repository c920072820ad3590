package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"github.com/pion/webrtc/v3"

	"github.com/voxlane/voxlane/pkg/roster"
)

// WebRTCSession is a Session over a pion peer connection, with room events
// carried on a "chat" data channel. The SDP offer/answer exchange happens
// over HTTP against the room server.
//
// This is the older transport generation: it emits the legacy event names
// ("disconnect", "data", ...), has no device-error channel, and exposes the
// flag and raw publish primitives instead of the options-object form.
type WebRTCSession struct {
	*dispatcher

	httpClient *http.Client

	mu        sync.Mutex
	pc        *webrtc.PeerConnection
	dc        *webrtc.DataChannel
	local     *roster.Participant
	remote    map[string]roster.Participant
	closeOnce sync.Once
}

// NewWebRTCSession creates a disconnected WebRTC session.
func NewWebRTCSession() *WebRTCSession {
	return &WebRTCSession{
		dispatcher: newDispatcher(
			"disconnect",
			"connection_state",
			"reconnect_attempt",
			"participant_connected",
			"participant_disconnected",
			"data",
			"transcription",
			"chat",
		),
		httpClient: http.DefaultClient,
		remote:     make(map[string]roster.Participant),
	}
}

// Connect creates the peer connection, exchanges SDP with the room server
// over HTTP, and waits for the welcome frame on the data channel.
func (s *WebRTCSession) Connect(ctx context.Context, serverURL, token string) error {
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
		},
	})
	if err != nil {
		return fmt.Errorf("transport: create peer connection: %w", err)
	}

	dc, err := pc.CreateDataChannel("chat", nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("transport: create data channel: %w", err)
	}

	welcomeCh := make(chan *wsFrame, 1)

	dc.OnOpen(func() {
		slog.Debug("data channel opened")
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		var f wsFrame
		if err := json.Unmarshal(msg.Data, &f); err != nil {
			slog.Debug("data channel frame ignored", "err", err)
			return
		}
		if f.Type == "welcome" {
			select {
			case welcomeCh <- &f:
			default:
			}
			return
		}
		s.handleFrame(&f)
	})
	dc.OnClose(func() {
		s.emit(Event{Name: "disconnect"})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		s.emit(Event{Name: "connection_state", State: state.String()})
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("transport: create offer: %w", err)
	}
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("transport: set local description: %w", err)
	}
	<-webrtc.GatheringCompletePromise(pc)

	answer, err := s.exchangeSDP(ctx, serverURL, token, pc.LocalDescription().SDP)
	if err != nil {
		pc.Close()
		return err
	}
	if err := pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  answer,
	}); err != nil {
		pc.Close()
		return fmt.Errorf("transport: set remote description: %w", err)
	}

	select {
	case <-ctx.Done():
		pc.Close()
		return ctx.Err()
	case welcome := <-welcomeCh:
		if welcome.Participant == nil {
			pc.Close()
			return fmt.Errorf("transport: welcome frame without participant")
		}
		s.mu.Lock()
		s.pc = pc
		s.dc = dc
		local := *welcome.Participant
		local.Local = true
		s.local = &local
		for _, p := range welcome.Participants {
			if p.Identity != local.Identity {
				s.remote[p.Identity] = p
			}
		}
		s.closeOnce = sync.Once{}
		s.mu.Unlock()
		return nil
	}
}

// exchangeSDP posts the offer to the room server and returns the answer.
func (s *WebRTCSession) exchangeSDP(ctx context.Context, serverURL, token, sdp string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL, bytes.NewReader([]byte(sdp)))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("transport: sdp exchange: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transport: sdp exchange failed (HTTP %d): %s", resp.StatusCode, truncate(string(body), 200))
	}

	answer, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(answer), nil
}

func (s *WebRTCSession) handleFrame(f *wsFrame) {
	switch f.Type {
	case "participant_joined":
		if f.Participant == nil {
			return
		}
		s.mu.Lock()
		s.remote[f.Participant.Identity] = *f.Participant
		s.mu.Unlock()
		s.emit(Event{Name: "participant_connected", Participant: f.Participant})

	case "participant_left":
		if f.Participant == nil {
			return
		}
		s.mu.Lock()
		delete(s.remote, f.Participant.Identity)
		s.mu.Unlock()
		s.emit(Event{Name: "participant_disconnected", Participant: f.Participant})

	case "chat":
		s.emit(Event{
			Name:        "chat",
			Participant: s.lookup(f.From),
			Topic:       f.Topic,
			ID:          f.ID,
			Timestamp:   f.Timestamp,
			Text:        f.Message,
		})

	case "transcription":
		s.emit(Event{
			Name:        "transcription",
			Participant: s.lookup(f.From),
			ID:          f.ID,
			Timestamp:   f.Timestamp,
			Text:        f.Text,
			Final:       f.Final,
		})

	case "data":
		payload, err := base64.StdEncoding.DecodeString(f.Payload)
		if err != nil {
			slog.Debug("data frame with bad payload encoding", "err", err)
			return
		}
		s.emit(Event{
			Name:        "data",
			Participant: s.lookup(f.From),
			Topic:       f.Topic,
			Data:        payload,
		})

	case "reconnecting":
		s.emit(Event{Name: "reconnect_attempt", Attempt: f.Attempt})

	default:
		slog.Debug("data channel frame ignored", "type", f.Type)
	}
}

func (s *WebRTCSession) lookup(identity string) *roster.Participant {
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

// Disconnect closes the data channel and peer connection.
func (s *WebRTCSession) Disconnect() error {
	s.mu.Lock()
	pc, dc := s.pc, s.dc
	s.mu.Unlock()
	if pc == nil {
		return nil
	}
	var err error
	s.closeOnce.Do(func() {
		if dc != nil {
			dc.Close()
		}
		err = pc.Close()
	})
	return err
}

// LocalParticipant returns the session owner's roster entry.
func (s *WebRTCSession) LocalParticipant() *roster.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Participants returns the roster snapshot.
func (s *WebRTCSession) Participants() []roster.Participant {
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
func (s *WebRTCSession) Subscribe(name EventName, h Handler) (Detach, error) {
	return s.subscribe(name, h)
}

// PublishWithFlag implements the topic-plus-flag publish primitive.
func (s *WebRTCSession) PublishWithFlag(ctx context.Context, topic string, payload []byte, reliable bool) error {
	return s.send(&wsFrame{
		Type:     "publish",
		Topic:    topic,
		Reliable: reliable,
		Payload:  base64.StdEncoding.EncodeToString(payload),
	})
}

// PublishRaw implements the raw publish primitive.
func (s *WebRTCSession) PublishRaw(ctx context.Context, payload []byte) error {
	return s.send(&wsFrame{
		Type:    "publish",
		Payload: base64.StdEncoding.EncodeToString(payload),
	})
}

func (s *WebRTCSession) send(f *wsFrame) error {
	s.mu.Lock()
	dc := s.dc
	s.mu.Unlock()
	if dc == nil || dc.ReadyState() != webrtc.DataChannelStateOpen {
		return ErrNotConnected
	}
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return dc.Send(b)
}

var (
	_ Session       = (*WebRTCSession)(nil)
	_ FlagPublisher = (*WebRTCSession)(nil)
	_ RawPublisher  = (*WebRTCSession)(nil)
)
