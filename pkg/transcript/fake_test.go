package transcript

import (
	"context"
	"sync"

	"github.com/voxlane/voxlane/pkg/roster"
	"github.com/voxlane/voxlane/pkg/transport"
)

// fakeSession is an in-memory transport.Session for aggregator and bridge
// tests. It supports the canonical event names and records publishes.
type fakeSession struct {
	mu       sync.Mutex
	local    *roster.Participant
	roster   []roster.Participant
	handlers map[transport.EventName][]transport.Handler
	detached int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		local: &roster.Participant{Identity: "me", Local: true},
		roster: []roster.Participant{
			{Identity: "me", Local: true},
			{Identity: "agent-42"},
		},
		handlers: make(map[transport.EventName][]transport.Handler),
	}
}

func (f *fakeSession) Connect(ctx context.Context, serverURL, token string) error { return nil }
func (f *fakeSession) Disconnect() error                                          { return nil }
func (f *fakeSession) LocalParticipant() *roster.Participant                      { return f.local }
func (f *fakeSession) Participants() []roster.Participant                         { return f.roster }

func (f *fakeSession) Subscribe(name transport.EventName, h transport.Handler) (transport.Detach, error) {
	switch name {
	case transport.EventChatMessage, transport.EventTranscription, transport.EventDataReceived:
	default:
		return nil, transport.ErrUnknownEvent
	}
	f.mu.Lock()
	f.handlers[name] = append(f.handlers[name], h)
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.detached++
		f.mu.Unlock()
	}, nil
}

func (f *fakeSession) emit(ev transport.Event) {
	f.mu.Lock()
	hs := append([]transport.Handler(nil), f.handlers[ev.Name]...)
	f.mu.Unlock()
	for _, h := range hs {
		h(ev)
	}
}

// publishingSession adds configurable publish capabilities on top of the
// fake session for bridge strategy tests.
type publishingSession struct {
	*fakeSession

	optionsErr error
	topicErr   error

	mu        sync.Mutex
	published []publishRecord
}

type publishRecord struct {
	strategy string
	topic    string
	payload  []byte
}

func (p *publishingSession) record(strategy, topic string, payload []byte) {
	p.mu.Lock()
	p.published = append(p.published, publishRecord{strategy, topic, payload})
	p.mu.Unlock()
}

func (p *publishingSession) records() []publishRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]publishRecord(nil), p.published...)
}

func (p *publishingSession) PublishData(ctx context.Context, payload []byte, opts transport.PublishOptions) error {
	if p.optionsErr != nil {
		return p.optionsErr
	}
	p.record("options", opts.Topic, payload)
	return nil
}

func (p *publishingSession) PublishToTopic(ctx context.Context, topic string, payload []byte) error {
	if p.topicErr != nil {
		return p.topicErr
	}
	p.record("topic", topic, payload)
	return nil
}

var (
	_ transport.Session         = (*fakeSession)(nil)
	_ transport.OptionPublisher = (*publishingSession)(nil)
	_ transport.TopicPublisher  = (*publishingSession)(nil)
)
