package transcript

import (
	"context"
	"log/slog"

	"github.com/voxlane/voxlane/pkg/signal"
	"github.com/voxlane/voxlane/pkg/transport"
	"github.com/voxlane/voxlane/pkg/wire"
)

// Chat topic identifiers. Current senders publish on TopicChat; the
// legacy topic is still written so older agents keep receiving input.
const (
	TopicChat       = "lk.chat"
	TopicChatLegacy = "lk-chat-topic"
)

// UI-facing signal names raised by the bridge.
const (
	SignalProcessingStarted = "processing_started"
	SignalLocalEcho         = "local_echo"
)

// Bridge publishes user input across the known topic conventions and feeds
// an optimistic local echo into the aggregator. Sending is best-effort
// end to end: no publish failure is surfaced to the user, and the echo is
// pushed regardless of transport outcome.
type Bridge struct {
	sess transport.Session
	agg  *Aggregator
	hub  *signal.Hub
	log  *slog.Logger
}

// NewBridge wires a bridge to a live session, the aggregator that shows
// the echo, and the hub that carries the UI signals.
func NewBridge(sess transport.Session, agg *Aggregator, hub *signal.Hub, log *slog.Logger) *Bridge {
	if log == nil {
		log = slog.Default()
	}
	return &Bridge{sess: sess, agg: agg, hub: hub, log: log}
}

// publishStrategy is one calling convention against whichever publish
// primitive the transport exposes. Strategies return an error instead of
// panicking; the caller stops at the first success.
type publishStrategy struct {
	name string
	fn   func(ctx context.Context, topic string, payload []byte) error
}

// strategies builds the ordered candidate list from the session's
// capabilities: options-object form, positional-topic form, topic-plus-
// flag form, then raw-payload-only form.
func (b *Bridge) strategies() []publishStrategy {
	var out []publishStrategy
	if p, ok := b.sess.(transport.OptionPublisher); ok {
		out = append(out, publishStrategy{"options", func(ctx context.Context, topic string, payload []byte) error {
			return p.PublishData(ctx, payload, transport.PublishOptions{Topic: topic, Reliable: true})
		}})
	}
	if p, ok := b.sess.(transport.TopicPublisher); ok {
		out = append(out, publishStrategy{"topic", func(ctx context.Context, topic string, payload []byte) error {
			return p.PublishToTopic(ctx, topic, payload)
		}})
	}
	if p, ok := b.sess.(transport.FlagPublisher); ok {
		out = append(out, publishStrategy{"topic+flag", func(ctx context.Context, topic string, payload []byte) error {
			return p.PublishWithFlag(ctx, topic, payload, true)
		}})
	}
	if p, ok := b.sess.(transport.RawPublisher); ok {
		out = append(out, publishStrategy{"raw", func(ctx context.Context, topic string, payload []byte) error {
			return p.PublishRaw(ctx, payload)
		}})
	}
	return out
}

// publishTopic tries each strategy in order until one succeeds. Reports
// whether any did; exhaustion abandons the topic silently.
func (b *Bridge) publishTopic(ctx context.Context, topic string, payload []byte) bool {
	for _, s := range b.strategies() {
		if err := s.fn(ctx, topic, payload); err != nil {
			b.log.Debug("publish attempt failed", "topic", topic, "strategy", s.name, "err", err)
			continue
		}
		return true
	}
	b.log.Debug("all publish conventions failed, topic abandoned", "topic", topic)
	return false
}

// Send delivers user input. It tries the structured chat API when the
// transport has one, then best-effort publishes the encoded text on both
// chat topics, raising the processing-started signal after the first topic
// and the local echo after the second.
func (b *Bridge) Send(ctx context.Context, text string) {
	if cs, ok := b.sess.(transport.ChatSender); ok {
		if _, err := cs.SendChat(ctx, text); err != nil {
			b.log.Debug("structured chat send failed", "err", err)
		}
	}

	payload, err := wire.NewChatEnvelope(text).Encode()
	if err != nil {
		// Encoding a plain string envelope cannot realistically fail;
		// fall back to the raw text so the topics still get bytes.
		payload = []byte(text)
	}

	b.publishTopic(ctx, TopicChat, payload)
	if b.hub != nil {
		b.hub.Emit(SignalProcessingStarted, text)
	}

	b.publishTopic(ctx, TopicChatLegacy, payload)
	b.agg.PushEcho(text)
	if b.hub != nil {
		b.hub.Emit(SignalLocalEcho, text)
	}
}
