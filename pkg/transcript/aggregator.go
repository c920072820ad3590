package transcript

import (
	"errors"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/voxlane/voxlane/pkg/roster"
	"github.com/voxlane/voxlane/pkg/transport"
	"github.com/voxlane/voxlane/pkg/wire"
)

const (
	// dedupWindowMillis is the maximum timestamp delta under which two
	// adjacent same-text, same-sender messages are considered duplicates.
	dedupWindowMillis = 2000

	// echoWindowSize is how many recent echo texts are remembered to
	// suppress rapid double submits.
	echoWindowSize = 5
)

// Aggregator merges messages from the five session sources into one
// ordered, deduplicated sequence. The merged sequence is recomputed
// synchronously on every input change; consumers read it whole via
// Messages.
//
// Safe for concurrent use.
type Aggregator struct {
	log *slog.Logger
	now func() time.Time

	mu            sync.Mutex
	sources       map[SourceKind][]Message
	index         map[SourceKind]map[string]int
	echoTexts     []string
	localIdentity string
	detaches      []transport.Detach
	onChange      func()
}

// AggregatorOption configures the Aggregator.
type AggregatorOption func(*Aggregator)

// WithLogger sets the logger used for dropped-payload diagnostics.
func WithLogger(log *slog.Logger) AggregatorOption {
	return func(a *Aggregator) { a.log = log }
}

// WithClock overrides the time source used for synthesized timestamps.
func WithClock(now func() time.Time) AggregatorOption {
	return func(a *Aggregator) { a.now = now }
}

// NewAggregator creates an empty aggregator.
func NewAggregator(opts ...AggregatorOption) *Aggregator {
	a := &Aggregator{
		log:     slog.Default(),
		now:     time.Now,
		sources: make(map[SourceKind][]Message),
		index:   make(map[SourceKind]map[string]int),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnChange registers a single hook invoked after every input change.
// Purely a consumer convenience; Messages is the contract.
func (a *Aggregator) OnChange(fn func()) {
	a.mu.Lock()
	a.onChange = fn
	a.mu.Unlock()
}

// Ingest adds a normalized message from the given source.
//
// A same-ID re-arrival on a revision-capable source replaces the earlier
// text and records the edit timestamp. On other sources it is simply
// appended; the merge-time dedup rule decides its fate.
func (a *Aggregator) Ingest(src SourceKind, msg Message) {
	msg.Source = src
	a.mu.Lock()
	if src.supportsRevision() && msg.ID != "" {
		if i, ok := a.index[src][msg.ID]; ok {
			prev := &a.sources[src][i]
			if prev.Text != msg.Text {
				prev.Text = msg.Text
				prev.EditTimestamp = msg.Timestamp
			}
			a.mu.Unlock()
			a.changed()
			return
		}
	}
	if a.index[src] == nil {
		a.index[src] = make(map[string]int)
	}
	if msg.ID != "" {
		a.index[src][msg.ID] = len(a.sources[src])
	}
	a.sources[src] = append(a.sources[src], msg)
	a.mu.Unlock()
	a.changed()
}

// PushEcho synthesizes a local-echo message for text the user just sent.
// An echo whose exact text matches one of the last echoWindowSize accepted
// echoes is dropped before entering the merge, independent of timing.
// Reports whether the echo was accepted.
func (a *Aggregator) PushEcho(text string) bool {
	a.mu.Lock()
	for _, prev := range a.echoTexts {
		if prev == text {
			a.mu.Unlock()
			a.log.Debug("echo suppressed by rolling window", "text", text)
			return false
		}
	}
	a.echoTexts = append(a.echoTexts, text)
	if len(a.echoTexts) > echoWindowSize {
		a.echoTexts = a.echoTexts[len(a.echoTexts)-echoWindowSize:]
	}

	msg := Message{
		ID:        "echo-" + uuid.NewString(),
		Timestamp: a.now().UnixMilli(),
		Text:      text,
		Sender:    a.localIdentity,
		Source:    SourceEcho,
	}
	a.sources[SourceEcho] = append(a.sources[SourceEcho], msg)
	a.mu.Unlock()
	a.changed()
	return true
}

// Messages recomputes and returns the merged transcript: all source
// messages concatenated, stably sorted by timestamp, then deduplicated in
// a single pass against the previously accepted message only.
//
// The previous-neighbor-only window is a known limitation carried over
// deliberately: a duplicate separated from its original by an intervening
// distinct message is not caught.
func (a *Aggregator) Messages() []Message {
	a.mu.Lock()
	defer a.mu.Unlock()

	var all []Message
	for _, src := range []SourceKind{SourceChat, SourceLegacyChat, SourceTranscription, SourceData, SourceEcho} {
		all = append(all, a.sources[src]...)
	}
	if len(all) == 0 {
		return nil
	}

	sort.SliceStable(all, func(i, j int) bool {
		return all[i].Timestamp < all[j].Timestamp
	})

	out := all[:0:0]
	for _, candidate := range all {
		if len(out) > 0 && isDuplicate(out[len(out)-1], candidate) {
			continue
		}
		out = append(out, candidate)
	}
	return out
}

// isDuplicate applies the dedup rule between the last accepted message and
// the next sorted candidate: same trimmed text, timestamps within the
// window, and the same resolved sender (or both unresolved).
func isDuplicate(last, candidate Message) bool {
	if strings.TrimSpace(last.Text) != strings.TrimSpace(candidate.Text) {
		return false
	}
	delta := candidate.Timestamp - last.Timestamp
	if delta < 0 {
		delta = -delta
	}
	if delta > dedupWindowMillis {
		return false
	}
	return last.Sender == candidate.Sender
}

// Attach subscribes the aggregator to a live session's message sources:
// the two chat topics, the transcription stream, and the raw data channel.
// Alternate event names are probed; a source the transport version lacks
// is skipped. Call Detach on teardown.
func (a *Aggregator) Attach(sess transport.Session) {
	if local := sess.LocalParticipant(); local != nil {
		a.mu.Lock()
		a.localIdentity = local.Identity
		a.mu.Unlock()
	}

	subscribe := func(name transport.EventName, h transport.Handler) {
		detach, err := transport.SubscribeAny(sess, name, h)
		if err != nil {
			if errors.Is(err, transport.ErrUnknownEvent) {
				a.log.Debug("transport does not emit event, source skipped", "event", string(name))
				return
			}
			a.log.Warn("subscribe failed", "event", string(name), "err", err)
			return
		}
		a.mu.Lock()
		a.detaches = append(a.detaches, detach)
		a.mu.Unlock()
	}

	subscribe(transport.EventChatMessage, func(ev transport.Event) {
		a.ingestChat(sess, ev)
	})
	subscribe(transport.EventTranscription, func(ev transport.Event) {
		a.ingestTranscription(sess, ev)
	})
	subscribe(transport.EventDataReceived, func(ev transport.Event) {
		a.ingestData(sess, ev)
	})
}

// Detach removes every subscription made by Attach. Symmetric with Attach
// and safe to call more than once.
func (a *Aggregator) Detach() {
	a.mu.Lock()
	detaches := a.detaches
	a.detaches = nil
	a.mu.Unlock()
	for _, detach := range detaches {
		detach()
	}
}

func (a *Aggregator) ingestChat(sess transport.Session, ev transport.Event) {
	src := SourceChat
	if ev.Topic == TopicChatLegacy {
		src = SourceLegacyChat
	}
	a.Ingest(src, Message{
		ID:        a.orNewID(ev.ID),
		Timestamp: a.orNow(ev.Timestamp),
		Text:      ev.Text,
		Sender:    a.senderIdentity(sess, ev.Participant),
	})
}

func (a *Aggregator) ingestTranscription(sess transport.Session, ev transport.Event) {
	if ev.Text == "" {
		return
	}
	a.Ingest(SourceTranscription, Message{
		ID:        a.orNewID(ev.ID),
		Timestamp: a.orNow(ev.Timestamp),
		Text:      ev.Text,
		Sender:    a.senderIdentity(sess, ev.Participant),
	})
}

// ingestData normalizes a raw data-channel payload. Chat envelopes keep
// their own id and timestamp; anything else goes through the best-effort
// payload decoder and is dropped (with a debug log) when no text comes out.
func (a *Aggregator) ingestData(sess transport.Session, ev transport.Event) {
	if env, ok := wire.ParseChatEnvelope(ev.Data); ok {
		a.Ingest(SourceData, Message{
			ID:        env.ID,
			Timestamp: env.Timestamp.EpochMilli(),
			Text:      env.Message,
			Sender:    a.senderIdentity(sess, ev.Participant),
		})
		return
	}

	text, ok := wire.DecodePayload(ev.Data)
	if !ok {
		a.log.Debug("raw payload yielded no text, dropped", "topic", ev.Topic, "len", len(ev.Data))
		return
	}
	a.Ingest(SourceData, Message{
		ID:        a.orNewID(""),
		Timestamp: a.now().UnixMilli(),
		Text:      text,
		Sender:    a.senderIdentity(sess, ev.Participant),
	})
}

// senderIdentity resolves a message's sender: the transport-reported
// participant when present, otherwise the roster heuristic.
func (a *Aggregator) senderIdentity(sess transport.Session, p *roster.Participant) string {
	if p != nil {
		return p.Identity
	}
	if resolved, ok := roster.ResolveSender(sess.Participants()); ok {
		return resolved.Identity
	}
	return ""
}

func (a *Aggregator) orNewID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

func (a *Aggregator) orNow(ts int64) int64 {
	if ts != 0 {
		return ts
	}
	return a.now().UnixMilli()
}

func (a *Aggregator) changed() {
	a.mu.Lock()
	fn := a.onChange
	a.mu.Unlock()
	if fn != nil {
		fn()
	}
}
