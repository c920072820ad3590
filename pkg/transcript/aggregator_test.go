package transcript

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxlane/voxlane/pkg/transport"
)

func fixedClock(ms int64) func() time.Time {
	return func() time.Time { return time.UnixMilli(ms) }
}

func texts(msgs []Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.Text
	}
	return out
}

func TestAggregator_Empty(t *testing.T) {
	a := NewAggregator()
	assert.Empty(t, a.Messages())
}

func TestAggregator_SortedByTimestamp(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 3000, Text: "third", Sender: "agent-42"})
	a.Ingest(SourceTranscription, Message{ID: "t1", Timestamp: 500, Text: "first", Sender: "agent-42"})
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 2800, Text: "second", Sender: "me"})

	got := a.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"first", "second", "third"}, texts(got))
}

func TestAggregator_DedupAdjacentWithinWindow(t *testing.T) {
	a := NewAggregator()
	// Same text arriving on two channels 1.5s apart. The earlier one wins.
	a.Ingest(SourceTranscription, Message{ID: "t1", Timestamp: 1000, Text: "hello there", Sender: "agent-42"})
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 2500, Text: "hello there", Sender: "agent-42"})

	got := a.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "t1", got[0].ID)
	assert.Equal(t, SourceTranscription, got[0].Source)
}

func TestAggregator_DedupTrimsWhitespace(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "hello", Sender: "agent-42"})
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 1100, Text: "  hello  ", Sender: "agent-42"})

	assert.Len(t, a.Messages(), 1)
}

func TestAggregator_BeyondWindowBothKept(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "hello", Sender: "agent-42"})
	a.Ingest(SourceChat, Message{ID: "c2", Timestamp: 3001, Text: "hello", Sender: "agent-42"})

	assert.Len(t, a.Messages(), 2)
}

func TestAggregator_DifferentSendersNotDeduped(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "ok", Sender: "agent-42"})
	a.Ingest(SourceChat, Message{ID: "c2", Timestamp: 1200, Text: "ok", Sender: "me"})

	assert.Len(t, a.Messages(), 2)
}

func TestAggregator_BothSendersUnresolvedDeduped(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 1000, Text: "ok"})
	a.Ingest(SourceData, Message{ID: "d2", Timestamp: 1200, Text: "ok"})

	assert.Len(t, a.Messages(), 1)
}

func TestAggregator_ZeroTimestampPairDeduped(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 0, Text: "hi", Sender: "agent-42"})
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 0, Text: "hi", Sender: "agent-42"})

	assert.Len(t, a.Messages(), 1)
}

func TestAggregator_InterveningMessageDefeatsDedup(t *testing.T) {
	// The dedup pass only compares against the previously accepted message.
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "hello", Sender: "agent-42"})
	a.Ingest(SourceChat, Message{ID: "c2", Timestamp: 1100, Text: "something else", Sender: "agent-42"})
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 1200, Text: "hello", Sender: "agent-42"})

	assert.Len(t, a.Messages(), 3)
}

func TestAggregator_RevisionEditsInPlace(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "helo", Sender: "agent-42"})
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1500, Text: "hello", Sender: "agent-42"})

	got := a.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "hello", got[0].Text)
	assert.Equal(t, int64(1000), got[0].Timestamp)
	assert.Equal(t, int64(1500), got[0].EditTimestamp)
}

func TestAggregator_RevisionSameTextNoEditMark(t *testing.T) {
	a := NewAggregator()
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "hello", Sender: "agent-42"})
	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1500, Text: "hello", Sender: "agent-42"})

	got := a.Messages()
	require.Len(t, got, 1)
	assert.Zero(t, got[0].EditTimestamp)
}

func TestAggregator_DataSourceAppendsSameID(t *testing.T) {
	// The raw data source does not support revisions; a repeated id lands
	// as a second entry and the merge dedup decides.
	a := NewAggregator()
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 1000, Text: "one", Sender: "agent-42"})
	a.Ingest(SourceData, Message{ID: "d1", Timestamp: 1100, Text: "two", Sender: "agent-42"})

	assert.Len(t, a.Messages(), 2)
}

func TestAggregator_EchoWindow(t *testing.T) {
	a := NewAggregator(WithClock(fixedClock(5000)))

	assert.True(t, a.PushEcho("hello"))
	assert.False(t, a.PushEcho("hello"), "repeat within window must be dropped")

	// Five distinct echoes push the original out of the window.
	for i := 0; i < echoWindowSize; i++ {
		assert.True(t, a.PushEcho(fmt.Sprintf("filler %d", i)))
	}
	assert.True(t, a.PushEcho("hello"), "evicted text is accepted again")
}

func TestAggregator_EchoCarriesLocalSender(t *testing.T) {
	sess := newFakeSession()
	a := NewAggregator(WithClock(fixedClock(5000)))
	a.Attach(sess)
	defer a.Detach()

	require.True(t, a.PushEcho("typed by me"))
	got := a.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "me", got[0].Sender)
	assert.Equal(t, SourceEcho, got[0].Source)
	assert.Equal(t, int64(5000), got[0].Timestamp)
}

func TestAggregator_AttachIngestsLiveEvents(t *testing.T) {
	sess := newFakeSession()
	a := NewAggregator(WithClock(fixedClock(9000)))
	a.Attach(sess)
	defer a.Detach()

	sess.emit(transport.Event{
		Name:      transport.EventChatMessage,
		ID:        "c1",
		Timestamp: 1000,
		Text:      "from chat",
	})
	sess.emit(transport.Event{
		Name:      transport.EventTranscription,
		ID:        "t1",
		Timestamp: 2000,
		Text:      "from transcription",
	})
	// Index-keyed byte object on the raw data channel decodes to "hi".
	sess.emit(transport.Event{
		Name: transport.EventDataReceived,
		Data: []byte(`{"0":104,"1":105}`),
	})

	got := a.Messages()
	require.Len(t, got, 3)
	assert.Equal(t, []string{"from chat", "from transcription", "hi"}, texts(got))
	for _, m := range got {
		assert.Equal(t, "agent-42", m.Sender, "sender falls back to the roster heuristic")
	}
}

func TestAggregator_AttachSkipsEmptyTranscription(t *testing.T) {
	sess := newFakeSession()
	a := NewAggregator()
	a.Attach(sess)
	defer a.Detach()

	sess.emit(transport.Event{Name: transport.EventTranscription, ID: "t1", Timestamp: 1000})
	assert.Empty(t, a.Messages())
}

func TestAggregator_AttachDropsUndecodablePayload(t *testing.T) {
	sess := newFakeSession()
	a := NewAggregator()
	a.Attach(sess)
	defer a.Detach()

	sess.emit(transport.Event{Name: transport.EventDataReceived, Data: []byte(`{"kind":"ping"}`)})
	assert.Empty(t, a.Messages())
}

func TestAggregator_DataChatEnvelopeKeepsOwnTimestamp(t *testing.T) {
	sess := newFakeSession()
	a := NewAggregator(WithClock(fixedClock(99999)))
	a.Attach(sess)
	defer a.Detach()

	sess.emit(transport.Event{
		Name: transport.EventDataReceived,
		Data: []byte(`{"id":"m7","timestamp":1234,"message":"wrapped"}`),
	})

	got := a.Messages()
	require.Len(t, got, 1)
	assert.Equal(t, "m7", got[0].ID)
	assert.Equal(t, int64(1234), got[0].Timestamp)
	assert.Equal(t, "wrapped", got[0].Text)
}

func TestAggregator_DetachStopsIngestion(t *testing.T) {
	sess := newFakeSession()
	a := NewAggregator()
	a.Attach(sess)
	a.Detach()
	a.Detach() // safe to repeat

	assert.Equal(t, 3, sess.detached, "every subscription is released")
}

func TestAggregator_OnChangeFires(t *testing.T) {
	a := NewAggregator()
	changes := 0
	a.OnChange(func() { changes++ })

	a.Ingest(SourceChat, Message{ID: "c1", Timestamp: 1000, Text: "hello"})
	a.PushEcho("typed")

	assert.Equal(t, 2, changes)
}
