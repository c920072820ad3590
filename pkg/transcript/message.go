// Package transcript merges the session's independent message producers
// into one deduplicated, time-ordered transcript, and handles outbound
// message publication.
package transcript

// SourceKind identifies one of the producers feeding the aggregator.
type SourceKind int

const (
	// SourceChat is the current chat topic ("lk.chat").
	SourceChat SourceKind = iota

	// SourceLegacyChat is the legacy chat topic ("lk-chat-topic").
	SourceLegacyChat

	// SourceTranscription is the live speech-to-text stream.
	SourceTranscription

	// SourceData is the raw data channel, decoded via pkg/wire.
	SourceData

	// SourceEcho is the optimistic local echo of the user's own input.
	SourceEcho
)

// String returns the source name used in logs.
func (s SourceKind) String() string {
	switch s {
	case SourceChat:
		return "chat"
	case SourceLegacyChat:
		return "legacy_chat"
	case SourceTranscription:
		return "transcription"
	case SourceData:
		return "data"
	case SourceEcho:
		return "echo"
	default:
		return "unknown"
	}
}

// supportsRevision reports whether a same-id re-arrival from this source
// is a revision of the earlier message rather than a duplicate. Stream
// sources re-send items as they grow or get corrected; the raw data
// channel and local echoes never do.
func (s SourceKind) supportsRevision() bool {
	switch s {
	case SourceChat, SourceLegacyChat, SourceTranscription:
		return true
	default:
		return false
	}
}

// Message is one normalized chat/transcript unit. Messages are owned by
// the aggregator's output sequence and are immutable once appended, except
// for edit-timestamp updates keyed by ID.
type Message struct {
	// ID is an opaque unique string.
	ID string `json:"id"`

	// Timestamp is epoch milliseconds. Monotonic within one source but
	// not across sources.
	Timestamp int64 `json:"timestamp"`

	// Text is the UTF-8 content.
	Text string `json:"text"`

	// Sender is the resolved participant identity, empty when unresolved.
	Sender string `json:"sender,omitempty"`

	// Source is the producer this message arrived on.
	Source SourceKind `json:"-"`

	// EditTimestamp is set when a later revision of the same ID arrived.
	EditTimestamp int64 `json:"editTimestamp,omitempty"`
}
