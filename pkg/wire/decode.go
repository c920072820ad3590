// Package wire decodes opaque payloads received on a session's raw data
// channel into UTF-8 text, and encodes/parses the chat envelope published
// on the chat topics.
//
// Payloads arrive with no declared shape: depending on the sender's SDK
// version they may be a JSON string, a JSON byte array, an object wrapping
// a byte payload under a conventional key, a byte array serialized as an
// object with stringified index keys, a msgpack encoding of any of those,
// or plain UTF-8 text. Decoding is strictly best-effort: anything
// unrecognized yields no text rather than an error.
package wire

import (
	"encoding/json"
	"sort"
	"strconv"
	"unicode/utf8"

	"github.com/kaptinlin/jsonrepair"
	"github.com/vmihailenco/msgpack/v5"
)

// payloadKeys are the conventional field names under which senders nest
// the actual byte payload inside a structured envelope.
var payloadKeys = []string{"data", "payload", "bytes"}

// DecodePayload converts an opaque data-channel payload into text.
// It reports ok=false when no text could be recovered; that outcome is
// never an error, the payload is simply dropped from the transcript.
func DecodePayload(raw []byte) (text string, ok bool) {
	defer func() {
		if recover() != nil {
			text, ok = "", false
		}
	}()

	if len(raw) == 0 {
		return "", false
	}

	if v, err := unmarshalAny(raw); err == nil {
		return decodeValue(v)
	}

	var v any
	if err := msgpack.Unmarshal(raw, &v); err == nil {
		if text, ok := decodeValue(v); ok {
			return text, ok
		}
	}

	if utf8.Valid(raw) {
		return string(raw), true
	}
	return "", false
}

// unmarshalAny parses JSON, attempting a repair pass on syntax errors.
func unmarshalAny(raw []byte) (any, error) {
	var v any
	err := json.Unmarshal(raw, &v)
	if err == nil {
		return v, nil
	}
	if _, isSyntax := err.(*json.SyntaxError); isSyntax && looksLikeJSON(raw) {
		fixed, rerr := jsonrepair.JSONRepair(string(raw))
		if rerr != nil {
			return nil, err
		}
		if json.Unmarshal([]byte(fixed), &v) == nil {
			return v, nil
		}
	}
	return nil, err
}

func looksLikeJSON(raw []byte) bool {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		case '{', '[', '"':
			return true
		default:
			return false
		}
	}
	return false
}

// decodeValue extracts text from a decoded generic value.
func decodeValue(v any) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case []byte:
		if utf8.Valid(val) {
			return string(val), true
		}
		return "", false
	case []any:
		return bytesFromSlice(val)
	case map[string]any:
		return decodeMap(val)
	case map[any]any:
		// msgpack decodes maps with non-string keys into map[any]any.
		m := make(map[string]any, len(val))
		for k, mv := range val {
			switch key := k.(type) {
			case string:
				m[key] = mv
			case int8, int16, int32, int64, int, uint8, uint16, uint32, uint64, uint:
				m[intKeyString(key)] = mv
			default:
				return "", false
			}
		}
		return decodeMap(m)
	default:
		return "", false
	}
}

func decodeMap(m map[string]any) (string, bool) {
	for _, key := range payloadKeys {
		if nested, ok := m[key]; ok {
			return decodeValue(nested)
		}
	}
	return bytesFromIndexMap(m)
}

// bytesFromIndexMap reconstructs a byte sequence from an object whose keys
// are stringified sequential indices ({"0":104,"1":105} => "hi"). Keys are
// ordered numerically, not lexically.
func bytesFromIndexMap(m map[string]any) (string, bool) {
	if len(m) == 0 {
		return "", false
	}
	type indexed struct {
		idx int
		val any
	}
	entries := make([]indexed, 0, len(m))
	for k, v := range m {
		idx, err := strconv.Atoi(k)
		if err != nil || idx < 0 {
			return "", false
		}
		entries = append(entries, indexed{idx, v})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].idx < entries[j].idx })

	buf := make([]byte, 0, len(entries))
	for _, e := range entries {
		b, ok := byteValue(e.val)
		if !ok {
			return "", false
		}
		buf = append(buf, b)
	}
	if !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}

func bytesFromSlice(vals []any) (string, bool) {
	buf := make([]byte, 0, len(vals))
	for _, v := range vals {
		b, ok := byteValue(v)
		if !ok {
			return "", false
		}
		buf = append(buf, b)
	}
	if !utf8.Valid(buf) {
		return "", false
	}
	return string(buf), true
}

// byteValue coerces a decoded scalar into a single byte. JSON numbers
// arrive as float64; msgpack numbers as sized integers.
func byteValue(v any) (byte, bool) {
	switch n := v.(type) {
	case float64:
		if n != float64(int64(n)) || n < 0 || n > 255 {
			return 0, false
		}
		return byte(n), true
	case int64:
		if n < 0 || n > 255 {
			return 0, false
		}
		return byte(n), true
	case uint64:
		if n > 255 {
			return 0, false
		}
		return byte(n), true
	case int8, int16, int32, int, uint8, uint16, uint32, uint:
		return byteValue(toInt64(n))
	default:
		return 0, false
	}
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case uint64:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case int:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint:
		return int64(n)
	}
	return -1
}

func intKeyString(v any) string {
	return strconv.FormatInt(toInt64(v), 10)
}
