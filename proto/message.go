package proto

import (
	"encoding/json"
	"fmt"
)

// Message is a decoded Pusher protocol envelope. On the wire the data field
// is a JSON-encoded string even when it carries a nested object; Encode and
// Decode keep that convention at this boundary so upper layers only ever see
// the parsed value.
type Message struct {
	Event   string
	Channel string
	Data    any
}

type wireMessage struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Encode serializes a message for sending. Structured data is first
// JSON-encoded and then placed as a string value in the outer object.
func Encode(m Message) ([]byte, error) {
	if m.Event == "" {
		return nil, fmt.Errorf("encode: message has no event")
	}

	w := wireMessage{Event: m.Event, Channel: m.Channel}

	switch v := m.Data.(type) {
	case nil:
		// No data field.
	case string:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q data: %w", m.Event, err)
		}
		w.Data = raw
	case json.RawMessage:
		inner, err := json.Marshal(string(v))
		if err != nil {
			return nil, fmt.Errorf("encode %q data: %w", m.Event, err)
		}
		w.Data = inner
	default:
		inner, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode %q data: %w", m.Event, err)
		}
		raw, err := json.Marshal(string(inner))
		if err != nil {
			return nil, fmt.Errorf("encode %q data: %w", m.Event, err)
		}
		w.Data = raw
	}

	return json.Marshal(w)
}

// Decode parses a wire envelope. A string data field that holds valid JSON
// is parsed recursively; a string that does not parse is surfaced as-is.
// Malformed outer JSON is the only error path.
func Decode(b []byte) (Message, error) {
	var w wireMessage
	if err := json.Unmarshal(b, &w); err != nil {
		return Message{}, fmt.Errorf("decode envelope: %w", err)
	}

	m := Message{Event: w.Event, Channel: w.Channel}

	if len(w.Data) == 0 {
		return m, nil
	}

	if w.Data[0] == '"' {
		var s string
		if err := json.Unmarshal(w.Data, &s); err != nil {
			return Message{}, fmt.Errorf("decode envelope data: %w", err)
		}
		var inner any
		if err := json.Unmarshal([]byte(s), &inner); err != nil {
			// Not double-encoded JSON, keep the raw string.
			m.Data = s
		} else {
			m.Data = inner
		}
		return m, nil
	}

	var v any
	if err := json.Unmarshal(w.Data, &v); err != nil {
		return Message{}, fmt.Errorf("decode envelope data: %w", err)
	}
	m.Data = v
	return m, nil
}

// DataInto re-marshals a decoded data value into a typed payload struct.
func DataInto(data any, v any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
