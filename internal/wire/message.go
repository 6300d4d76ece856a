// Package wire defines the JSON message envelope exchanged with a Home
// Connect appliance, and the handful of helpers needed to serialize it the
// way the appliance firmware expects.
package wire

import (
	"encoding/json"
	"strings"
)

// Action is the verb carried by every frame.
type Action string

const (
	ActionGet      Action = "GET"
	ActionPost     Action = "POST"
	ActionResponse Action = "RESPONSE"
	ActionNotify   Action = "NOTIFY"
)

// Message is the envelope used on every inbound and outbound frame.
//
// Data is kept as []map[string]interface{} rather than a typed struct
// because its shape depends entirely on Resource, and the appliance omits
// fields liberally.
type Message struct {
	SessionID *int                     `json:"sID,omitempty"`
	MsgID     *int                     `json:"msgID,omitempty"`
	Resource  string                   `json:"resource"`
	Version   int                      `json:"version"`
	Action    Action                   `json:"action"`
	Data      []map[string]interface{} `json:"data,omitempty"`
	Code      *int                     `json:"code,omitempty"`
}

// Item returns the first element of Data, or nil if Data is empty.
func (m *Message) Item() map[string]interface{} {
	if len(m.Data) == 0 {
		return nil
	}
	return m.Data[0]
}

// Marshal serializes m with no whitespace separators, as the appliance's
// own JSON parser expects, and defensively swaps any apostrophes a
// serializer might emit for double quotes (spec.md §4.2: "Outbound
// serialization").
func Marshal(m *Message) ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return []byte(strings.ReplaceAll(string(b), "'", "\"")), nil
}

// Unmarshal parses a raw inbound frame into a Message.
func Unmarshal(buf []byte) (*Message, error) {
	m := &Message{}
	if err := json.Unmarshal(buf, m); err != nil {
		return nil, err
	}
	return m, nil
}

// AsData normalizes a value intended for Message.Data: a bare map is
// wrapped into a single-element slice, a slice passes through unchanged.
// Mirrors the teacher's BodyLength/Serialize convenience of always working
// with a canonical shape before wire encoding (commands/command.go).
func AsData(v interface{}) []map[string]interface{} {
	switch t := v.(type) {
	case nil:
		return nil
	case []map[string]interface{}:
		return t
	case map[string]interface{}:
		return []map[string]interface{}{t}
	default:
		return nil
	}
}
