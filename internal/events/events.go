// Package events carries run progress to SSE subscribers.
package events

import (
	"encoding/json"
	"time"
)

// Event is the envelope every published message is wrapped in.
type Event struct {
	Type    string          `json:"type"`
	Version int             `json:"v"`
	At      time.Time       `json:"at"`
	RunID   string          `json:"run_id,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// MakeEvent serializes an event. id is the run or request the event
// belongs to.
func MakeEvent(id, typ string, v int, data any) string {
	var raw json.RawMessage
	if data != nil {
		b, _ := json.Marshal(data)
		raw = b
	}
	e := Event{
		Type:    typ,
		Version: v,
		At:      time.Now().UTC(),
		RunID:   id,
		Data:    raw,
	}
	b, _ := json.Marshal(e)
	return string(b)
}

// Parse decodes a serialized event.
func Parse(s string) (Event, error) {
	var e Event
	err := json.Unmarshal([]byte(s), &e)
	return e, err
}
