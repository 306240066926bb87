// Package message defines the clip2web status protocol spoken over the local
// IPC socket.
//
// All messages are newline-delimited JSON, one message per line. A client
// sends one request and reads one response. Nothing in the protocol can
// change the agent's chain membership; SNAP is the only request with a side
// effect, running one capture of the current clipboard.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// Type identifies the kind of message.
type Type string

const (
	TypeStatus         Type = "STATUS"
	TypeStatusResponse Type = "STATUS_RESPONSE"
	TypeLast           Type = "LAST"
	TypeLastResponse   Type = "LAST_RESPONSE"
	TypeSnap           Type = "SNAP"
	TypeSnapResponse   Type = "SNAP_RESPONSE"
	TypeError          Type = "ERROR"
)

// ChainInfo describes the agent's position in the clipboard viewer chain.
type ChainInfo struct {
	State    string `json:"state"`
	Self     string `json:"self,omitempty"`
	Next     string `json:"next,omitempty"`
	Changes  uint64 `json:"changes"`
	Forwards uint64 `json:"forwards"`
	Adopted  uint64 `json:"adopted"`
}

// EventInfo is a completion or failure event as seen by the status surface.
type EventInfo struct {
	Kind   string    `json:"kind"`
	Label  string    `json:"label,omitempty"`
	Path   string    `json:"path,omitempty"`
	Reason string    `json:"reason,omitempty"`
	Time   time.Time `json:"time"`
}

// Status is the body of a STATUS_RESPONSE.
type Status struct {
	Version string    `json:"version"`
	PID     int       `json:"pid"`
	Backend string    `json:"backend"`
	Dir     string    `json:"dir,omitempty"`
	Started time.Time `json:"started"`

	Chain ChainInfo `json:"chain"`

	Saved               uint64 `json:"saved"`
	ExtractionFailures  uint64 `json:"extraction_failures"`
	PersistenceFailures uint64 `json:"persistence_failures"`
	PublishFailures     uint64 `json:"publish_failures"`

	Last        *EventInfo `json:"last,omitempty"`
	LastFailure *EventInfo `json:"last_failure,omitempty"`
}

// Message is the top-level wire envelope.
type Message struct {
	Type Type `json:"type"`

	// STATUS_RESPONSE
	Status *Status `json:"status,omitempty"`

	// LAST_RESPONSE. Nil when nothing has been saved yet.
	Last *EventInfo `json:"last,omitempty"`

	// SNAP_RESPONSE: the saved file.
	Path string `json:"path,omitempty"`

	// ERROR
	Error string `json:"error,omitempty"`
}

// Errorf builds an ERROR message.
func Errorf(format string, args ...any) *Message {
	return &Message{Type: TypeError, Error: fmt.Sprintf(format, args...)}
}

// Encode serialises the message to JSON without a trailing newline.
func (m *Message) Encode() ([]byte, error) {
	return json.Marshal(m)
}

// Decode deserialises a message from raw JSON bytes.
func Decode(b []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("message decode: %w", err)
	}
	if m.Type == "" {
		return nil, fmt.Errorf("message decode: missing type")
	}
	return &m, nil
}
