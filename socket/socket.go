package socket

import (
	"encoding/json"
	"errors"
	"fmt"
)

type Event string

// Transport-level events sent or received on the wire.
const (
	EventPing  Event = "ping"
	EventPong  Event = "pong"
	EventError Event = "error"
)

// Local lifecycle events dispatched by the Client. Inbound frames carrying one of
// these names are dropped so server payloads cannot impersonate them.
const (
	EventConnected        Event = "connected"
	EventDisconnected     Event = "disconnected"
	EventReconnected      Event = "reconnected"
	EventConnectionFailed Event = "connection_failed"
)

func (e Event) reserved() bool {
	switch e {
	case EventConnected, EventDisconnected, EventReconnected, EventConnectionFailed:
		return true
	}
	return false
}

// Message is the JSON frame exchanged with the server.
type Message struct {
	Event Event       `json:"event"`
	Data  interface{} `json:"data,omitempty"`
}

// inboundMessage defers payload decoding to whoever handles the event.
type inboundMessage struct {
	Event Event           `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

var (
	ErrClientClosed   = errors.New("client closed")
	ErrInvalidMessage = errors.New("invalid message format")
	ErrQueueFull      = errors.New("outbound queue full")
)

// DecodeData converts listener data into v. Inbound server events carry
// json.RawMessage; locally dispatched values are re-encoded.
func DecodeData(data interface{}, v interface{}) error {
	var raw []byte
	switch d := data.(type) {
	case nil:
		return nil
	case json.RawMessage:
		raw = d
	case []byte:
		raw = d
	default:
		b, err := json.Marshal(d)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
		}
		raw = b
	}

	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMessage, err)
	}
	return nil
}
