package transport

import (
	"github.com/goccy/go-json"
)

// Reserved envelope events.
const (
	EventConnected   = "connected"
	EventSubscribe   = "subscribe"
	EventUnsubscribe = "unsubscribe"
	EventError       = "error"
)

// Lifecycle events surfaced through OnLifecycle.
const (
	LifecycleConnected    = "connected"
	LifecycleDisconnected = "disconnected"
)

// Envelope is the frame exchanged in both directions.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data into an envelope. nil data leaves Data empty.
func NewEnvelope(channel, event string, data any) (Envelope, error) {
	env := Envelope{Event: event, Channel: channel}
	if data == nil {
		return env, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return env, err
	}
	env.Data = b
	return env, nil
}

func (e Envelope) Encode() ([]byte, error) { return json.Marshal(e) }

func DecodeEnvelope(data []byte) (Envelope, error) {
	var env Envelope
	err := json.Unmarshal(data, &env)
	return env, err
}

type connectedPayload struct {
	SocketID string `json:"socket_id"`
}
