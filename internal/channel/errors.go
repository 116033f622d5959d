package channel

import (
	"errors"
	"fmt"
)

var (
	ErrHandshake = errors.New("presence: join handshake failed")
	ErrRoster    = errors.New("presence: roster query failed")
	ErrLeave     = errors.New("presence: leave failed")
	ErrSubscribe = errors.New("channel: subscribe failed")
	ErrWhisper   = errors.New("channel: whisper failed")
)

// ServerError is an error frame broadcast by the server on a channel.
type ServerError struct {
	Channel string
	Payload []byte
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("channel %s: server error: %s", e.Channel, e.Payload)
}
