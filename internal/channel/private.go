package channel

import "fmt"

const whisperPrefix = "client-"

// PrivateChannel adds client-to-client whisper events.
type PrivateChannel struct {
	*Channel
}

func NewPrivateChannel(conn Connection, name string, opts Options) *PrivateChannel {
	return &PrivateChannel{Channel: NewChannel(conn, name, opts)}
}

func (p *PrivateChannel) Whisper(event string, data any) *PrivateChannel {
	if err := p.conn.Publish(p.name, whisperPrefix+event, data); err != nil {
		p.emitError(fmt.Errorf("%w: %s: %w", ErrWhisper, event, err))
	}
	return p
}

func (p *PrivateChannel) ListenForWhisper(event string, h Handler) *PrivateChannel {
	p.Listen("."+whisperPrefix+event, h)
	return p
}

func (p *PrivateChannel) StopListeningForWhisper(event string) *PrivateChannel {
	p.StopListening("." + whisperPrefix + event)
	return p
}
