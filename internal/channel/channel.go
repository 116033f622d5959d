// Package channel implements public, private and presence channels on top
// of a shared pub/sub connection.
package channel

import (
	"fmt"
	"sync"

	"github.com/mrcyclo/laravel-wave-client/internal/transport"
	"github.com/rs/zerolog/log"
)

type (
	Event     = transport.Envelope
	Handler   = transport.Handler
	ErrorFunc func(error)
)

// Connection is the pub/sub connection a channel rides on. It is shared and
// never owned by a channel.
type Connection interface {
	ID() string
	Subscribe(channel string) error
	Unsubscribe(channel string) error
	Publish(channel, event string, data any) error
	Bind(channel, event string, h transport.Handler)
	UnbindEvent(channel, event string)
	UnbindChannel(channel string)
	OnLifecycle(event string, fn transport.LifecycleFunc)
}

type Options struct {
	// Endpoint is the base URL of the broadcasting HTTP API.
	Endpoint  string
	Namespace string
}

// Channel is a public channel.
type Channel struct {
	conn      Connection
	name      string
	opts      Options
	formatter EventFormatter

	mu       sync.RWMutex
	errs     []ErrorFunc
	errBound bool
}

func NewChannel(conn Connection, name string, opts Options) *Channel {
	return &Channel{
		conn:      conn,
		name:      name,
		opts:      opts,
		formatter: NewEventFormatter(opts.Namespace),
	}
}

func (c *Channel) Name() string { return c.name }

// Subscribe attaches the topic on the connection.
func (c *Channel) Subscribe() {
	c.mu.Lock()
	bind := !c.errBound
	c.errBound = true
	c.mu.Unlock()

	if bind {
		c.conn.Bind(c.name, transport.EventError, func(env transport.Envelope) {
			c.emitError(&ServerError{Channel: c.name, Payload: env.Data})
		})
	}
	if err := c.conn.Subscribe(c.name); err != nil {
		c.emitError(fmt.Errorf("%w: %s: %w", ErrSubscribe, c.name, err))
		return
	}
	log.Debug().Str("module", "channel").Str("channel", c.name).Msg("subscribed")
}

// Unsubscribe detaches the topic and drops every listener bound to it.
func (c *Channel) Unsubscribe() {
	c.conn.UnbindChannel(c.name)
	c.mu.Lock()
	c.errBound = false
	c.mu.Unlock()
	if err := c.conn.Unsubscribe(c.name); err != nil {
		log.Warn().Err(err).Str("module", "channel").Str("channel", c.name).Msg("unsubscribe")
		return
	}
	log.Debug().Str("module", "channel").Str("channel", c.name).Msg("unsubscribed")
}

func (c *Channel) Listen(event string, h Handler) *Channel {
	c.conn.Bind(c.name, c.formatter.Format(event), h)
	return c
}

// StopListening removes every handler for event.
func (c *Channel) StopListening(event string) *Channel {
	c.conn.UnbindEvent(c.name, c.formatter.Format(event))
	return c
}

// Subscribed registers fn for the connection's connected event.
func (c *Channel) Subscribed(fn transport.LifecycleFunc) *Channel {
	c.conn.OnLifecycle(transport.LifecycleConnected, fn)
	return c
}

func (c *Channel) Error(fn ErrorFunc) *Channel {
	c.mu.Lock()
	c.errs = append(c.errs, fn)
	c.mu.Unlock()
	return c
}

func (c *Channel) emitError(err error) {
	c.mu.RLock()
	fns := append([]ErrorFunc(nil), c.errs...)
	c.mu.RUnlock()

	log.Warn().Err(err).Str("module", "channel").Str("channel", c.name).Int("listeners", len(fns)).Msg("channel error")
	for _, fn := range fns {
		fn(err)
	}
}
