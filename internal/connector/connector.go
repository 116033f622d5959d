// Package connector caches channels per name on a single connection.
package connector

import (
	"context"
	"sync"

	"github.com/mrcyclo/laravel-wave-client/internal/channel"
	"github.com/mrcyclo/laravel-wave-client/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"
)

type Connection interface {
	channel.Connection
	Disconnect()
}

type Connector struct {
	ctx      context.Context
	conn     Connection
	req      channel.Requester
	teardown channel.Teardown
	opts     channel.Options

	mu       sync.Mutex
	public   map[domain.ChannelName]*channel.Channel
	private  map[domain.ChannelName]*channel.PrivateChannel
	presence map[domain.ChannelName]*channel.PresenceChannel
}

func New(ctx context.Context, conn Connection, req channel.Requester, teardown channel.Teardown, opts channel.Options) *Connector {
	return &Connector{
		ctx:      ctx,
		conn:     conn,
		req:      req,
		teardown: teardown,
		opts:     opts,
		public:   make(map[domain.ChannelName]*channel.Channel),
		private:  make(map[domain.ChannelName]*channel.PrivateChannel),
		presence: make(map[domain.ChannelName]*channel.PresenceChannel),
	}
}

func (c *Connector) SocketID() string { return c.conn.ID() }

// Channel returns the subscribed public channel for name.
func (c *Connector) Channel(name string) *channel.Channel {
	key := domain.ChannelName(name)
	c.mu.Lock()
	ch, ok := c.public[key]
	if !ok {
		ch = channel.NewChannel(c.conn, name, c.opts)
		c.public[key] = ch
	}
	c.mu.Unlock()
	if !ok {
		ch.Subscribe()
	}
	return ch
}

// Private returns the subscribed private-<name> channel.
func (c *Connector) Private(name string) *channel.PrivateChannel {
	key := domain.ChannelName(name).Private()
	c.mu.Lock()
	ch, ok := c.private[key]
	if !ok {
		ch = channel.NewPrivateChannel(c.conn, string(key), c.opts)
		c.private[key] = ch
	}
	c.mu.Unlock()
	if !ok {
		ch.Subscribe()
	}
	return ch
}

// Join returns the presence-<name> controller, subscribing it on first use.
func (c *Connector) Join(name string) *channel.PresenceChannel {
	key := domain.ChannelName(name).Presence()
	c.mu.Lock()
	ch, ok := c.presence[key]
	if !ok {
		ch = channel.NewPresenceChannel(c.ctx, c.conn, c.req, c.teardown, string(key), c.opts)
		c.presence[key] = ch
	}
	c.mu.Unlock()
	if !ok {
		ch.Subscribe()
	}
	return ch
}

// Leave leaves name and its private and presence variants.
func (c *Connector) Leave(name string) <-chan struct{} {
	bare := domain.ChannelName(name).Bare()
	return c.leave(bare, bare.Private(), bare.Presence())
}

// LeaveChannel leaves exactly one channel by its full name.
func (c *Connector) LeaveChannel(name string) <-chan struct{} {
	return c.leave(domain.ChannelName(name))
}

func (c *Connector) leave(names ...domain.ChannelName) <-chan struct{} {
	type leaving struct {
		name domain.ChannelName
		ch   *channel.PresenceChannel
		done <-chan struct{}
	}
	var pending []leaving

	c.mu.Lock()
	for _, n := range names {
		if ch, ok := c.public[n]; ok {
			delete(c.public, n)
			ch.Unsubscribe()
		}
		if ch, ok := c.private[n]; ok {
			delete(c.private, n)
			ch.Unsubscribe()
		}
		// presence controllers stay cached until the server confirms the leave
		if ch, ok := c.presence[n]; ok {
			pending = append(pending, leaving{name: n, ch: ch, done: ch.Unsubscribe()})
		}
	}
	c.mu.Unlock()

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg conc.WaitGroup
		for _, l := range pending {
			wg.Go(func() {
				<-l.done
				c.forget(l.name, l.ch)
			})
		}
		wg.Wait()
	}()
	return done
}

// forget drops a presence controller once its leave is confirmed. A failed
// leave keeps it, so a later Join reuses the still attached controller.
func (c *Connector) forget(name domain.ChannelName, ch *channel.PresenceChannel) {
	if !ch.Left() {
		log.Warn().Str("module", "connector").Str("channel", string(name)).Msg("leave not confirmed, keeping channel")
		return
	}
	c.mu.Lock()
	if c.presence[name] == ch {
		delete(c.presence, name)
	}
	c.mu.Unlock()
}

// Disconnect closes the shared connection. Presence channels still joined
// are left to their teardown hooks.
func (c *Connector) Disconnect() {
	c.mu.Lock()
	n := len(c.public) + len(c.private) + len(c.presence)
	c.mu.Unlock()
	log.Info().Str("module", "connector").Int("channels", n).Msg("disconnect")
	c.conn.Disconnect()
}
