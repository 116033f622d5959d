package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed           = errors.New("transport: connection closed")
	ErrBackpressure     = errors.New("transport: backpressure")
	ErrAlreadyConnected = errors.New("transport: already connected")
)

const (
	defaultSendBuffer   = 64
	defaultPingPeriod   = 54 * time.Second
	defaultReconnectMax = 30 * time.Second
	writeWait           = 5 * time.Second
)

// Options configure a Conn. Zero values fall back to defaults.
type Options struct {
	URL          string
	Header       http.Header
	Jar          http.CookieJar
	SendBuffer   int
	PingPeriod   time.Duration
	ReconnectMax time.Duration
	ReadLimit    int64
}

// Conn is a reconnecting websocket pub/sub connection. It is shared by every
// channel built on top of it; channels never close it.
type Conn struct {
	opts   Options
	dialer *websocket.Dialer
	bus    *bus
	send   chan []byte
	done   chan struct{}
	once   sync.Once

	mu       sync.RWMutex
	id       string
	ws       *websocket.Conn
	running  bool
	cancel   context.CancelFunc
	channels map[string]struct{}
}

func New(opts Options) *Conn {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaultSendBuffer
	}
	if opts.PingPeriod <= 0 {
		opts.PingPeriod = defaultPingPeriod
	}
	if opts.ReconnectMax <= 0 {
		opts.ReconnectMax = defaultReconnectMax
	}
	dialer := *websocket.DefaultDialer
	dialer.Jar = opts.Jar
	return &Conn{
		opts:     opts,
		dialer:   &dialer,
		bus:      newBus(),
		send:     make(chan []byte, opts.SendBuffer),
		done:     make(chan struct{}),
		id:       uuid.NewString(),
		channels: make(map[string]struct{}),
	}
}

// ID returns the socket id assigned by the server, or a client generated id
// before the first connected frame arrives.
func (c *Conn) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.id
}

// Connected reports whether a websocket session is currently open.
func (c *Conn) Connected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ws != nil
}

// Connect dials once and then keeps the connection alive in the background,
// redialing with exponential backoff until Disconnect or ctx is done.
func (c *Conn) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	select {
	case <-c.done:
		c.mu.Unlock()
		return ErrClosed
	default:
	}
	c.running = true
	c.mu.Unlock()

	ws, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.mu.Unlock()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	c.cancel = cancel
	c.mu.Unlock()

	go c.run(ctx, ws)
	return nil
}

// Disconnect is idempotent.
func (c *Conn) Disconnect() {
	c.once.Do(func() {
		close(c.done)
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		if c.ws != nil {
			_ = c.ws.Close()
		}
		c.mu.Unlock()
		log.Info().Str("module", "transport").Str("sid", c.ID()).Msg("disconnected")
	})
}

func (c *Conn) dial(ctx context.Context) (*websocket.Conn, error) {
	ws, resp, err := c.dialer.DialContext(ctx, c.opts.URL, c.opts.Header)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", c.opts.URL, err)
	}
	if c.opts.ReadLimit > 0 {
		ws.SetReadLimit(c.opts.ReadLimit)
	}
	return ws, nil
}

func (c *Conn) run(ctx context.Context, ws *websocket.Conn) {
	b := backoff.NewExponentialBackOff()
	b.MaxInterval = c.opts.ReconnectMax

	for {
		c.session(ctx, ws)
		c.bus.emitLifecycle(LifecycleDisconnected, c.ID())

		for {
			wait := b.NextBackOff()
			if wait == backoff.Stop {
				wait = c.opts.ReconnectMax
			}
			select {
			case <-ctx.Done():
				return
			case <-c.done:
				return
			case <-time.After(wait):
			}
			next, err := c.dial(ctx)
			if err != nil {
				log.Warn().Err(err).Str("module", "transport").Dur("backoff", wait).Msg("reconnect failed")
				continue
			}
			b.Reset()
			ws = next
			break
		}
	}
}

// session runs one websocket lifetime and returns once reading fails.
func (c *Conn) session(ctx context.Context, ws *websocket.Conn) {
	c.mu.Lock()
	c.ws = ws
	for ch := range c.channels {
		c.enqueueLocked(ch, EventSubscribe, nil)
	}
	c.mu.Unlock()

	stop := make(chan struct{})
	go c.writePump(ws, stop)
	c.readPump(ctx, ws)
	close(stop)

	c.mu.Lock()
	if c.ws == ws {
		c.ws = nil
	}
	c.mu.Unlock()
	_ = ws.Close()
}

func (c *Conn) writePump(ws *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(c.opts.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-c.done:
			return
		case data := <-c.send:
			if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump set deadline")
				_ = ws.Close()
				return
			}
			if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "transport").Msg("writePump write error")
				_ = ws.Close()
				return
			}
		case <-ticker.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Warn().Err(err).Str("module", "transport").Msg("writePump ping")
				_ = ws.Close()
				return
			}
		}
	}
}

func (c *Conn) readPump(ctx context.Context, ws *websocket.Conn) {
	pongWait := c.opts.PingPeriod * 10 / 9
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_, data, err := ws.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				log.Warn().Err(err).Str("module", "transport").Str("sid", c.ID()).Msg("readPump read error")
			}
			return
		}
		_ = ws.SetReadDeadline(time.Now().Add(pongWait))
		c.handle(data)
	}
}

func (c *Conn) handle(data []byte) {
	env, err := DecodeEnvelope(data)
	if err != nil {
		log.Error().Err(err).Str("module", "transport").Msg("bad envelope")
		return
	}
	if env.Event == EventConnected && env.Channel == "" {
		var p connectedPayload
		if err := json.Unmarshal(env.Data, &p); err != nil || p.SocketID == "" {
			log.Error().Err(err).Str("module", "transport").Msg("bad connected payload")
			return
		}
		c.mu.Lock()
		c.id = p.SocketID
		c.mu.Unlock()
		log.Info().Str("module", "transport").Str("sid", p.SocketID).Msg("connected")
		c.bus.emitLifecycle(LifecycleConnected, p.SocketID)
		return
	}
	if n := c.bus.dispatch(env); n == 0 {
		log.Debug().Str("module", "transport").Str("channel", env.Channel).Str("event", env.Event).Msg("no listener")
	}
}

func (c *Conn) enqueueLocked(channel, event string, data any) error {
	env, err := NewEnvelope(channel, event, data)
	if err != nil {
		return err
	}
	b, err := env.Encode()
	if err != nil {
		return err
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Conn) closedErr() error {
	select {
	case <-c.done:
		return ErrClosed
	default:
		return nil
	}
}

// Subscribe attaches the topic. While disconnected the subscription is only
// recorded and replayed on the next session.
func (c *Conn) Subscribe(channel string) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channels[channel] = struct{}{}
	if c.ws == nil {
		return nil
	}
	return c.enqueueLocked(channel, EventSubscribe, nil)
}

func (c *Conn) Unsubscribe(channel string) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.channels[channel]; !ok {
		return nil
	}
	delete(c.channels, channel)
	if c.ws == nil {
		return nil
	}
	return c.enqueueLocked(channel, EventUnsubscribe, nil)
}

// Subscribed reports whether the topic is currently attached.
func (c *Conn) Subscribed(channel string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.channels[channel]
	return ok
}

// Publish sends a client event to the channel.
func (c *Conn) Publish(channel, event string, data any) error {
	if err := c.closedErr(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(channel, event, data)
}

func (c *Conn) Bind(channel, event string, h Handler) { c.bus.bind(channel, event, h) }

func (c *Conn) UnbindEvent(channel, event string) { c.bus.unbindEvent(channel, event) }

func (c *Conn) UnbindChannel(channel string) { c.bus.unbindChannel(channel) }

// OnLifecycle registers fn for LifecycleConnected or LifecycleDisconnected.
func (c *Conn) OnLifecycle(event string, fn LifecycleFunc) { c.bus.onLifecycle(event, fn) }
