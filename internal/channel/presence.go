package channel

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/mrcyclo/laravel-wave-client/internal/domain"
	"github.com/mrcyclo/laravel-wave-client/internal/lifecycle"
	"github.com/rs/zerolog/log"
)

const (
	UsersPath = "/presence-channel-users"

	EventJoin  = ".join"
	EventLeave = ".leave"

	paramChannelName = "channel_name"
)

type JoinState int32

const (
	NotJoined JoinState = iota
	Joining
	Joined
)

func (s JoinState) String() string {
	switch s {
	case NotJoined:
		return "not_joined"
	case Joining:
		return "joining"
	case Joined:
		return "joined"
	default:
		return fmt.Sprintf("join_state(%d)", int32(s))
	}
}

// HereFunc receives a roster snapshot it may keep.
type HereFunc func(domain.Roster)

// Requester performs authenticated calls on behalf of the connection.
type Requester interface {
	Authorize(ctx context.Context, endpoint, channel string) ([]byte, error)
	Get(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
	Delete(ctx context.Context, endpoint string, params map[string]string) ([]byte, error)
	Beacon(clientID, token, endpoint string, params map[string]string, method string)
}

// Teardown is the process-exit hook registry.
//
//go:generate mockgen -source=presence.go -destination=mock_teardown_test.go -package=channel -exclude_interfaces=Requester
type Teardown interface {
	Register(h lifecycle.Hook) lifecycle.HookID
	Deregister(id lifecycle.HookID) bool
}

type joinResponse struct {
	Token string        `json:"_token"`
	Users domain.Roster `json:"users"`
}

// PresenceChannel is a private channel with an authenticated member roster.
// A controller is one-shot: after a confirmed leave a new one is needed.
type PresenceChannel struct {
	base     *PrivateChannel
	conn     Connection
	req      Requester
	teardown Teardown
	ctx      context.Context
	endpoint string

	mu      sync.Mutex
	state   JoinState
	failed  bool
	left    bool
	token   string
	roster  domain.Roster
	pending []HereFunc
	settled chan struct{}
	hook    lifecycle.HookID
	hooked  bool
}

// NewPresenceChannel binds the controller to name and registers the teardown
// beacon. teardown may be nil when there is no process-exit notification.
func NewPresenceChannel(ctx context.Context, conn Connection, req Requester, teardown Teardown, name string, opts Options) *PresenceChannel {
	p := &PresenceChannel{
		base:     NewPrivateChannel(conn, name, opts),
		conn:     conn,
		req:      req,
		teardown: teardown,
		ctx:      ctx,
		endpoint: strings.TrimRight(opts.Endpoint, "/") + UsersPath,
	}
	if teardown != nil {
		p.hook = teardown.Register(p.UnsubscribeBeacon)
		p.hooked = true
	}
	return p
}

func (p *PresenceChannel) Name() string { return p.base.Name() }

func (p *PresenceChannel) State() JoinState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Left reports whether an explicit leave has been confirmed by the server.
func (p *PresenceChannel) Left() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.left
}

// Members returns a copy of the last roster received.
func (p *PresenceChannel) Members() domain.Roster {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roster.Clone()
}

// Subscribe attaches the topic and starts the join handshake concurrently.
// Call it once; a second call is only honored after a failed handshake.
func (p *PresenceChannel) Subscribe() {
	p.mu.Lock()
	retry := p.state == Joining && p.failed
	if p.left || (p.state != NotJoined && !retry) {
		state := p.state
		p.mu.Unlock()
		log.Warn().Str("module", "presence").Str("channel", p.Name()).Str("state", state.String()).Msg("subscribe ignored")
		return
	}
	p.state = Joining
	p.failed = false
	settled := make(chan struct{})
	p.settled = settled
	p.mu.Unlock()

	p.base.Subscribe()
	go p.join(settled)
}

func (p *PresenceChannel) join(settled chan struct{}) {
	defer close(settled)

	var resp joinResponse
	body, err := p.req.Authorize(p.ctx, p.endpoint, p.Name())
	if err == nil {
		err = json.Unmarshal(body, &resp)
	}
	if err != nil {
		p.mu.Lock()
		p.failed = true
		p.mu.Unlock()
		p.base.emitError(fmt.Errorf("%w: %s: %w", ErrHandshake, p.Name(), err))
		return
	}

	roster := resp.Users
	if roster == nil {
		roster = domain.Roster{}
	}

	p.mu.Lock()
	p.token = resp.Token
	p.roster = roster
	p.state = Joined
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	log.Info().Str("module", "presence").Str("channel", p.Name()).Int("members", len(roster)).Int("pending", len(pending)).Msg("joined")

	for _, fn := range pending {
		fn(roster.Clone())
	}
}

// Here delivers the roster to fn. Before the join completes fn is queued and
// replayed with the join snapshot; afterwards every call fetches afresh.
func (p *PresenceChannel) Here(fn HereFunc) *PresenceChannel {
	p.mu.Lock()
	if p.state != Joined {
		p.pending = append(p.pending, fn)
		p.mu.Unlock()
		return p
	}
	p.mu.Unlock()

	go p.fetchRoster(fn)
	return p
}

func (p *PresenceChannel) fetchRoster(fn HereFunc) {
	body, err := p.req.Get(p.ctx, p.endpoint, map[string]string{paramChannelName: p.Name()})
	if err != nil {
		p.base.emitError(fmt.Errorf("%w: %s: %w", ErrRoster, p.Name(), err))
		return
	}
	var roster domain.Roster
	if err := json.Unmarshal(body, &roster); err != nil {
		p.base.emitError(fmt.Errorf("%w: %s: %w", ErrRoster, p.Name(), err))
		return
	}
	if roster == nil {
		roster = domain.Roster{}
	}

	p.mu.Lock()
	p.roster = roster
	p.mu.Unlock()

	fn(roster.Clone())
}

// Subscribed registers fn for the connection's connected event, which fires on
// every transport (re)connect rather than on channel join.
func (p *PresenceChannel) Subscribed(fn func(socketID string)) *PresenceChannel {
	p.base.Subscribed(fn)
	return p
}

func (p *PresenceChannel) Listen(event string, h Handler) *PresenceChannel {
	p.base.Listen(event, h)
	return p
}

func (p *PresenceChannel) StopListening(event string) *PresenceChannel {
	p.base.StopListening(event)
	return p
}

func (p *PresenceChannel) ListenForWhisper(event string, h Handler) *PresenceChannel {
	p.base.ListenForWhisper(event, h)
	return p
}

func (p *PresenceChannel) Whisper(event string, data any) *PresenceChannel {
	p.base.Whisper(event, data)
	return p
}

func (p *PresenceChannel) StopListeningForWhisper(event string) *PresenceChannel {
	p.base.StopListeningForWhisper(event)
	return p
}

func (p *PresenceChannel) Error(fn ErrorFunc) *PresenceChannel {
	p.base.Error(fn)
	return p
}

func (p *PresenceChannel) Joining(h Handler) *PresenceChannel {
	p.base.Listen(EventJoin, h)
	return p
}

func (p *PresenceChannel) Leaving(h Handler) *PresenceChannel {
	p.base.Listen(EventLeave, h)
	return p
}

// UnsubscribeBeacon signals leave without waiting for delivery and detaches
// the topic right away. It is the teardown hook.
func (p *PresenceChannel) UnsubscribeBeacon() {
	p.mu.Lock()
	token := p.token
	p.mu.Unlock()

	p.req.Beacon(p.conn.ID(), token, p.endpoint, map[string]string{paramChannelName: p.Name()}, http.MethodDelete)
	p.base.Unsubscribe()
	log.Info().Str("module", "presence").Str("channel", p.Name()).Msg("beacon leave")
}

// Unsubscribe leaves the channel once the join handshake has settled. On
// failure the topic stays attached and the teardown hook stays registered.
// The returned channel closes when the attempt is over.
func (p *PresenceChannel) Unsubscribe() <-chan struct{} {
	done := make(chan struct{})

	p.mu.Lock()
	settled := p.settled
	left := p.left
	p.mu.Unlock()

	if left {
		close(done)
		return done
	}

	go func() {
		defer close(done)
		if settled != nil {
			<-settled
		}

		if _, err := p.req.Delete(p.ctx, p.endpoint, map[string]string{paramChannelName: p.Name()}); err != nil {
			p.base.emitError(fmt.Errorf("%w: %s: %w", ErrLeave, p.Name(), err))
			return
		}

		p.base.Unsubscribe()

		p.mu.Lock()
		p.left = true
		p.token = ""
		hooked := p.hooked
		p.hooked = false
		p.mu.Unlock()

		if hooked {
			p.teardown.Deregister(p.hook)
		}
		log.Info().Str("module", "presence").Str("channel", p.Name()).Msg("left")
	}()
	return done
}
