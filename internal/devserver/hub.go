package devserver

import (
	"sort"
	"sync"

	"github.com/mrcyclo/laravel-wave-client/internal/domain"
	"github.com/mrcyclo/laravel-wave-client/internal/transport"
	"github.com/rs/zerolog/log"
)

const (
	EventJoin  = "join"
	EventLeave = "leave"
)

// Hub is a threadsafe in-memory registry of sockets, topic subscriptions and
// presence rosters. It never closes sockets except through the policy.
type Hub struct {
	policy Policy

	mu      sync.RWMutex
	sockets map[SocketID]*Socket
	topics  map[domain.ChannelName]map[SocketID]*Socket
	rosters map[domain.ChannelName]map[SocketID]*User
}

func NewHub(policy Policy) *Hub {
	return &Hub{
		policy:  policy,
		sockets: make(map[SocketID]*Socket),
		topics:  make(map[domain.ChannelName]map[SocketID]*Socket),
		rosters: make(map[domain.ChannelName]map[SocketID]*User),
	}
}

func (h *Hub) Add(s *Socket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sockets[s.ID] = s
	log.Info().Str("module", "devserver.hub").Str("sid", string(s.ID)).Msg("socket added")
}

func (h *Hub) Socket(id SocketID) (*Socket, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sockets[id]
	return s, ok
}

func (h *Hub) Subscribe(name domain.ChannelName, s *Socket) {
	if err := name.Validate(); err != nil {
		s.sendEnvelope(string(name), transport.EventError, map[string]string{"message": err.Error()})
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	subs, ok := h.topics[name]
	if !ok {
		subs = make(map[SocketID]*Socket)
		h.topics[name] = subs
	}
	subs[s.ID] = s
	log.Debug().Str("module", "devserver.hub").Str("sid", string(s.ID)).Str("channel", string(name)).Msg("subscribed")
}

func (h *Hub) Unsubscribe(name domain.ChannelName, id SocketID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(name, id)
}

func (h *Hub) unsubscribeLocked(name domain.ChannelName, id SocketID) {
	if subs, ok := h.topics[name]; ok {
		delete(subs, id)
		if len(subs) == 0 {
			delete(h.topics, name)
		}
	}
}

func (h *Hub) IsSubscribed(name domain.ChannelName, id SocketID) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.topics[name][id]
	return ok
}

// Join adds the socket's user to the roster, announces it to the other
// subscribers and returns the roster including the newcomer.
func (h *Hub) Join(name domain.ChannelName, s *Socket) []User {
	h.mu.Lock()
	members, ok := h.rosters[name]
	if !ok {
		members = make(map[SocketID]*User)
		h.rosters[name] = members
	}
	_, already := members[s.ID]
	members[s.ID] = s.User
	roster := snapshot(members)
	h.mu.Unlock()

	if !already {
		h.Broadcast(name, s.ID, EventJoin, s.User)
	}
	log.Info().Str("module", "devserver.hub").Str("sid", string(s.ID)).Str("channel", string(name)).Int("members", len(roster)).Msg("member joined")
	return roster
}

// Leave removes the socket from the roster and announces it. It reports
// whether the socket was a member.
func (h *Hub) Leave(name domain.ChannelName, id SocketID) bool {
	h.mu.Lock()
	user, ok := h.rosters[name][id]
	if ok {
		delete(h.rosters[name], id)
		if len(h.rosters[name]) == 0 {
			delete(h.rosters, name)
		}
	}
	h.mu.Unlock()

	if ok {
		h.Broadcast(name, id, EventLeave, user)
		log.Info().Str("module", "devserver.hub").Str("sid", string(id)).Str("channel", string(name)).Msg("member left")
	}
	return ok
}

func (h *Hub) Roster(name domain.ChannelName) []User {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return snapshot(h.rosters[name])
}

// Drop forgets a closed socket: every roster it was part of sees a leave.
func (h *Hub) Drop(id SocketID) {
	h.mu.Lock()
	delete(h.sockets, id)
	var joined []domain.ChannelName
	for name, members := range h.rosters {
		if _, ok := members[id]; ok {
			joined = append(joined, name)
		}
	}
	for name := range h.topics {
		h.unsubscribeLocked(name, id)
	}
	h.mu.Unlock()

	for _, name := range joined {
		h.Leave(name, id)
	}
	log.Info().Str("module", "devserver.hub").Str("sid", string(id)).Int("rosters", len(joined)).Msg("socket dropped")
}

// Broadcast sends to every subscriber of name except from.
func (h *Hub) Broadcast(name domain.ChannelName, from SocketID, event string, data any) PublishResult {
	env, err := transport.NewEnvelope(string(name), event, data)
	res := PublishResult{}
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.hub").Msg("broadcast envelope")
		return res
	}
	frame, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "devserver.hub").Msg("broadcast encode")
		return res
	}

	h.mu.RLock()
	for sid, s := range h.topics[name] {
		if sid == from {
			continue
		}
		if err := s.TrySend(frame); err != nil {
			res.Dropped = append(res.Dropped, s)
			continue
		}
		res.SendTo++
	}
	h.mu.RUnlock()

	for _, slow := range res.Dropped {
		if h.policy != nil && h.policy.OnBackPressure(name, slow) == KickMember {
			log.Warn().Str("module", "devserver.hub").Str("sid", string(slow.ID)).Msg("kicking slow socket")
			slow.Close()
		}
	}
	log.Debug().Str("module", "devserver.hub").Str("from", string(from)).Str("event", event).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

// PublishResult reports delivery stats/backpressure.
type PublishResult struct {
	SendTo  int
	Dropped []*Socket
}

// snapshot dedups users present on several sockets.
func snapshot(members map[SocketID]*User) []User {
	seen := make(map[string]struct{}, len(members))
	out := make([]User, 0, len(members))
	for _, u := range members {
		if _, ok := seen[u.ID]; ok {
			continue
		}
		seen[u.ID] = struct{}{}
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
