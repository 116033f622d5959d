package devserver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/mrcyclo/laravel-wave-client/internal/domain"
	"github.com/mrcyclo/laravel-wave-client/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrSocketClosed = errors.New("connection closed")
)

const writeWait = 5 * time.Second

type SocketID string

// Socket is one websocket client of the pub/sub side.
type Socket struct {
	ID      SocketID
	User    *User
	conn    *websocket.Conn
	send    chan []byte
	limiter *rate.Limiter

	mu     sync.RWMutex
	closed bool
}

func (s *Socket) TrySend(f []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSocketClosed
	}
	select {
	case s.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (s *Socket) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.send)
	_ = s.conn.Close()
	s.mu.Unlock()
}

func (s *Socket) sendEnvelope(channel, event string, data any) {
	env, err := transport.NewEnvelope(channel, event, data)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("envelope")
		return
	}
	b, err := env.Encode()
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("encode envelope")
		return
	}
	_ = s.TrySend(b)
}

func (srv *Server) writePump(ctx context.Context, s *Socket) {
	ticker := time.NewTicker(srv.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "devserver").Str("sid", string(s.ID)).Msg("writePump ctx done")
			return
		case data, ok := <-s.send:
			if !ok {
				return
			}
			if err := s.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "devserver").Msg("writePump set deadline")
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "devserver").Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}

func (srv *Server) readPump(ctx context.Context, cancel context.CancelFunc, s *Socket) {
	defer func() {
		log.Info().Str("module", "devserver").Str("sid", string(s.ID)).Msg("readPump closing")
		cancel()
		srv.hub.Drop(s.ID)
		s.Close()
	}()

	pongWait := srv.cfg.PingPeriod * 10 / 9
	s.conn.SetReadLimit(srv.cfg.ReadLimit)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := s.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "devserver").Str("sid", string(s.ID)).Msg("readPump read error")
				return
			}
			_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
			srv.handleFrame(s, data)
		}
	}
}

func (srv *Server) handleFrame(s *Socket, data []byte) {
	env, err := transport.DecodeEnvelope(data)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("bad json")
		return
	}

	switch {
	case env.Event == transport.EventSubscribe:
		srv.hub.Subscribe(domain.ChannelName(env.Channel), s)
	case env.Event == transport.EventUnsubscribe:
		srv.hub.Unsubscribe(domain.ChannelName(env.Channel), s.ID)
	case strings.HasPrefix(env.Event, "client-"):
		srv.handleWhisper(s, env)
	default:
		log.Warn().Str("module", "devserver").Str("event", env.Event).Msg("unknown frame")
	}
}

func (srv *Server) handleWhisper(s *Socket, env transport.Envelope) {
	name := domain.ChannelName(env.Channel)
	if !strings.HasPrefix(env.Channel, domain.PrivatePrefix) && !name.IsPresence() {
		s.sendEnvelope(env.Channel, transport.EventError, gin.H{"message": "whisper requires a private channel"})
		return
	}
	if !srv.hub.IsSubscribed(name, s.ID) {
		s.sendEnvelope(env.Channel, transport.EventError, gin.H{"message": "not subscribed"})
		return
	}
	if !s.limiter.Allow() {
		s.sendEnvelope(env.Channel, transport.EventError, gin.H{"message": "rate limited"})
		return
	}
	srv.hub.Broadcast(name, s.ID, env.Event, env.Data)
}
