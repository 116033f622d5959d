// Package devserver is a reference presence server for local development and
// end-to-end tests of the client.
package devserver

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/mrcyclo/laravel-wave-client/internal/config"
	"github.com/mrcyclo/laravel-wave-client/internal/transport"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const sendBuffer = 32

type Server struct {
	cfg      config.Server
	hub      *Hub
	users    *Users
	upgrader websocket.Upgrader
}

func New(cfg config.Server) *Server {
	if cfg.PingPeriod <= 0 {
		cfg.PingPeriod = 54 * time.Second
	}
	if cfg.ReadLimit <= 0 {
		cfg.ReadLimit = 32768
	}
	if cfg.WhisperRate <= 0 {
		cfg.WhisperRate = 10
	}
	if cfg.WhisperBurst <= 0 {
		cfg.WhisperBurst = 20
	}
	if cfg.Secret == "" {
		cfg.Secret = uuid.NewString()
	}
	return &Server{
		cfg:   cfg,
		hub:   NewHub(SimplePolicy{}),
		users: NewUsers(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (srv *Server) Hub() *Hub { return srv.hub }

// HandleSocket upgrades the request and runs the socket pumps until the
// client goes away or ctx is done.
func (srv *Server) HandleSocket(ctx context.Context, c *gin.Context) {
	user := srv.users.GetOrCreate(c.GetString(clientTokenKey), c.GetHeader(HeaderUserName))

	ws, err := srv.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("ws upgrade")
		return
	}

	s := &Socket{
		ID:      SocketID(uuid.NewString()),
		User:    user,
		conn:    ws,
		send:    make(chan []byte, sendBuffer),
		limiter: rate.NewLimiter(rate.Limit(srv.cfg.WhisperRate), srv.cfg.WhisperBurst),
	}
	srv.hub.Add(s)
	log.Info().Str("module", "devserver").Str("sid", string(s.ID)).Str("user", user.ID).Msg("new WS connection")

	s.sendEnvelope("", transport.EventConnected, map[string]string{"socket_id": string(s.ID)})

	ctx, cancel := context.WithCancel(ctx)
	go srv.writePump(ctx, s)
	go srv.readPump(ctx, cancel, s)
}
