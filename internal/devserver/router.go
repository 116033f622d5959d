package devserver

import (
	"context"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	clientTokenKey    = "client_token"
	clientTokenCookie = "ct"
	sessionName       = "wave_session"
	clientTokenMaxAge = 7 * 24 * 3600
)

// ClientTokenMiddleware pins every browser-like client to a long-lived "ct"
// cookie; the token doubles as the dev server user id.
func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(clientTokenCookie)
		if err != nil || token == "" {
			token = uuid.NewString()
			c.SetCookie(clientTokenCookie, token, clientTokenMaxAge, "/", "", false, true)
			log.Debug().Str("module", "devserver").Str("client", token).Msg("issued client token")
		}
		c.Set(clientTokenKey, token)
		c.Next()
	}
}

func (srv *Server) SetupRouter(ctx context.Context) *gin.Engine {
	if srv.cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if srv.cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(srv.cfg.Secret))
	r.Use(sessions.Sessions(sessionName, store))
	r.Use(ClientTokenMiddleware())

	log.Info().Str("module", "devserver").Msg("router setup")

	api := r.Group("/api")

	api.GET("/csrf", srv.handleCSRF)

	api.GET("/ws", func(c *gin.Context) {
		log.Debug().Str("module", "devserver").Str("client", c.GetString(clientTokenKey)).Msg("ws endpoint hit")
		srv.HandleSocket(ctx, c)
	})

	users := api.Group(UsersPath)
	users.POST("", srv.handleJoin)
	users.GET("", srv.handleRoster)
	users.DELETE("", srv.handleLeave)

	return r
}
