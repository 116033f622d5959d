package devserver

import (
	"crypto/subtle"
	"io"
	"net/http"
	"net/url"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mrcyclo/laravel-wave-client/internal/domain"
	"github.com/rs/zerolog/log"
)

const (
	UsersPath = "/presence-channel-users"

	HeaderSocketID  = "X-Socket-ID"
	HeaderCSRFToken = "X-CSRF-TOKEN"
	HeaderUserName  = "X-User-Name"

	csrfSessionKey = "csrf"
	maxFormBytes   = 1 << 20
)

func (srv *Server) handleCSRF(c *gin.Context) {
	token, err := sessionToken(c)
	if err != nil {
		log.Error().Err(err).Str("module", "devserver").Msg("save session")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": token})
}

// sessionToken returns the CSRF token of the cookie session, issuing one if needed.
func sessionToken(c *gin.Context) (string, error) {
	session := sessions.Default(c)
	if token, ok := session.Get(csrfSessionKey).(string); ok && token != "" {
		return token, nil
	}
	token := uuid.NewString()
	session.Set(csrfSessionKey, token)
	return token, session.Save()
}

// params merges the query string with a form-encoded body, for DELETE too.
func params(c *gin.Context) url.Values {
	vals := c.Request.URL.Query()
	if c.Request.Body == nil || c.ContentType() != "application/x-www-form-urlencoded" {
		return vals
	}
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxFormBytes))
	if err != nil {
		return vals
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		return vals
	}
	for k, v := range form {
		vals[k] = v
	}
	return vals
}

// authorized accepts the CSRF header or, for beacons, the session_token field.
func authorized(c *gin.Context, form url.Values) bool {
	session := sessions.Default(c)
	want, _ := session.Get(csrfSessionKey).(string)
	if want == "" {
		return false
	}
	got := c.GetHeader(HeaderCSRFToken)
	if got == "" {
		got = form.Get("session_token")
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}

func (srv *Server) socketFor(c *gin.Context, form url.Values) (*Socket, bool) {
	id := c.GetHeader(HeaderSocketID)
	if id == "" {
		id = form.Get("socket_id")
	}
	if id == "" {
		id = form.Get("client_id")
	}
	return srv.hub.Socket(SocketID(id))
}

func channelName(form url.Values) (domain.ChannelName, bool) {
	name := domain.ChannelName(form.Get("channel_name"))
	if name.Validate() != nil || !name.IsPresence() {
		return "", false
	}
	return name, true
}

func (srv *Server) handleJoin(c *gin.Context) {
	form := params(c)
	if !authorized(c, form) {
		c.JSON(http.StatusForbidden, gin.H{"error": "csrf token mismatch"})
		return
	}
	name, ok := channelName(form)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_name"})
		return
	}
	s, ok := srv.socketFor(c, form)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown socket"})
		return
	}

	roster := srv.hub.Join(name, s)
	token, _ := sessionToken(c)
	log.Info().Str("module", "devserver").Str("sid", string(s.ID)).Str("channel", string(name)).Msg("join")
	c.JSON(http.StatusOK, gin.H{
		"_token": token,
		"users":  roster,
	})
}

func (srv *Server) handleRoster(c *gin.Context) {
	name, ok := channelName(c.Request.URL.Query())
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_name"})
		return
	}
	c.JSON(http.StatusOK, srv.hub.Roster(name))
}

func (srv *Server) handleLeave(c *gin.Context) {
	form := params(c)
	if !authorized(c, form) {
		c.JSON(http.StatusForbidden, gin.H{"error": "csrf token mismatch"})
		return
	}
	name, ok := channelName(form)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_name"})
		return
	}
	s, ok := srv.socketFor(c, form)
	if !ok {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown socket"})
		return
	}
	srv.hub.Leave(name, s.ID)
	log.Info().Str("module", "devserver").Str("sid", string(s.ID)).Str("channel", string(name)).Msg("leave")
	c.Status(http.StatusNoContent)
}
