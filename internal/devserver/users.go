package devserver

import (
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

const (
	defaultUsername = "guest"
	maxUsernameLen  = 36
)

var ErrBadUsername = errors.New("devserver: username must be 1-36 bytes")

// User is the member descriptor handed out in rosters and join/leave frames.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

func checkUsername(name string) error {
	if name == "" || len(name) > maxUsernameLen {
		return ErrBadUsername
	}
	return nil
}

// Users maps client tokens to users. Entries are never mutated once handed
// out; a rename stores a fresh copy.
type Users struct {
	mu    sync.Mutex
	users map[string]*User
}

func NewUsers() *Users {
	return &Users{users: make(map[string]*User)}
}

// GetOrCreate returns the user behind token. A valid non-empty name renames it.
func (r *Users) GetOrCreate(token, name string) *User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[token]
	if !ok {
		u = &User{ID: token, Username: defaultUsername}
		r.users[token] = u
		log.Info().Str("module", "devserver.users").Str("user", token).Msg("created new user")
	}
	if name == "" || name == u.Username {
		return u
	}
	if err := checkUsername(name); err != nil {
		log.Warn().Err(err).Str("module", "devserver.users").Str("user", token).Msg("rename rejected")
		return u
	}
	u = &User{ID: u.ID, Username: name}
	r.users[token] = u
	return u
}
