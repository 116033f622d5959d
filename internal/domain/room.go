// Package domain holds channel names and member descriptors shared by the
// client and the reference server.
package domain

import (
	"errors"
	"strings"
)

var ErrEmptyChannelName = errors.New("channel name empty")

const (
	PrivatePrefix  = "private-"
	PresencePrefix = "presence-"
)

type ChannelName string

func (n ChannelName) Validate() error {
	if strings.TrimSpace(string(n)) == "" {
		return ErrEmptyChannelName
	}
	return nil
}

func (n ChannelName) Private() ChannelName  { return PrivatePrefix + n.Bare() }
func (n ChannelName) Presence() ChannelName { return PresencePrefix + n.Bare() }

// Bare strips the private/presence prefix.
func (n ChannelName) Bare() ChannelName {
	s := string(n)
	s = strings.TrimPrefix(s, PresencePrefix)
	s = strings.TrimPrefix(s, PrivatePrefix)
	return ChannelName(s)
}

func (n ChannelName) IsPresence() bool { return strings.HasPrefix(string(n), PresencePrefix) }
