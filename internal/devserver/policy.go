package devserver

import "github.com/mrcyclo/laravel-wave-client/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
)

type Policy interface {
	OnBackPressure(channel domain.ChannelName, s *Socket) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(domain.ChannelName, *Socket) BackpressureAction {
	return KickMember
}
