package app

import (
	"fmt"

	"github.com/dkeye/termrelay/internal/domain"
)

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a subscriber whose send buffer is full.
// Either way the frame is lost for that subscriber.
type Policy interface {
	OnBackPressure(room domain.RoomKey, conn domain.ConnID) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(domain.RoomKey, domain.ConnID) BackpressureAction {
	return DropFrame
}

type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomKey, domain.ConnID) BackpressureAction {
	return KickMember
}

// PolicyByName maps the slow_consumer config value onto a Policy.
func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", "drop":
		return DropPolicy{}, nil
	case "kick":
		return KickPolicy{}, nil
	default:
		return nil, fmt.Errorf("unknown slow consumer policy %q", name)
	}
}
