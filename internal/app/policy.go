package app

import (
	"strings"

	"github.com/dkeye/DetectBench/internal/core"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a member whose delivery failed.
// The failed frame itself is always lost.
type Policy interface {
	OnBackPressure(room core.RoomService, member core.MemberSession) BackpressureAction
}

type DropPolicy struct{}

func (DropPolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return DropFrame
}

type KickPolicy struct{}

func (KickPolicy) OnBackPressure(core.RoomService, core.MemberSession) BackpressureAction {
	return KickMember
}

// PolicyByName maps a config value to a Policy, defaulting to DropPolicy.
func PolicyByName(name string) Policy {
	switch strings.ToLower(name) {
	case "kick":
		return KickPolicy{}
	default:
		return DropPolicy{}
	}
}
