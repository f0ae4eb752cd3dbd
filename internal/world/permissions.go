package world

import "github.com/worldkeeper/worldkeeper/internal/host"

// Permissions is the gate deciding whether a player may enter or modify
// a world.
type Permissions interface {
	CanEnter(p *host.Player, w *World) bool
	CanModify(p *host.Player, w *World) bool
}

// AllowAll grants every permission.
type AllowAll struct{}

func (AllowAll) CanEnter(*host.Player, *World) bool  { return true }
func (AllowAll) CanModify(*host.Player, *World) bool { return true }
