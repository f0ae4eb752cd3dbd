package world

import (
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// Evictor relocates players out of a world before it is destroyed or
// replaced.
type Evictor struct {
	server *host.Server
	spawn  *Spawn
}

// RemovePlayers moves every occupant of w to the spawn, or to the top of
// the default level when the spawn is unusable. Players with nowhere to
// go are disconnected. Each player receives notice. The relocated
// players are returned; disconnected ones are not.
func (e *Evictor) RemovePlayers(w *World, notice string) []*host.Player {
	name := w.Name()
	occupants := e.server.PlayersIn(name)
	if len(occupants) == 0 {
		return nil
	}

	fallback, hasFallback := e.fallback(name)

	var removed []*host.Player
	for _, p := range occupants {
		switch {
		case e.spawn != nil && e.spawn.WorldName() != name && e.spawn.Teleport(p):
		case hasFallback:
			e.server.Teleport(p, fallback, nil)
		default:
			e.server.Kick(p, notice)
			continue
		}
		p.Notify(notice)
		removed = append(removed, p)
	}
	return removed
}

// fallback returns the location above the highest block at the default
// level's spawn, unless that level is the one being emptied.
func (e *Evictor) fallback(exclude string) (types.Location, bool) {
	def := e.server.DefaultLevel()
	if def == nil || def.Name() == exclude {
		return types.Location{}, false
	}
	spawn := def.Spawn().Block()
	top := def.HighestBlockY(spawn.X, spawn.Z)
	return types.Location{
		World: def.Name(),
		X:     float64(spawn.X) + 0.5,
		Y:     float64(top) + 1,
		Z:     float64(spawn.Z) + 0.5,
	}, true
}
