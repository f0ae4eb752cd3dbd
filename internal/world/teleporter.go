package world

import (
	"fmt"

	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// loadSettleTicks is how long movement waits after a world had to be
// loaded first.
const loadSettleTicks = 20

const teleportSound = "entity.enderman.teleport"

// IsSafeLocation reports whether a player can stand at pos: the feet are
// not squeezed into solid blocks, the head is free and the block below
// is solid.
func IsSafeLocation(lvl *host.Level, pos types.BlockPos) bool {
	feet := lvl.BlockAt(pos)
	head := lvl.BlockAt(pos.Up())
	if !feet.Passable() && !head.Passable() {
		return false
	}
	if !head.Passable() {
		return false
	}
	return lvl.BlockAt(pos.Down()).Solid()
}

// Teleporter moves players into worlds, loading them first if needed.
type Teleporter struct {
	server   *host.Server
	sched    *scheduler.Scheduler
	loader   *Loader
	unloader *Unloader
}

// Teleport moves p into w. done, if set, receives the outcome of the
// asynchronous movement; a failed movement is not retried.
func (t *Teleporter) Teleport(w *World, p *host.Player, done func(bool)) error {
	name := w.Name()
	if w.Restoring() {
		p.Notify(fmt.Sprintf("The world %s is being restored.", name))
		return fmt.Errorf("%w: %q", ErrRestoring, name)
	}
	hadToLoad := false
	if t.unloader.Enabled() && t.server.Level(name) == nil {
		if _, err := t.loader.LoadForPlayer(w, p); err != nil {
			p.ResetTitle()
			p.Notify(fmt.Sprintf("The world %s is unknown.", name))
			return err
		}
		hadToLoad = true
	}

	lvl := t.server.Level(name)
	if lvl == nil {
		p.Notify(fmt.Sprintf("The world %s is unknown.", name))
		return fmt.Errorf("%w: %q is not loaded", ErrNotFound, name)
	}

	dest := t.Destination(w, lvl)
	move := func() {
		t.server.Teleport(p, dest, func(ok bool) {
			if ok {
				p.ResetTitle()
				p.PlaySound(teleportSound)
				t.unloader.ResetUnloadTask(w)
				if !lvl.BlockAt(dest.Block().Down()).Solid() {
					p.SetFlying(p.AllowFlight())
				}
			}
			if done != nil {
				done(ok)
			}
		})
	}

	if hadToLoad {
		t.sched.After(scheduler.Ticks(loadSettleTicks), move)
	} else {
		move()
	}
	return nil
}

// Destination resolves where a player entering w lands. A custom spawn
// wins; other-dimension worlds scan upward for the first safe block;
// everything else uses the level spawn at the block center.
func (t *Teleporter) Destination(w *World, lvl *host.Level) types.Location {
	loc := lvl.Spawn().Add(0.5, 0, 0.5)

	data := w.Data()
	if data.CustomSpawn != nil {
		return data.CustomSpawn.In(lvl.Name())
	}
	if !data.Type.OtherDimension() {
		return loc
	}

	column := loc.Block()
	for y := lvl.MinHeight(); y < lvl.MaxHeight(); y++ {
		pos := types.BlockPos{X: column.X, Y: y, Z: column.Z}
		if IsSafeLocation(lvl, pos) {
			return types.Location{
				World: lvl.Name(),
				X:     float64(pos.X) + 0.5,
				Y:     float64(pos.Y) + 1,
				Z:     float64(pos.Z) + 0.5,
			}
		}
	}
	return loc
}
