package world

import (
	"context"
	"errors"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
)

// Unloader unloads worlds after a period of inactivity. Each world has
// at most one pending unload timer.
type Unloader struct {
	server   *host.Server
	sched    *scheduler.Scheduler
	bus      *event.Bus
	registry *Registry
	spawn    *Spawn

	enabled   bool
	grace     time.Duration
	blacklist []string
	now       func() time.Time
}

// Enabled reports whether idle unloading is on.
func (u *Unloader) Enabled() bool { return u.enabled }

// Grace returns the idle period before a world is unloaded.
func (u *Unloader) Grace() time.Duration { return u.grace }

// ManageUnload initialises the loaded flag of w and starts its idle
// countdown. With idle unloading disabled the world is pinned loaded.
func (u *Unloader) ManageUnload(w *World) {
	if !u.enabled {
		w.setLoaded(true)
		return
	}
	w.setLoaded(u.server.Level(w.Name()) != nil)
	u.StartUnloadTask(w)
}

// StartUnloadTask schedules an idle check after the grace period,
// replacing any pending one.
func (u *Unloader) StartUnloadTask(w *World) {
	if !u.enabled {
		return
	}
	// A cancelled task never runs, so the one firing is always current.
	task := u.sched.After(u.grace, func() {
		w.swapUnloadTask(nil)
		u.Unload(w)
	})
	if prev := w.swapUnloadTask(task); prev != nil {
		prev.Cancel()
	}
}

// ResetUnloadTask cancels the pending idle check of w and starts a new
// one.
func (u *Unloader) ResetUnloadTask(w *World) {
	if prev := w.swapUnloadTask(nil); prev != nil {
		prev.Cancel()
	}
	u.StartUnloadTask(w)
}

// CancelUnloadTask cancels the pending idle check of w, if any.
func (u *Unloader) CancelUnloadTask(w *World) {
	if prev := w.swapUnloadTask(nil); prev != nil {
		prev.Cancel()
	}
}

// Unload unloads w unless it is occupied, blacklisted or the spawn world.
// An occupied world gets a fresh countdown instead.
func (u *Unloader) Unload(w *World) {
	name := w.Name()
	if u.server.Level(name) == nil {
		return
	}

	if len(u.server.PlayersIn(name)) > 0 {
		u.ResetUnloadTask(w)
		return
	}

	if u.Blacklisted(name) || u.isSpawnWorld(name) {
		return
	}

	if err := u.ForceUnload(w, true); err != nil && !errors.Is(err, ErrUnloadCancelled) {
		logging.Debug().Err(err).Str("world", name).Msg("idle unload failed")
	}
}

// Blacklisted reports whether name matches an entry of the never-unload
// list. Entries may be glob patterns.
func (u *Unloader) Blacklisted(name string) bool {
	for _, pattern := range u.blacklist {
		if pattern == name {
			return true
		}
		if ok, err := doublestar.Match(pattern, name); err == nil && ok {
			return true
		}
	}
	return false
}

func (u *Unloader) isSpawnWorld(name string) bool {
	return u.spawn != nil && u.spawn.Exists() && u.spawn.WorldName() == name
}

// ForceUnload unloads w without the idle checks, saving it first if save
// is set. A vetoed unload returns ErrUnloadCancelled and changes nothing.
// When the level cannot be released it stays loaded and its countdown
// restarts.
func (u *Unloader) ForceUnload(w *World, save bool) error {
	name := w.Name()
	if !u.bus.Allow(event.Event{Type: event.WorldUnload, Data: event.WorldData{ID: w.ID, Name: name}}) {
		return ErrUnloadCancelled
	}

	if lvl := u.server.Level(name); lvl != nil {
		if err := u.server.UnloadLevel(lvl, save); err != nil {
			logging.Warn().Err(err).Str("world", name).Str("id", w.ID.String()).
				Msg("failed to unload world, it may still be loaded")
			u.StartUnloadTask(w)
			return err
		}
	}

	u.CancelUnloadTask(w)
	w.setLoaded(false)
	if err := u.registry.Update(context.Background(), w, func(d *Data) {
		d.LastUnloaded = u.now()
	}); err != nil {
		logging.Warn().Err(err).Str("world", name).Msg("failed to persist world data")
	}

	u.bus.PublishSync(event.Event{Type: event.WorldUnloaded, Data: event.WorldData{ID: w.ID, Name: name}})
	logging.Info().Str("world", name).Str("id", w.ID.String()).Bool("saved", save).Msg("unloaded world")
	return nil
}
