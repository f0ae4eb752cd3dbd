package world

import (
	"context"
	"fmt"
	"time"

	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// fallbackSpawn is the known-safe entry point of void and template
// worlds: a gold block at y=64 with the spawn on top of it.
var fallbackSpawn = types.BlockPos{X: 0, Y: 64, Z: 0}

// Loader loads worlds into the host. Loading an already resident world
// is a no-op.
type Loader struct {
	server   *host.Server
	bus      *event.Bus
	registry *Registry
	unloader *Unloader
	defaults types.WorldDefaults
	now      func() time.Time
}

// LoadForPlayer loads w on behalf of p, showing a loading title first so
// a slow load is not mistaken for a hang.
func (l *Loader) LoadForPlayer(w *World, p *host.Player) (*host.Level, error) {
	if w.Restoring() {
		return nil, fmt.Errorf("%w: %q", ErrRestoring, w.Name())
	}
	if lvl := l.server.Level(w.Name()); lvl != nil {
		return lvl, nil
	}
	p.ShowTitle(fmt.Sprintf("Loading world %s...", w.Name()))
	return l.Load(w)
}

// Load makes w resident. A veto of the load notification returns
// ErrLoadCancelled without side effects. If the level cannot be created
// the world stays unloaded; no retry is attempted. A world being
// restored is refused with ErrRestoring.
func (l *Loader) Load(w *World) (*host.Level, error) {
	name := w.Name()
	if w.Restoring() {
		return nil, fmt.Errorf("%w: %q", ErrRestoring, name)
	}
	if lvl := l.server.Level(name); lvl != nil {
		w.setLoaded(true)
		return lvl, nil
	}

	if !l.bus.Allow(event.Event{Type: event.WorldLoad, Data: event.WorldData{ID: w.ID, Name: name}}) {
		return nil, ErrLoadCancelled
	}

	logging.Info().Str("world", name).Str("id", w.ID.String()).Msg("loading world")
	data := w.Data()
	lvl, err := l.server.CreateLevel(host.LevelSpec{
		Name:     name,
		Type:     data.Type,
		Template: data.Template,
	})
	if err != nil {
		logging.Warn().Err(err).Str("world", name).Str("id", w.ID.String()).Msg("failed to load world")
		return nil, fmt.Errorf("load world %q: %w", name, err)
	}

	l.applyDefaults(lvl, data.Type)

	w.setLoaded(true)
	if err := l.registry.Update(context.Background(), w, func(d *Data) {
		d.LastLoaded = l.now()
	}); err != nil {
		logging.Warn().Err(err).Str("world", name).Msg("failed to persist world data")
	}

	l.bus.PublishSync(event.Event{Type: event.WorldLoaded, Data: event.WorldData{ID: w.ID, Name: name}})
	l.unloader.ResetUnloadTask(w)
	return lvl, nil
}

func (l *Loader) applyDefaults(lvl *host.Level, t types.WorldType) {
	if l.defaults.Difficulty != "" {
		lvl.SetDifficulty(l.defaults.Difficulty)
	}
	if l.defaults.Time != nil {
		lvl.SetTime(*l.defaults.Time)
	}
	if l.defaults.WorldBorderSize != nil {
		lvl.SetBorderSize(*l.defaults.WorldBorderSize)
	}
	for rule, value := range l.defaults.GameRules {
		lvl.SetGameRule(rule, value)
	}

	if t.NeedsFallbackSpawn() && !IsSafeLocation(lvl, lvl.Spawn().Block()) {
		if err := lvl.SetBlock(fallbackSpawn, types.GoldBlock); err != nil {
			logging.Warn().Err(err).Str("world", lvl.Name()).Msg("failed to place spawn block")
			return
		}
		lvl.SetSpawn(fallbackSpawn.Up())
	}
}
