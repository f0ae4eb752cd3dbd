package world

import (
	"context"
	"fmt"
	"time"

	"github.com/worldkeeper/worldkeeper/internal/config"
	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

const deletionNotice = "The world you were in is being deleted."

// Options configures a Manager.
type Options struct {
	Server      *host.Server
	Scheduler   *scheduler.Scheduler
	Bus         *event.Bus
	Registry    *Registry
	Spawn       *Spawn
	Config      *types.Config
	Permissions Permissions
	// Now overrides the clock used for persisted timestamps.
	Now func() time.Time
}

// Manager wires the lifecycle components of all registered worlds.
type Manager struct {
	server   *host.Server
	sched    *scheduler.Scheduler
	bus      *event.Bus
	registry *Registry
	spawn    *Spawn
	perms    Permissions
	now      func() time.Time

	loader     *Loader
	unloader   *Unloader
	teleporter *Teleporter
	evictor    *Evictor
}

// NewManager builds the loader, unloader, teleporter and evictor from
// opts.
func NewManager(opts Options) (*Manager, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	grace, err := config.UnloadGrace(cfg.Unload)
	if err != nil {
		return nil, err
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}
	perms := opts.Permissions
	if perms == nil {
		perms = AllowAll{}
	}

	m := &Manager{
		server:   opts.Server,
		sched:    opts.Scheduler,
		bus:      opts.Bus,
		registry: opts.Registry,
		spawn:    opts.Spawn,
		perms:    perms,
		now:      now,
	}
	m.unloader = &Unloader{
		server:    opts.Server,
		sched:     opts.Scheduler,
		bus:       opts.Bus,
		registry:  opts.Registry,
		spawn:     opts.Spawn,
		enabled:   cfg.Unload.Enabled,
		grace:     grace,
		blacklist: cfg.Unload.Blacklist,
		now:       now,
	}
	m.loader = &Loader{
		server:   opts.Server,
		bus:      opts.Bus,
		registry: opts.Registry,
		unloader: m.unloader,
		defaults: cfg.Defaults,
		now:      now,
	}
	m.teleporter = &Teleporter{
		server:   opts.Server,
		sched:    opts.Scheduler,
		loader:   m.loader,
		unloader: m.unloader,
	}
	m.evictor = &Evictor{server: opts.Server, spawn: opts.Spawn}
	return m, nil
}

func (m *Manager) Server() *host.Server { return m.server }
func (m *Manager) Scheduler() *scheduler.Scheduler { return m.sched }
func (m *Manager) Bus() *event.Bus { return m.bus }
func (m *Manager) Registry() *Registry { return m.registry }
func (m *Manager) Spawn() *Spawn { return m.spawn }
func (m *Manager) Permissions() Permissions { return m.perms }
func (m *Manager) Loader() *Loader { return m.loader }
func (m *Manager) Unloader() *Unloader { return m.unloader }
func (m *Manager) Teleporter() *Teleporter { return m.teleporter }
func (m *Manager) Evictor() *Evictor { return m.evictor }

// ManageAll starts idle tracking for every registered world. It is
// called once at process start.
func (m *Manager) ManageAll() {
	for _, w := range m.registry.All() {
		m.unloader.ManageUnload(w)
	}
}

// Create registers a new world and loads it. It is called from a worker
// goroutine; the load runs on the main context. The world stays
// registered when the load fails.
func (m *Manager) Create(ctx context.Context, name string, data Data) (*World, error) {
	if data.Type == "" {
		data.Type = types.WorldNormal
	}
	if data.CreatedAt.IsZero() {
		data.CreatedAt = m.now()
	}

	w, err := m.registry.Add(ctx, name, data)
	if err != nil {
		return nil, err
	}
	logging.Info().Str("world", name).Str("id", w.ID.String()).Str("type", string(data.Type)).Msg("created world")

	var loadErr error
	if err := m.sched.Call(ctx, func() {
		_, loadErr = m.loader.Load(w)
	}); err != nil {
		return w, err
	}
	return w, loadErr
}

// Delete evicts every occupant of w, unloads it without saving, removes
// it from the registry and deletes its directory. It is called from a
// worker goroutine. Backups of w are not touched.
func (m *Manager) Delete(ctx context.Context, w *World) error {
	name := w.Name()
	if m.spawn != nil && m.spawn.WorldName() == name {
		return fmt.Errorf("%w: %q", ErrSpawnWorld, name)
	}
	if w.Restoring() {
		return fmt.Errorf("%w: %q", ErrRestoring, name)
	}

	// Evicted players are moved by posted work, so the unload is queued
	// behind their movement.
	if err := m.sched.Call(ctx, func() {
		m.evictor.RemovePlayers(w, deletionNotice)
	}); err != nil {
		return err
	}

	var unloadErr error
	if err := m.sched.Call(ctx, func() {
		unloadErr = m.unloader.ForceUnload(w, false)
	}); err != nil {
		return err
	}
	if unloadErr != nil {
		return fmt.Errorf("delete world %q: %w", name, unloadErr)
	}

	dir := m.registry.Dir(w)
	if err := m.registry.Remove(ctx, w); err != nil {
		return err
	}
	if err := m.server.Fs().RemoveAll(dir); err != nil {
		return fmt.Errorf("delete world directory %s: %w", dir, err)
	}
	logging.Info().Str("world", name).Str("id", w.ID.String()).Msg("deleted world")
	return nil
}

// Shutdown cancels every idle timer and saves all resident levels. It
// runs on the main context.
func (m *Manager) Shutdown() error {
	for _, w := range m.registry.All() {
		m.unloader.CancelUnloadTask(w)
	}
	return m.server.SaveAll()
}
