package backup

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/worldkeeper/worldkeeper/internal/archive"
	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/world"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

const restoreNotice = "Restoration in progress."

// Profile creates and restores the backups of one world. Creation,
// deletion and restoration hold the profile's lock, so operations on
// the same world never interleave. Profiles of different worlds are
// independent.
type Profile struct {
	worldID uuid.UUID
	manager *world.Manager
	storage Storage
	limit   int

	mu     sync.Mutex
	active atomic.Int32
}

func newProfile(worldID uuid.UUID, manager *world.Manager, storage Storage, limit int) *Profile {
	return &Profile{worldID: worldID, manager: manager, storage: storage, limit: limit}
}

// WorldID returns the identity of the profile's world.
func (p *Profile) WorldID() uuid.UUID { return p.worldID }

// Busy reports whether an operation is in flight.
func (p *Profile) Busy() bool { return p.active.Load() > 0 }

func (p *Profile) enter() func() {
	p.active.Add(1)
	return func() { p.active.Add(-1) }
}

func (p *Profile) world() (*world.World, error) {
	return p.manager.Registry().ByID(p.worldID)
}

// ListBackups returns the world's backups, oldest first.
func (p *Profile) ListBackups(ctx context.Context) ([]types.Backup, error) {
	return p.storage.List(ctx, p.worldID)
}

// CreateBackup flushes the world if it is resident and stores a new
// backup. The oldest backups are deleted first so the number stored
// never exceeds the cap. Deletions already done are kept when storing
// fails.
func (p *Profile) CreateBackup(ctx context.Context) (types.Backup, error) {
	defer p.enter()()

	p.mu.Lock()
	defer p.mu.Unlock()

	w, err := p.world()
	if err != nil {
		return types.Backup{}, err
	}
	if err := p.flush(ctx, w); err != nil {
		return types.Backup{}, err
	}

	existing, err := p.storage.List(ctx, p.worldID)
	if err != nil {
		return types.Backup{}, err
	}
	if excess := len(existing) - p.limit + 1; excess > 0 {
		if err := p.deleteAll(ctx, existing[:excess]); err != nil {
			return types.Backup{}, fmt.Errorf("rotate backups: %w", err)
		}
		logging.Info().Str("world", w.Name()).Str("id", p.worldID.String()).Int("deleted", excess).Msg("rotated backups")
	}

	b, err := p.storage.Store(ctx, p.worldID, p.manager.Registry().Dir(w))
	if err != nil {
		return types.Backup{}, err
	}

	logging.Info().Str("world", w.Name()).Str("id", p.worldID.String()).Str("backup", b.ID).Int64("size", b.Size).Msg("created backup")
	p.publish(event.BackupCreated, w, b)
	return b, nil
}

// flush saves the resident level of w on the main context.
func (p *Profile) flush(ctx context.Context, w *world.World) error {
	var saveErr error
	if err := p.manager.Scheduler().Call(ctx, func() {
		if lvl := p.manager.Server().Level(w.Name()); lvl != nil {
			saveErr = lvl.Save()
		}
	}); err != nil {
		return err
	}
	if saveErr != nil {
		return fmt.Errorf("flush world %q: %w", w.Name(), saveErr)
	}
	return nil
}

func (p *Profile) deleteAll(ctx context.Context, backups []types.Backup) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, b := range backups {
		g.Go(func() error {
			return p.storage.Delete(gctx, b)
		})
	}
	return g.Wait()
}

// DeleteBackup removes one backup.
func (p *Profile) DeleteBackup(ctx context.Context, b types.Backup) error {
	defer p.enter()()
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.storage.Delete(ctx, b); err != nil {
		return err
	}
	if w, err := p.world(); err == nil {
		p.publish(event.BackupDeleted, w, b)
	}
	return nil
}

// Destroy deletes every backup of the world.
func (p *Profile) Destroy(ctx context.Context) error {
	defer p.enter()()
	p.mu.Lock()
	defer p.mu.Unlock()

	backups, err := p.storage.List(ctx, p.worldID)
	if err != nil {
		return err
	}
	if err := p.deleteAll(ctx, backups); err != nil {
		return err
	}
	logging.Info().Str("id", p.worldID.String()).Int("deleted", len(backups)).Msg("destroyed backups")
	return nil
}

// RestoreBackup replaces the world's directory with the contents of b.
// The world must be resident. Its occupants are moved out, the world is
// unloaded without saving, its directory is replaced, and it is loaded
// again before the occupants are brought back. A failure after the
// unload leaves the world unloaded.
//
// Cancelling ctx does not interrupt a restore once it has started. While
// it runs the world is marked as restoring, so nothing else can load it.
func (p *Profile) RestoreBackup(ctx context.Context, b types.Backup, requester *host.Player) error {
	defer p.enter()()
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx = context.WithoutCancel(ctx)

	w, err := p.world()
	if err != nil {
		return err
	}
	name := w.Name()
	sched := p.manager.Scheduler()
	log := logging.With().Str("world", name).Str("id", p.worldID.String()).Str("backup", b.ID).Logger()

	if p.manager.Server().Level(name) == nil {
		return fmt.Errorf("%w: world %q is not loaded", ErrNoTarget, name)
	}
	if err := w.BeginRestore(); err != nil {
		return err
	}
	defer w.EndRestore()

	var evicted []*host.Player
	if err := sched.Call(ctx, func() {
		evicted = p.manager.Evictor().RemovePlayers(w, restoreNotice)
	}); err != nil {
		return err
	}

	path, release, err := p.storage.Download(ctx, b)
	if err != nil {
		log.Error().Err(err).Msg("failed to download backup")
		return fmt.Errorf("download backup %s: %w", b.ID, err)
	}
	defer release()

	spawn := p.manager.Spawn()
	spawnLoc, hasSpawn := spawn.Location()
	wasSpawn := hasSpawn && spawnLoc.World == name

	// Players that arrived since the first eviction, e.g. sent to the
	// spawn, are moved out as well. Their movement is posted work, so the
	// unload is queued behind it.
	if err := sched.Call(ctx, func() {
		evicted = append(evicted, p.manager.Evictor().RemovePlayers(w, restoreNotice)...)
	}); err != nil {
		return err
	}

	var unloadErr error
	if err := sched.Call(ctx, func() {
		unloadErr = p.manager.Unloader().ForceUnload(w, false)
	}); err != nil {
		return err
	}
	if unloadErr != nil {
		log.Error().Err(unloadErr).Msg("failed to unload world for restore")
		return fmt.Errorf("unload world %q: %w", name, unloadErr)
	}

	fs := p.manager.Server().Fs()
	dir := p.manager.Registry().Dir(w)
	if err := fs.RemoveAll(dir); err != nil {
		log.Error().Err(err).Msg("failed to delete world directory")
		return fmt.Errorf("delete %s: %w", dir, err)
	}
	if err := fs.MkdirAll(dir, 0755); err != nil {
		log.Error().Err(err).Msg("failed to recreate world directory")
		return err
	}
	if err := archive.ExtractFile(fs, path, dir); err != nil {
		log.Error().Err(err).Msg("failed to extract backup")
		return fmt.Errorf("extract backup %s: %w", b.ID, err)
	}

	var loadErr error
	if err := sched.Call(ctx, func() {
		w.EndRestore()
		if _, loadErr = p.manager.Loader().Load(w); loadErr != nil {
			return
		}
		for _, occupant := range evicted {
			if !occupant.Online() {
				continue
			}
			if err := p.manager.Teleporter().Teleport(w, occupant, nil); err != nil {
				log.Warn().Err(err).Str("player", occupant.Name).Msg("failed to return player")
			}
		}
	}); err != nil {
		return err
	}
	if loadErr != nil {
		log.Error().Err(loadErr).Msg("failed to load restored world")
		return loadErr
	}

	if wasSpawn {
		if err := spawn.Set(ctx, spawnLoc.In(name)); err != nil {
			log.Warn().Err(err).Msg("failed to re-point spawn")
		}
	}

	requesterName := ""
	if requester != nil {
		requesterName = requester.Name
	}
	log.Info().Str("requester", requesterName).Int("returned", len(evicted)).Msg("restored backup")
	p.publish(event.BackupRestored, w, b)
	return nil
}

func (p *Profile) publish(typ event.EventType, w *world.World, b types.Backup) {
	p.manager.Bus().Publish(event.Event{
		Type: typ,
		Data: event.BackupData{
			WorldID:   w.ID,
			World:     w.Name(),
			BackupID:  b.ID,
			CreatedAt: b.CreatedAt,
		},
	})
}
