// Package backup creates, rotates and restores archived snapshots of
// world directories.
package backup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/worldkeeper/worldkeeper/internal/cache"
	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/internal/world"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

var (
	ErrNotFound = errors.New("backup not found")
	// ErrNoTarget is returned when restoring into a world that is not
	// resident.
	ErrNoTarget = errors.New("restore target not loaded")
)

const (
	// ProfileTTL is how long an idle profile stays cached.
	ProfileTTL = 3 * time.Minute
	// SweepInterval is the period of the automatic backup sweep.
	SweepInterval = 5 * time.Second
)

// TimeFormat formats backup timestamps in messages.
const TimeFormat = "2006-01-02 15:04:05"

// Service is the entry point for backups. It caches one Profile per
// world identity and drives the automatic backup sweep.
type Service struct {
	manager  *world.Manager
	storage  Storage
	cfg      types.BackupConfig
	profiles *cache.Cache[uuid.UUID, *Profile]

	ctx    context.Context
	cancel context.CancelFunc
	sweep  *scheduler.Task
}

// NewService creates a backup service.
func NewService(manager *world.Manager, storage Storage, cfg types.BackupConfig) *Service {
	if cfg.MaxBackupsPerWorld < 1 {
		cfg.MaxBackupsPerWorld = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		manager: manager,
		storage: storage,
		cfg:     cfg,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.profiles = cache.New(ProfileTTL, func(id uuid.UUID) *Profile {
		return newProfile(id, manager, storage, cfg.MaxBackupsPerWorld)
	}, cache.WithRetain[uuid.UUID](func(p *Profile) bool { return p.Busy() }))
	return s
}

// Storage returns the backing storage.
func (s *Service) Storage() Storage { return s.storage }

// Profile returns the profile of w, creating it on a cache miss.
func (s *Service) Profile(w *world.World) *Profile {
	return s.profiles.Get(w.ID)
}

// Start begins the automatic sweep when it is enabled.
func (s *Service) Start() {
	if !s.cfg.AutoBackup.Enabled || s.sweep != nil {
		return
	}
	s.sweep = s.manager.Scheduler().Every(SweepInterval, s.tick)
	logging.Info().Int("interval", s.cfg.AutoBackup.Interval).Bool("onlyActive", s.cfg.AutoBackup.OnlyActiveWorlds).
		Msg("automatic backups enabled")
}

// Stop ends the sweep and cancels backups started by it.
func (s *Service) Stop() {
	s.sweep.Cancel()
	s.cancel()
}

// tick runs one sweep on the main context.
func (s *Service) tick() {
	step := int64(SweepInterval / time.Second)
	registry := s.manager.Registry()

	for _, w := range s.eligible() {
		due := false
		err := registry.Update(s.ctx, w, func(d *world.Data) {
			d.TimeSinceBackup += step
			if d.TimeSinceBackup > int64(s.cfg.AutoBackup.Interval) {
				d.TimeSinceBackup = 0
				due = true
			}
		})
		if err != nil {
			logging.Warn().Err(err).Str("world", w.Name()).Msg("failed to persist backup counter")
		}
		if due {
			name := w.Name()
			s.Backup(w, nil, func(err error) {
				logging.Error().Err(err).Str("world", name).Msg("automatic backup failed")
			})
		}
	}

	s.profiles.Cleanup()
}

// eligible returns the worlds the sweep counts time for: every world, or
// only those holding a player allowed to modify them.
func (s *Service) eligible() []*world.World {
	registry := s.manager.Registry()
	if !s.cfg.AutoBackup.OnlyActiveWorlds {
		return registry.All()
	}

	perms := s.manager.Permissions()
	seen := make(map[uuid.UUID]bool)
	var worlds []*world.World
	for _, p := range s.manager.Server().Players() {
		w, err := registry.Get(p.World())
		if err != nil || seen[w.ID] {
			continue
		}
		if perms.CanModify(p, w) {
			seen[w.ID] = true
			worlds = append(worlds, w)
		}
	}
	return worlds
}

// Backup creates a backup of w in the background. onSuccess or
// onFailure, if set, run on the main context afterwards.
func (s *Service) Backup(w *world.World, onSuccess func(types.Backup), onFailure func(error)) {
	profile := s.Profile(w)
	go func() {
		b, err := profile.CreateBackup(s.ctx)
		s.manager.Scheduler().Post(func() {
			if err != nil {
				if onFailure != nil {
					onFailure(err)
				}
				return
			}
			if onSuccess != nil {
				onSuccess(b)
			}
		})
	}()
}

// CreateBackup creates a backup of w and waits for it.
func (s *Service) CreateBackup(ctx context.Context, w *world.World) (types.Backup, error) {
	return s.Profile(w).CreateBackup(ctx)
}

// List returns the backups of w, oldest first.
func (s *Service) List(ctx context.Context, w *world.World) ([]types.Backup, error) {
	return s.Profile(w).ListBackups(ctx)
}

// Find returns the backup of w with id.
func (s *Service) Find(ctx context.Context, w *world.World, id string) (types.Backup, error) {
	backups, err := s.List(ctx, w)
	if err != nil {
		return types.Backup{}, err
	}
	for _, b := range backups {
		if b.ID == id {
			return b, nil
		}
	}
	return types.Backup{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Restore restores the backup of w with id. The requester, if any, is
// told the outcome.
func (s *Service) Restore(ctx context.Context, w *world.World, id string, requester *host.Player) error {
	b, err := s.Find(ctx, w, id)
	if err != nil {
		return err
	}

	err = s.Profile(w).RestoreBackup(ctx, b, requester)
	if requester != nil {
		msg := fmt.Sprintf("Restoration successful, the world is back at %s.", b.CreatedAt.Format(TimeFormat))
		if err != nil {
			msg = fmt.Sprintf("Restoration of %s failed.", w.Name())
		}
		s.manager.Scheduler().Post(func() { requester.Notify(msg) })
	}
	return err
}

// Delete removes the backup of w with id.
func (s *Service) Delete(ctx context.Context, w *world.World, id string) error {
	b, err := s.Find(ctx, w, id)
	if err != nil {
		return err
	}
	return s.Profile(w).DeleteBackup(ctx, b)
}

// Destroy deletes every backup of w and forgets its profile. A profile
// that is still in use by another caller stays cached until it expires.
func (s *Service) Destroy(ctx context.Context, w *world.World) error {
	if err := s.Profile(w).Destroy(ctx); err != nil {
		return err
	}
	if p, ok := s.profiles.Peek(w.ID); ok && !p.Busy() {
		s.profiles.Invalidate(w.ID)
	}
	return nil
}
