package world

import (
	"context"
	"errors"
	"sync"

	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/internal/storage"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

var spawnKey = []string{"spawn"}

type spawnRecord struct {
	Location *types.Location `json:"location"`
}

// Spawn manages the fallback/spawn location players are sent to when no
// other destination applies.
type Spawn struct {
	store  *storage.Storage
	server *host.Server

	mu  sync.RWMutex
	loc *types.Location
}

// NewSpawn creates a spawn manager. fallback is used until a spawn has
// been persisted.
func NewSpawn(store *storage.Storage, server *host.Server, fallback *types.SpawnConfig) *Spawn {
	s := &Spawn{store: store, server: server}
	if fallback != nil && fallback.World != "" {
		loc := fallback.Location()
		s.loc = &loc
	}
	return s
}

// Load reads the persisted spawn, keeping the fallback when none exists.
func (s *Spawn) Load(ctx context.Context) error {
	var rec spawnRecord
	err := s.store.Get(ctx, spawnKey, &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.loc = rec.Location
	s.mu.Unlock()
	return nil
}

// Exists reports whether a spawn is set.
func (s *Spawn) Exists() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loc != nil
}

// Location returns the spawn location.
func (s *Spawn) Location() (types.Location, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loc == nil {
		return types.Location{}, false
	}
	return *s.loc, true
}

// WorldName returns the name of the spawn world, or "".
func (s *Spawn) WorldName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.loc == nil {
		return ""
	}
	return s.loc.World
}

// Set moves the spawn to loc, which names its world.
func (s *Spawn) Set(ctx context.Context, loc types.Location) error {
	s.mu.Lock()
	s.loc = &loc
	s.mu.Unlock()
	return s.store.Put(ctx, spawnKey, spawnRecord{Location: &loc})
}

// Remove clears the spawn.
func (s *Spawn) Remove(ctx context.Context) error {
	s.mu.Lock()
	s.loc = nil
	s.mu.Unlock()
	return s.store.Put(ctx, spawnKey, spawnRecord{})
}

// Teleport sends p to the spawn. It reports false when no spawn is set
// or its world is not resident.
func (s *Spawn) Teleport(p *host.Player) bool {
	loc, ok := s.Location()
	if !ok || s.server.Level(loc.World) == nil {
		return false
	}
	s.server.Teleport(p, loc, nil)
	return true
}
