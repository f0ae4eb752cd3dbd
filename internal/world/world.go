// Package world manages the lifecycle of registered worlds: loading them
// on demand, unloading them after inactivity, and moving players into
// them safely.
//
// Loader, Unloader, Teleporter and Evictor operate on the scheduler's
// main context. Callers on other goroutines must hand work over with
// scheduler.Call or scheduler.Post.
package world

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

var (
	ErrNotFound        = errors.New("world not found")
	ErrExists          = errors.New("world already exists")
	ErrInvalidName     = errors.New("invalid world name")
	ErrLoaded          = errors.New("world is loaded")
	ErrLoadCancelled   = errors.New("world load cancelled")
	ErrUnloadCancelled = errors.New("world unload cancelled")
	ErrSpawnWorld      = errors.New("world is the spawn world")
	ErrRestoring       = errors.New("world is being restored")
)

// Data is the persisted metadata of a world.
type Data struct {
	Type        types.WorldType `json:"type"`
	Template    string          `json:"template,omitempty"`
	Creator     string          `json:"creator,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	CustomSpawn *types.Location `json:"customSpawn,omitempty"`

	LastLoaded   time.Time `json:"lastLoaded,omitempty"`
	LastUnloaded time.Time `json:"lastUnloaded,omitempty"`
	// TimeSinceBackup is the number of seconds accumulated by the backup
	// sweep since the last automatic backup.
	TimeSinceBackup int64 `json:"timeSinceBackup"`
}

// World is the in-memory handle of one registered world.
type World struct {
	ID uuid.UUID

	mu        sync.RWMutex
	name      string
	data      Data
	loaded    bool
	restoring bool
	unload    *scheduler.Task
}

// Name returns the current world name, which is also its directory name.
func (w *World) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Type returns the world type.
func (w *World) Type() types.WorldType {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.data.Type
}

// Data returns a copy of the world metadata.
func (w *World) Data() Data {
	w.mu.RLock()
	defer w.mu.RUnlock()
	d := w.data
	if d.CustomSpawn != nil {
		spawn := *d.CustomSpawn
		d.CustomSpawn = &spawn
	}
	return d
}

// Loaded reports whether the world is resident.
func (w *World) Loaded() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.loaded
}

func (w *World) setLoaded(loaded bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.loaded = loaded
}

// Restoring reports whether a backup is being restored into the world.
func (w *World) Restoring() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.restoring
}

// BeginRestore marks the world as being restored. Until EndRestore is
// called, loading, teleporting into, renaming and deleting the world
// fail with ErrRestoring.
func (w *World) BeginRestore() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.restoring {
		return ErrRestoring
	}
	w.restoring = true
	return nil
}

// EndRestore clears the restore mark. It is safe to call more than once.
func (w *World) EndRestore() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.restoring = false
}

// UnloadPending reports whether an idle-unload timer is outstanding.
func (w *World) UnloadPending() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.unload != nil && !w.unload.Cancelled()
}

// swapUnloadTask installs t as the pending unload timer and returns the
// previous one.
func (w *World) swapUnloadTask(t *scheduler.Task) *scheduler.Task {
	w.mu.Lock()
	defer w.mu.Unlock()
	prev := w.unload
	w.unload = t
	return prev
}

// Info is a JSON-friendly snapshot of a world.
type Info struct {
	ID            uuid.UUID `json:"id"`
	Name          string    `json:"name"`
	Loaded        bool      `json:"loaded"`
	UnloadPending bool      `json:"unloadPending"`
	Restoring     bool      `json:"restoring"`
	Data          Data      `json:"data"`
}

// Info returns a snapshot of the world.
func (w *World) Info() Info {
	return Info{
		ID:            w.ID,
		Name:          w.Name(),
		Loaded:        w.Loaded(),
		UnloadPending: w.UnloadPending(),
		Restoring:     w.Restoring(),
		Data:          w.Data(),
	}
}
