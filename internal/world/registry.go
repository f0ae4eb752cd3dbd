package world

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/agnivade/levenshtein"
	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/storage"
)

// maxSuggestionDistance bounds how different a suggested name may be.
const maxSuggestionDistance = 3

// record is the persisted form of a world.
type record struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Data Data      `json:"data"`
}

// NotFoundError reports an unknown world name with an optional
// suggestion. It matches ErrNotFound with errors.Is.
type NotFoundError struct {
	Name       string
	Suggestion string
}

func (e *NotFoundError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("world %q not found (did you mean %q?)", e.Name, e.Suggestion)
	}
	return fmt.Sprintf("world %q not found", e.Name)
}

func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}

// Registry owns every registered world. Worlds are persisted under the
// storage key ["world", <id>].
type Registry struct {
	store     *storage.Storage
	fs        afero.Fs
	container string

	mu     sync.RWMutex
	worlds map[uuid.UUID]*World
}

// NewRegistry creates an empty registry. container is the directory
// holding one subdirectory per world.
func NewRegistry(store *storage.Storage, fs afero.Fs, container string) *Registry {
	return &Registry{
		store:     store,
		fs:        fs,
		container: container,
		worlds:    make(map[uuid.UUID]*World),
	}
}

// Load reads every persisted world. Unreadable records are skipped.
func (r *Registry) Load(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.store.Scan(ctx, []string{"world"}, func(key string, data json.RawMessage) error {
		var rec record
		if err := json.Unmarshal(data, &rec); err != nil {
			logging.Warn().Err(err).Str("key", key).Msg("skipping unreadable world record")
			return nil
		}
		r.worlds[rec.ID] = &World{ID: rec.ID, name: rec.Name, data: rec.Data}
		return nil
	})
}

// Dir returns the on-disk directory of w.
func (r *Registry) Dir(w *World) string {
	return filepath.Join(r.container, w.Name())
}

// Container returns the directory holding all worlds.
func (r *Registry) Container() string {
	return r.container
}

func validName(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return !strings.ContainsAny(name, `/\:*?"<>|`)
}

// Add registers a new world.
func (r *Registry) Add(ctx context.Context, name string, data Data) (*World, error) {
	if !validName(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}

	r.mu.Lock()
	if r.lookup(name) != nil {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrExists, name)
	}
	w := &World{ID: uuid.New(), name: name, data: data}
	r.worlds[w.ID] = w
	r.mu.Unlock()

	if err := r.Save(ctx, w); err != nil {
		r.mu.Lock()
		delete(r.worlds, w.ID)
		r.mu.Unlock()
		return nil, err
	}
	return w, nil
}

// Remove unregisters w. Its directory is left alone.
func (r *Registry) Remove(ctx context.Context, w *World) error {
	r.mu.Lock()
	delete(r.worlds, w.ID)
	r.mu.Unlock()

	return r.store.Delete(ctx, []string{"world", w.ID.String()})
}

// lookup finds a world by name, ignoring case. Caller holds r.mu.
func (r *Registry) lookup(name string) *World {
	for _, w := range r.worlds {
		if strings.EqualFold(w.Name(), name) {
			return w
		}
	}
	return nil
}

// Get returns the world called name. Unknown names yield a
// *NotFoundError carrying the closest registered name.
func (r *Registry) Get(name string) (*World, error) {
	r.mu.RLock()
	w := r.lookup(name)
	r.mu.RUnlock()
	if w == nil {
		return nil, &NotFoundError{Name: name, Suggestion: r.Suggest(name)}
	}
	return w, nil
}

// ByID returns the world with id.
func (r *Registry) ByID(id uuid.UUID) (*World, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.worlds[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return w, nil
}

// All returns every registered world sorted by name.
func (r *Registry) All() []*World {
	r.mu.RLock()
	out := make([]*World, 0, len(r.worlds))
	for _, w := range r.worlds {
		out = append(out, w)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name()) < strings.ToLower(out[j].Name())
	})
	return out
}

// Suggest returns the registered name closest to name, or "" when none
// is close enough.
func (r *Registry) Suggest(name string) string {
	best, bestDist := "", maxSuggestionDistance+1
	for _, w := range r.All() {
		d := levenshtein.ComputeDistance(strings.ToLower(name), strings.ToLower(w.Name()))
		if d < bestDist {
			best, bestDist = w.Name(), d
		}
	}
	return best
}

// Rename changes the name of an unloaded world and moves its directory so
// that name and storage path stay in sync. It runs on the main context;
// the registry lock is held from the collision check until the new name
// is in place.
func (r *Registry) Rename(ctx context.Context, w *World, newName string) error {
	if !validName(newName) {
		return fmt.Errorf("%w: %q", ErrInvalidName, newName)
	}
	if w.Restoring() {
		return fmt.Errorf("%w: %q", ErrRestoring, w.Name())
	}
	if w.Loaded() {
		return ErrLoaded
	}

	r.mu.Lock()
	if other := r.lookup(newName); other != nil && other != w {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrExists, newName)
	}

	oldDir := r.Dir(w)
	newDir := filepath.Join(r.container, newName)
	if exists, _ := afero.DirExists(r.fs, oldDir); exists {
		if err := r.fs.Rename(oldDir, newDir); err != nil {
			r.mu.Unlock()
			return fmt.Errorf("rename world directory: %w", err)
		}
	}

	w.mu.Lock()
	oldName := w.name
	w.name = newName
	w.mu.Unlock()
	r.mu.Unlock()

	if err := r.Save(ctx, w); err != nil {
		return err
	}
	logging.Info().Str("id", w.ID.String()).Str("from", oldName).Str("to", newName).Msg("world renamed")
	return nil
}

// Update applies fn to the world's metadata and persists the result.
func (r *Registry) Update(ctx context.Context, w *World, fn func(*Data)) error {
	w.mu.Lock()
	fn(&w.data)
	w.mu.Unlock()
	return r.Save(ctx, w)
}

// Save persists w.
func (r *Registry) Save(ctx context.Context, w *World) error {
	w.mu.RLock()
	rec := record{ID: w.ID, Name: w.name, Data: w.data}
	w.mu.RUnlock()

	if err := r.store.Put(ctx, []string{"world", w.ID.String()}, rec); err != nil {
		return fmt.Errorf("save world %q: %w", rec.Name, err)
	}
	return nil
}
