package world

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"

	"github.com/worldkeeper/worldkeeper/internal/event"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

const levelDataFile = "level.dat"

// Importer watches the world container for level directories that are
// not registered worlds and reports them as discovered. Directory reads
// go through the registry's filesystem; change notifications need the
// directories to exist on disk.
type Importer struct {
	watcher   *fsnotify.Watcher
	fs        afero.Fs
	container string
	registry  *Registry
	bus       *event.Bus
	now       func() time.Time

	mu         sync.Mutex
	discovered map[string]string
	started    bool
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// NewImporter creates an importer watching the registry's container,
// creating the directory if needed.
func NewImporter(registry *Registry, bus *event.Bus) (*Importer, error) {
	container := registry.Container()
	if err := registry.fs.MkdirAll(container, 0755); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(container); err != nil {
		w.Close()
		return nil, err
	}

	return &Importer{
		watcher:    w,
		fs:         registry.fs,
		container:  container,
		registry:   registry,
		bus:        bus,
		now:        time.Now,
		discovered: make(map[string]string),
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}, nil
}

// Start scans the container once and then watches it for changes.
func (i *Importer) Start() {
	i.mu.Lock()
	if i.started {
		i.mu.Unlock()
		return
	}
	i.started = true
	i.mu.Unlock()

	i.Scan()
	go i.run()
}

func (i *Importer) run() {
	defer close(i.doneCh)

	for {
		select {
		case <-i.stopCh:
			return
		case ev, ok := <-i.watcher.Events:
			if !ok {
				return
			}
			i.handle(ev)
		case err, ok := <-i.watcher.Errors:
			if !ok {
				return
			}
			logging.Error().Err(err).Msg("world importer watch error")
		}
	}
}

func (i *Importer) handle(ev fsnotify.Event) {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
		if ev.Op&fsnotify.Remove != 0 {
			i.forget(filepath.Base(ev.Name))
		}
		return
	}

	// New directories directly below the container are watched too so
	// that a level.dat written into them is noticed.
	if filepath.Dir(ev.Name) == i.container {
		if isDir, _ := afero.IsDir(i.fs, ev.Name); isDir {
			if err := i.watcher.Add(ev.Name); err != nil {
				logging.Debug().Err(err).Str("path", ev.Name).Msg("failed to watch world directory")
			}
			i.check(ev.Name)
		}
		return
	}

	if filepath.Base(ev.Name) == levelDataFile {
		i.check(filepath.Dir(ev.Name))
	}
}

// Scan reports every unregistered level directory currently in the
// container and returns their names.
func (i *Importer) Scan() []string {
	entries, err := afero.ReadDir(i.fs, i.container)
	if err != nil {
		logging.Warn().Err(err).Str("dir", i.container).Msg("failed to scan world container")
		return nil
	}
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(i.container, e.Name())
		if err := i.watcher.Add(dir); err != nil {
			logging.Debug().Err(err).Str("path", dir).Msg("failed to watch world directory")
		}
		i.check(dir)
	}
	return i.Discovered()
}

// check records dir as discovered when it holds a level that is not a
// registered world.
func (i *Importer) check(dir string) {
	name := filepath.Base(dir)
	if ok, _ := afero.Exists(i.fs, filepath.Join(dir, levelDataFile)); !ok {
		return
	}
	if _, err := i.registry.Get(name); err == nil {
		return
	}

	i.mu.Lock()
	_, known := i.discovered[name]
	i.discovered[name] = dir
	i.mu.Unlock()
	if known {
		return
	}

	logging.Info().Str("world", name).Str("path", dir).Msg("discovered unregistered world")
	i.bus.Publish(event.Event{
		Type: event.WorldDiscovered,
		Data: event.WorldDiscoveredData{Name: name, Path: dir},
	})
}

func (i *Importer) forget(name string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.discovered, name)
}

// Discovered returns the names of unregistered worlds found so far.
func (i *Importer) Discovered() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	names := make([]string, 0, len(i.discovered))
	for name := range i.discovered {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Import registers the level directory called name as a world of type t.
// An empty type registers it as IMPORTED.
func (i *Importer) Import(ctx context.Context, name string, t types.WorldType) (*World, error) {
	dir := filepath.Join(i.container, name)
	if _, err := i.fs.Stat(filepath.Join(dir, levelDataFile)); err != nil {
		return nil, fmt.Errorf("%s has no %s: %w", dir, levelDataFile, err)
	}
	if t == "" {
		t = types.WorldImported
	}

	w, err := i.registry.Add(ctx, name, Data{Type: t, CreatedAt: i.now()})
	if err != nil {
		return nil, err
	}
	i.forget(name)
	logging.Info().Str("world", name).Str("id", w.ID.String()).Str("type", string(t)).Msg("imported world")
	return w, nil
}

// Stop stops watching.
func (i *Importer) Stop() error {
	i.mu.Lock()
	started := i.started
	i.mu.Unlock()

	select {
	case <-i.stopCh:
	default:
		close(i.stopCh)
	}

	if started {
		<-i.doneCh
	}
	return i.watcher.Close()
}
