// Package host provides the physical runtime worlds live in: levels
// resident in memory, the players occupying them, and asynchronous
// player movement.
//
// Every method that mutates a level or a player's location is meant to
// be called on the scheduler's main context.
package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/worldkeeper/worldkeeper/internal/archive"
	"github.com/worldkeeper/worldkeeper/internal/logging"
	"github.com/worldkeeper/worldkeeper/internal/scheduler"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

var (
	// ErrDataVersion is returned when a level was written by a newer
	// format than this process understands.
	ErrDataVersion = errors.New("unsupported data version")

	// ErrLevelInUse is returned when unloading a level that is still
	// referenced elsewhere.
	ErrLevelInUse = errors.New("level is still in use")

	// ErrNoLevelData is returned when an imported level has no level.dat.
	ErrNoLevelData = errors.New("level.dat not found")
)

// Config configures a Server.
type Config struct {
	// Container is the directory holding one subdirectory per level.
	Container string
	// Templates holds template levels copied by TEMPLATE worlds.
	Templates string
	// DataVersion is the newest level format this server can read.
	DataVersion int
	// Fs is the filesystem levels live on. Defaults to the OS filesystem.
	Fs afero.Fs
}

// LevelSpec describes the level to create or open.
type LevelSpec struct {
	Name     string
	Type     types.WorldType
	Seed     int64
	Template string
}

// Server is the live level and player registry.
type Server struct {
	config Config
	fs     afero.Fs
	sched  *scheduler.Scheduler

	mu      sync.RWMutex
	levels  map[string]*Level
	order   []string
	players map[uuid.UUID]*Player

	creations atomic.Int64
}

// NewServer creates a server. Movement completions are delivered on
// sched.
func NewServer(cfg Config, sched *scheduler.Scheduler) *Server {
	if cfg.Fs == nil {
		cfg.Fs = afero.NewOsFs()
	}
	return &Server{
		config:  cfg,
		fs:      cfg.Fs,
		sched:   sched,
		levels:  make(map[string]*Level),
		players: make(map[uuid.UUID]*Player),
	}
}

// Fs returns the filesystem levels live on.
func (s *Server) Fs() afero.Fs { return s.fs }

// Container returns the directory holding all levels.
func (s *Server) Container() string { return s.config.Container }

// LevelDir returns the directory of the level called name.
func (s *Server) LevelDir(name string) string {
	return filepath.Join(s.config.Container, name)
}

// Creations returns how many levels have been physically created or
// opened since start.
func (s *Server) Creations() int64 {
	return s.creations.Load()
}

// CreateLevel opens the level described by spec, generating it when its
// directory holds no level.dat. An already resident level is returned
// as is.
func (s *Server) CreateLevel(spec LevelSpec) (*Level, error) {
	if l := s.Level(spec.Name); l != nil {
		return l, nil
	}

	dir := s.LevelDir(spec.Name)
	if spec.Type == types.WorldTemplate && spec.Template != "" {
		if err := s.copyTemplate(spec.Template, dir); err != nil {
			return nil, err
		}
	}

	l, err := openLevel(s.fs, spec.Name, dir)
	switch {
	case err == nil:
		if v := l.DataVersion(); v > s.config.DataVersion {
			return nil, fmt.Errorf("%w: level %q has %d, server supports %d", ErrDataVersion, spec.Name, v, s.config.DataVersion)
		}
	case errors.Is(err, os.ErrNotExist):
		if spec.Type == types.WorldImported {
			return nil, fmt.Errorf("%w: %s", ErrNoLevelData, dir)
		}
		l, err = s.generate(spec, dir)
		if err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("open level %q: %w", spec.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.levels[spec.Name]; ok {
		return existing, nil
	}
	s.levels[spec.Name] = l
	s.order = append(s.order, spec.Name)
	s.creations.Add(1)

	logging.Debug().Str("level", spec.Name).Str("generator", string(l.Generator())).Msg("level created")
	return l, nil
}

func (s *Server) generate(spec LevelSpec, dir string) (*Level, error) {
	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create level dir: %w", err)
	}

	g := generatorFor(spec.Type)
	seed := spec.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	l := newLevel(s.fs, spec.Name, dir, levelData{
		DataVersion: s.config.DataVersion,
		Generator:   spec.Type,
		Seed:        seed,
		Spawn:       g.spawn,
		Difficulty:  types.DifficultyNormal,
		BorderSize:  6.0e7,
		MinHeight:   g.minHeight,
		MaxHeight:   g.maxHeight,
	})
	if err := l.Save(); err != nil {
		return nil, err
	}
	return l, nil
}

func (s *Server) copyTemplate(name, dir string) error {
	if exists, _ := afero.Exists(s.fs, filepath.Join(dir, levelFile)); exists {
		return nil
	}
	src := filepath.Join(s.config.Templates, name)
	if ok, _ := afero.DirExists(s.fs, src); !ok {
		return fmt.Errorf("template %q not found", name)
	}
	if err := archive.CopyTree(s.fs, src, dir); err != nil {
		return fmt.Errorf("copy template %q: %w", name, err)
	}
	return nil
}

// Level returns the resident level called name, or nil.
func (s *Server) Level(name string) *Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.levels[name]
}

// Levels returns all resident levels in load order.
func (s *Server) Levels() []*Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Level, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.levels[name])
	}
	return out
}

// DefaultLevel returns the first resident level, or nil.
func (s *Server) DefaultLevel() *Level {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.order) == 0 {
		return nil
	}
	return s.levels[s.order[0]]
}

// UnloadLevel removes a level from memory, saving it first if save is
// set. A pinned level is left resident and ErrLevelInUse is returned.
func (s *Server) UnloadLevel(l *Level, save bool) error {
	if l.Pinned() {
		return ErrLevelInUse
	}
	if save {
		if err := l.Save(); err != nil {
			return fmt.Errorf("save level %q: %w", l.Name(), err)
		}
	}
	l.unloadPages()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.levels[l.Name()] != l {
		return nil
	}
	delete(s.levels, l.Name())
	for i, name := range s.order {
		if name == l.Name() {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return nil
}

// SaveAll saves every resident level and returns the first error.
func (s *Server) SaveAll() error {
	var first error
	for _, l := range s.Levels() {
		if err := l.Save(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Join connects a new player. The player is placed at the default level's
// spawn when one is resident.
func (s *Server) Join(name string) *Player {
	p := &Player{ID: uuid.New(), Name: name, online: true}
	if l := s.DefaultLevel(); l != nil {
		p.location = l.Spawn().Add(0.5, 0, 0.5)
	}

	s.mu.Lock()
	s.players[p.ID] = p
	s.mu.Unlock()
	return p
}

// Quit disconnects a player.
func (s *Server) Quit(p *Player) {
	p.mu.Lock()
	p.online = false
	p.mu.Unlock()

	s.mu.Lock()
	delete(s.players, p.ID)
	s.mu.Unlock()
}

// Kick disconnects a player with a reason.
func (s *Server) Kick(p *Player, reason string) {
	p.Notify(reason)
	s.Quit(p)
}

// Player returns the connected player with id, or nil.
func (s *Server) Player(id uuid.UUID) *Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.players[id]
}

// PlayerByName returns the connected player called name
// (case-insensitive), or nil.
func (s *Server) PlayerByName(name string) *Player {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.players {
		if strings.EqualFold(p.Name, name) {
			return p
		}
	}
	return nil
}

// Players returns all connected players sorted by name.
func (s *Server) Players() []*Player {
	s.mu.RLock()
	out := make([]*Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, p)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PlayersIn returns the connected players inside the level called name.
func (s *Server) PlayersIn(name string) []*Player {
	var out []*Player
	for _, p := range s.Players() {
		if p.World() == name {
			out = append(out, p)
		}
	}
	return out
}

// Teleport moves p to loc on the next turn of the main context. done,
// if set, receives false when the player has gone offline or the target
// level is not resident.
func (s *Server) Teleport(p *Player, loc types.Location, done func(bool)) {
	if done == nil {
		done = func(bool) {}
	}
	if !s.sched.Post(func() {
		if !p.Online() || s.Level(loc.World) == nil {
			done(false)
			return
		}
		p.setLocation(loc)
		done(true)
	}) {
		done(false)
	}
}
