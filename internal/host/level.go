package host

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/spf13/afero"

	"github.com/worldkeeper/worldkeeper/pkg/types"
)

const (
	levelFile = "level.dat"
	regionDir = "region"
	pageExt   = ".page"
	pageShift = 4 // 16x16 columns per page
)

// levelData is the content of level.dat.
type levelData struct {
	DataVersion int               `cbor:"1,keyasint"`
	Generator   types.WorldType   `cbor:"2,keyasint"`
	Seed        int64             `cbor:"3,keyasint"`
	Spawn       types.BlockPos    `cbor:"4,keyasint"`
	SpawnYaw    float32           `cbor:"5,keyasint,omitempty"`
	Difficulty  types.Difficulty  `cbor:"6,keyasint"`
	Time        int64             `cbor:"7,keyasint"`
	BorderSize  float64           `cbor:"8,keyasint"`
	GameRules   map[string]string `cbor:"9,keyasint,omitempty"`
	MinHeight   int               `cbor:"10,keyasint"`
	MaxHeight   int               `cbor:"11,keyasint"`
}

type pageKey struct{ cx, cz int }

func (k pageKey) fileName() string {
	return fmt.Sprintf("%d.%d%s", k.cx, k.cz, pageExt)
}

// page holds the blocks of 16x16 columns that differ from the generated
// terrain, keyed by column index (lx<<4|lz) and then by height.
type page struct {
	Columns map[uint16]map[int]types.Material `cbor:"1,keyasint"`
	dirty   bool
}

func columnIndex(x, z int) uint16 {
	return uint16((x&15)<<4 | (z & 15))
}

// Level is a physical world resident in the process.
type Level struct {
	name string
	dir  string
	fs   afero.Fs

	mu      sync.Mutex
	meta    levelData
	terrain terrain
	pages   map[pageKey]*page

	pins atomic.Int32
}

func newLevel(fs afero.Fs, name, dir string, meta levelData) *Level {
	return &Level{
		name:    name,
		dir:     dir,
		fs:      fs,
		meta:    meta,
		terrain: generatorFor(meta.Generator).terrain,
		pages:   make(map[pageKey]*page),
	}
}

// openLevel reads level.dat from dir.
func openLevel(fs afero.Fs, name, dir string) (*Level, error) {
	data, err := afero.ReadFile(fs, filepath.Join(dir, levelFile))
	if err != nil {
		return nil, err
	}
	var meta levelData
	if err := unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("decode %s: %w", levelFile, err)
	}
	if meta.MaxHeight <= meta.MinHeight {
		g := generatorFor(meta.Generator)
		meta.MinHeight, meta.MaxHeight = g.minHeight, g.maxHeight
	}
	return newLevel(fs, name, dir, meta), nil
}

// Name returns the level name, which is also its directory name.
func (l *Level) Name() string { return l.name }

// Dir returns the level directory.
func (l *Level) Dir() string { return l.dir }

// DataVersion returns the format version recorded in level.dat.
func (l *Level) DataVersion() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.DataVersion
}

// Generator returns the world type the level was generated with.
func (l *Level) Generator() types.WorldType {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.Generator
}

// MinHeight returns the lowest buildable y.
func (l *Level) MinHeight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.MinHeight
}

// MaxHeight returns the exclusive upper y bound.
func (l *Level) MaxHeight() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.MaxHeight
}

// Pin marks the level as referenced elsewhere; a pinned level cannot be
// unloaded. The returned function releases the pin.
func (l *Level) Pin() func() {
	l.pins.Add(1)
	var once sync.Once
	return func() { once.Do(func() { l.pins.Add(-1) }) }
}

// Pinned reports whether the level is referenced elsewhere.
func (l *Level) Pinned() bool {
	return l.pins.Load() > 0
}

// page returns the page holding column (x, z), reading it from disk on
// first access. Caller holds l.mu.
func (l *Level) page(x, z int) (*page, error) {
	key := pageKey{x >> pageShift, z >> pageShift}
	if p, ok := l.pages[key]; ok {
		return p, nil
	}

	p := &page{Columns: make(map[uint16]map[int]types.Material)}
	data, err := afero.ReadFile(l.fs, filepath.Join(l.dir, regionDir, key.fileName()))
	switch {
	case err == nil:
		if err := unmarshalPage(data, p); err != nil {
			return nil, fmt.Errorf("decode page %s: %w", key.fileName(), err)
		}
		if p.Columns == nil {
			p.Columns = make(map[uint16]map[int]types.Material)
		}
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, err
	}

	l.pages[key] = p
	return p, nil
}

// BlockAt returns the material at pos. Positions outside the height
// bounds are air.
func (l *Level) BlockAt(pos types.BlockPos) types.Material {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.blockAt(pos)
}

func (l *Level) blockAt(pos types.BlockPos) types.Material {
	if pos.Y < l.meta.MinHeight || pos.Y >= l.meta.MaxHeight {
		return types.Air
	}
	p, err := l.page(pos.X, pos.Z)
	if err != nil {
		return types.Air
	}
	if column, ok := p.Columns[columnIndex(pos.X, pos.Z)]; ok {
		if m, ok := column[pos.Y]; ok {
			return m
		}
	}
	return l.terrain(pos.X, pos.Y, pos.Z)
}

// SetBlock changes the material at pos.
func (l *Level) SetBlock(pos types.BlockPos, m types.Material) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if pos.Y < l.meta.MinHeight || pos.Y >= l.meta.MaxHeight {
		return fmt.Errorf("y=%d outside level bounds [%d, %d)", pos.Y, l.meta.MinHeight, l.meta.MaxHeight)
	}
	p, err := l.page(pos.X, pos.Z)
	if err != nil {
		return err
	}

	idx := columnIndex(pos.X, pos.Z)
	column := p.Columns[idx]
	if l.terrain(pos.X, pos.Y, pos.Z) == m {
		if column == nil {
			return nil
		}
		delete(column, pos.Y)
		if len(column) == 0 {
			delete(p.Columns, idx)
		}
	} else {
		if column == nil {
			column = make(map[int]types.Material)
			p.Columns[idx] = column
		}
		column[pos.Y] = m
	}
	p.dirty = true
	return nil
}

// HighestBlockY returns the y of the highest non-passable block in
// column (x, z), or MinHeight-1 when the column is empty.
func (l *Level) HighestBlockY(x, z int) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for y := l.meta.MaxHeight - 1; y >= l.meta.MinHeight; y-- {
		if !l.blockAt(types.BlockPos{X: x, Y: y, Z: z}).Passable() {
			return y
		}
	}
	return l.meta.MinHeight - 1
}

// Spawn returns the default entry point at the block corner.
func (l *Level) Spawn() types.Location {
	l.mu.Lock()
	defer l.mu.Unlock()
	loc := types.Location{
		World: l.name,
		X:     float64(l.meta.Spawn.X),
		Y:     float64(l.meta.Spawn.Y),
		Z:     float64(l.meta.Spawn.Z),
		Yaw:   l.meta.SpawnYaw,
	}
	return loc
}

// SetSpawn changes the default entry point.
func (l *Level) SetSpawn(pos types.BlockPos) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meta.Spawn = pos
}

// Difficulty returns the level difficulty.
func (l *Level) Difficulty() types.Difficulty {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.Difficulty
}

func (l *Level) SetDifficulty(d types.Difficulty) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meta.Difficulty = d
}

// Time returns the time of day in ticks.
func (l *Level) Time() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.Time
}

func (l *Level) SetTime(t int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meta.Time = t
}

// BorderSize returns the world border diameter.
func (l *Level) BorderSize() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.meta.BorderSize
}

func (l *Level) SetBorderSize(size float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.meta.BorderSize = size
}

// GameRule returns the value of a game rule and whether it is set.
func (l *Level) GameRule(name string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.meta.GameRules[name]
	return v, ok
}

func (l *Level) SetGameRule(name, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.meta.GameRules == nil {
		l.meta.GameRules = make(map[string]string)
	}
	l.meta.GameRules[name] = value
}

// LoadedPages returns the number of pages resident in memory.
func (l *Level) LoadedPages() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pages)
}

// Save flushes dirty pages and level.dat to disk.
func (l *Level) Save() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.fs.MkdirAll(filepath.Join(l.dir, regionDir), 0755); err != nil {
		return fmt.Errorf("create region dir: %w", err)
	}

	keys := make([]pageKey, 0, len(l.pages))
	for key, p := range l.pages {
		if p.dirty {
			keys = append(keys, key)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].cx != keys[j].cx {
			return keys[i].cx < keys[j].cx
		}
		return keys[i].cz < keys[j].cz
	})

	for _, key := range keys {
		p := l.pages[key]
		path := filepath.Join(l.dir, regionDir, key.fileName())
		if len(p.Columns) == 0 {
			if err := l.fs.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
				return fmt.Errorf("remove page %s: %w", key.fileName(), err)
			}
			p.dirty = false
			continue
		}
		data, err := marshalPage(p)
		if err != nil {
			return fmt.Errorf("encode page %s: %w", key.fileName(), err)
		}
		if err := writeFileAtomic(l.fs, path, data); err != nil {
			return err
		}
		p.dirty = false
	}

	return l.writeMeta()
}

// writeMeta writes level.dat. Caller holds l.mu.
func (l *Level) writeMeta() error {
	data, err := marshal(l.meta)
	if err != nil {
		return fmt.Errorf("encode %s: %w", levelFile, err)
	}
	if err := writeFileAtomic(l.fs, filepath.Join(l.dir, levelFile), data); err != nil {
		return err
	}
	return nil
}

// unloadPages drops all pages from memory. Unsaved changes are lost.
func (l *Level) unloadPages() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = make(map[pageKey]*page)
}

func writeFileAtomic(fs afero.Fs, path string, data []byte) error {
	tmp := path + ".tmp"
	if err := afero.WriteFile(fs, tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := fs.Rename(tmp, path); err != nil {
		fs.Remove(tmp)
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}

// parsePageName is the inverse of pageKey.fileName.
func parsePageName(name string) (pageKey, bool) {
	base, ok := strings.CutSuffix(name, pageExt)
	if !ok {
		return pageKey{}, false
	}
	x, z, ok := strings.Cut(base, ".")
	if !ok {
		return pageKey{}, false
	}
	cx, err1 := strconv.Atoi(x)
	cz, err2 := strconv.Atoi(z)
	if err1 != nil || err2 != nil {
		return pageKey{}, false
	}
	return pageKey{cx, cz}, true
}

// StoredPages returns the number of page files on disk.
func (l *Level) StoredPages() (int, error) {
	entries, err := afero.ReadDir(l.fs, filepath.Join(l.dir, regionDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	n := 0
	for _, e := range entries {
		if _, ok := parsePageName(e.Name()); ok {
			n++
		}
	}
	return n, nil
}
