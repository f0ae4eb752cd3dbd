package backup

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/afero"

	"github.com/worldkeeper/worldkeeper/internal/archive"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

const archiveExt = ".zip"

// Storage keeps archived snapshots of world directories.
type Storage interface {
	// List returns the backups of a world, oldest first.
	List(ctx context.Context, worldID uuid.UUID) ([]types.Backup, error)
	// Store archives dir as a new backup of the world.
	Store(ctx context.Context, worldID uuid.UUID, dir string) (types.Backup, error)
	// Download makes the archive of b available on the local filesystem.
	// The returned release function discards the local copy.
	Download(ctx context.Context, b types.Backup) (path string, release func(), err error)
	// Delete removes b.
	Delete(ctx context.Context, b types.Backup) error
}

// LocalStorage keeps backups as zip archives on a local filesystem, one
// directory per world: <dir>/<worldID>/<ulid>.zip.
type LocalStorage struct {
	fs  afero.Fs
	dir string
	now func() time.Time

	mu      sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// LocalOption configures a LocalStorage.
type LocalOption func(*LocalStorage)

// WithClock replaces time.Now for backup timestamps.
func WithClock(now func() time.Time) LocalOption {
	return func(s *LocalStorage) { s.now = now }
}

// NewLocalStorage creates a storage rooted at dir.
func NewLocalStorage(fs afero.Fs, dir string, opts ...LocalOption) *LocalStorage {
	s := &LocalStorage{
		fs:      fs,
		dir:     dir,
		now:     time.Now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the storage root.
func (s *LocalStorage) Dir() string { return s.dir }

func (s *LocalStorage) worldDir(worldID uuid.UUID) string {
	return filepath.Join(s.dir, worldID.String())
}

func (s *LocalStorage) newID() ulid.ULID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(s.now()), s.entropy)
}

// List implements Storage.
func (s *LocalStorage) List(ctx context.Context, worldID uuid.UUID) ([]types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	dir := s.worldDir(worldID)
	infos, err := afero.ReadDir(s.fs, dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	var backups []types.Backup
	for _, info := range infos {
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, archiveExt) {
			continue
		}
		id, err := ulid.ParseStrict(strings.TrimSuffix(name, archiveExt))
		if err != nil {
			continue
		}
		backups = append(backups, types.Backup{
			ID:        id.String(),
			WorldID:   worldID,
			CreatedAt: ulid.Time(id.Time()),
			Key:       filepath.Join(dir, name),
			Size:      info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool { return backups[i].ID < backups[j].ID })
	return backups, nil
}

// Store implements Storage.
func (s *LocalStorage) Store(ctx context.Context, worldID uuid.UUID, dir string) (types.Backup, error) {
	if err := ctx.Err(); err != nil {
		return types.Backup{}, err
	}

	if ok, _ := afero.DirExists(s.fs, dir); !ok {
		return types.Backup{}, fmt.Errorf("world directory %s does not exist", dir)
	}
	if err := s.fs.MkdirAll(s.worldDir(worldID), 0755); err != nil {
		return types.Backup{}, fmt.Errorf("create backup dir: %w", err)
	}

	id := s.newID()
	path := filepath.Join(s.worldDir(worldID), id.String()+archiveExt)
	if err := archive.CreateFile(s.fs, dir, path); err != nil {
		return types.Backup{}, fmt.Errorf("archive %s: %w", dir, err)
	}

	info, err := s.fs.Stat(path)
	if err != nil {
		return types.Backup{}, err
	}
	return types.Backup{
		ID:        id.String(),
		WorldID:   worldID,
		CreatedAt: ulid.Time(id.Time()),
		Key:       path,
		Size:      info.Size(),
	}, nil
}

// Download implements Storage. Local archives are used in place.
func (s *LocalStorage) Download(ctx context.Context, b types.Backup) (string, func(), error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	if ok, _ := afero.Exists(s.fs, b.Key); !ok {
		return "", nil, fmt.Errorf("%w: %s", ErrNotFound, b.ID)
	}
	return b.Key, func() {}, nil
}

// Delete implements Storage.
func (s *LocalStorage) Delete(ctx context.Context, b types.Backup) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.fs.Remove(b.Key); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: %s", ErrNotFound, b.ID)
		}
		return fmt.Errorf("delete backup %s: %w", b.ID, err)
	}
	return nil
}
