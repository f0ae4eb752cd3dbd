// Package config provides configuration loading and path management.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// Paths contains the standard paths for worldkeeper data.
type Paths struct {
	Data   string // ~/.local/share/worldkeeper
	Config string // ~/.config/worldkeeper
	Cache  string // ~/.cache/worldkeeper
	State  string // ~/.local/state/worldkeeper
}

// GetPaths returns the standard paths for worldkeeper data.
func GetPaths() *Paths {
	return &Paths{
		Data:   filepath.Join(getEnvOrDefault("XDG_DATA_HOME", defaultDataHome()), "worldkeeper"),
		Config: filepath.Join(getEnvOrDefault("XDG_CONFIG_HOME", defaultConfigHome()), "worldkeeper"),
		Cache:  filepath.Join(getEnvOrDefault("XDG_CACHE_HOME", defaultCacheHome()), "worldkeeper"),
		State:  filepath.Join(getEnvOrDefault("XDG_STATE_HOME", defaultStateHome()), "worldkeeper"),
	}
}

// EnsurePaths creates all required directories.
func (p *Paths) EnsurePaths() error {
	for _, dir := range []string{p.Data, p.Config, p.Cache, p.State, p.WorldsDir(), p.BackupsDir(), p.TemplatesDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}

// StoragePath returns the path to the metadata storage directory.
func (p *Paths) StoragePath() string {
	return filepath.Join(p.Data, "storage")
}

// WorldsDir returns the default world container.
func (p *Paths) WorldsDir() string {
	return filepath.Join(p.Data, "worlds")
}

// BackupsDir returns the default local backup directory.
func (p *Paths) BackupsDir() string {
	return filepath.Join(p.Data, "backups")
}

// TemplatesDir returns the directory holding world templates.
func (p *Paths) TemplatesDir() string {
	return filepath.Join(p.Data, "templates")
}

// Resolve applies directory overrides from cfg.
func (p *Paths) Resolve(cfg *types.Config) (worlds, backups string) {
	worlds, backups = p.WorldsDir(), p.BackupsDir()
	if cfg.WorldContainer != "" {
		worlds = cfg.WorldContainer
	}
	if cfg.BackupDir != "" {
		backups = cfg.BackupDir
	}
	return worlds, backups
}

// getEnvOrDefault returns the environment variable value or a default.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func defaultDataHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "share")
}

func defaultConfigHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".config")
}

func defaultCacheHome() string {
	if runtime.GOOS == "windows" {
		return filepath.Join(os.Getenv("APPDATA"), "cache")
	}
	return filepath.Join(os.Getenv("HOME"), ".cache")
}

func defaultStateHome() string {
	if runtime.GOOS == "windows" {
		return os.Getenv("APPDATA")
	}
	return filepath.Join(os.Getenv("HOME"), ".local", "state")
}
