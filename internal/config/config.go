package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/worldkeeper/worldkeeper/pkg/types"
)

// DefaultDataVersion is the level format written by this build.
const DefaultDataVersion = 3953

// Default returns the built-in configuration.
func Default() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Port:        8080,
			Hostname:    "127.0.0.1",
			DataVersion: DefaultDataVersion,
		},
		Unload: types.UnloadConfig{
			Enabled:         true,
			TimeUntilUnload: "01:00:00",
			Blacklist:       []string{"world", "world_nether", "world_the_end"},
		},
		Backup: types.BackupConfig{
			MaxBackupsPerWorld: 5,
			Storage:            "local",
			AutoBackup: types.AutoBackupConfig{
				Enabled:          true,
				Interval:         900,
				OnlyActiveWorlds: true,
			},
		},
		Defaults: types.WorldDefaults{
			Difficulty: types.DifficultyPeaceful,
			GameRules: map[string]string{
				"doDaylightCycle": "false",
				"doWeatherCycle":  "false",
				"doMobSpawning":   "false",
			},
		},
		Log: types.LogConfig{
			Level: "INFO",
		},
		Importer: types.ImporterConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config ($XDG_CONFIG_HOME/worldkeeper/config.yml)
// 3. Directory config (<dir>/config.yml)
// 4. Directory JSONC config (<dir>/worldkeeper.jsonc)
// 5. WORLDKEEPER_CONFIG file (YAML or JSONC by extension)
// 6. .env file in the directory and WORLDKEEPER_* environment variables
//
// Missing files are skipped; malformed ones are reported.
func Load(directory string) (*types.Config, error) {
	config := Default()

	sources := []string{filepath.Join(GetPaths().Config, "config.yml")}
	if directory != "" {
		sources = append(sources,
			filepath.Join(directory, "config.yml"),
			filepath.Join(directory, "worldkeeper.jsonc"),
		)
	}
	if path := os.Getenv("WORLDKEEPER_CONFIG"); path != "" {
		sources = append(sources, path)
	}

	loaded := make(map[string]bool)
	for _, path := range sources {
		absPath, err := filepath.Abs(path)
		if err != nil || loaded[absPath] {
			continue
		}
		if err := loadConfigFile(path, config); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		loaded[absPath] = true
	}

	if directory != "" {
		// Existing environment variables win over the .env file.
		_ = godotenv.Load(filepath.Join(directory, ".env"))
	}
	applyEnvOverrides(config)

	if _, err := UnloadGrace(config.Unload); err != nil {
		return nil, err
	}
	if config.Backup.MaxBackupsPerWorld < 1 {
		return nil, fmt.Errorf("backup.maxBackupsPerWorld must be at least 1, got %d", config.Backup.MaxBackupsPerWorld)
	}

	return config, nil
}

// loadConfigFile decodes a single file on top of config. Fields absent
// from the file keep their current values.
func loadConfigFile(path string, config *types.Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = interpolate(jsonc.ToJSON(data))
		return json.Unmarshal(data, config)
	default:
		return yaml.Unmarshal(data, config)
	}
}

var envPattern = regexp.MustCompile(`\{env:([^}]+)\}`)

// interpolate processes {env:VAR} placeholders.
func interpolate(data []byte) []byte {
	return envPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envPattern.FindSubmatch(match)[1]
		return []byte(os.Getenv(string(varName)))
	})
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	if v := os.Getenv("WORLDKEEPER_WORLD_CONTAINER"); v != "" {
		config.WorldContainer = v
	}
	if v := os.Getenv("WORLDKEEPER_BACKUP_DIR"); v != "" {
		config.BackupDir = v
	}
	if v := os.Getenv("WORLDKEEPER_LOG_LEVEL"); v != "" {
		config.Log.Level = v
	}
	if v := os.Getenv("WORLDKEEPER_LOG_FILE"); v != "" {
		config.Log.File = v
	}
	if v, err := strconv.Atoi(os.Getenv("WORLDKEEPER_PORT")); err == nil {
		config.Server.Port = v
	}
	if v, err := strconv.ParseBool(os.Getenv("WORLDKEEPER_UNLOAD_ENABLED")); err == nil {
		config.Unload.Enabled = v
	}
	if v := os.Getenv("WORLDKEEPER_UNLOAD_TIME"); v != "" {
		config.Unload.TimeUntilUnload = v
	}
	if v, err := strconv.ParseBool(os.Getenv("WORLDKEEPER_AUTO_BACKUP_ENABLED")); err == nil {
		config.Backup.AutoBackup.Enabled = v
	}
	if v, err := strconv.Atoi(os.Getenv("WORLDKEEPER_AUTO_BACKUP_INTERVAL")); err == nil {
		config.Backup.AutoBackup.Interval = v
	}
	if v, err := strconv.Atoi(os.Getenv("WORLDKEEPER_MAX_BACKUPS")); err == nil {
		config.Backup.MaxBackupsPerWorld = v
	}
}

// UnloadGrace parses the configured idle grace period.
func UnloadGrace(cfg types.UnloadConfig) (time.Duration, error) {
	d, err := ParseClock(cfg.TimeUntilUnload)
	if err != nil {
		return 0, fmt.Errorf("unload.timeUntilUnload: %w", err)
	}
	return d, nil
}

// ParseClock parses an HH:MM:SS duration.
func ParseClock(s string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("expected HH:MM:SS, got %q", s)
	}
	var total time.Duration
	units := []time.Duration{time.Hour, time.Minute, time.Second}
	for i, part := range parts {
		n, err := strconv.Atoi(part)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("expected HH:MM:SS, got %q", s)
		}
		total += time.Duration(n) * units[i]
	}
	return total, nil
}

// Save writes the configuration as YAML.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}
