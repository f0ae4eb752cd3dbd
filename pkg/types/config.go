package types

// Config represents the worldkeeper configuration.
// The same structure is read from config.yml and worldkeeper.jsonc.
type Config struct {
	// Directory layout; empty values fall back to the XDG paths.
	WorldContainer string `json:"worldContainer,omitempty" yaml:"worldContainer,omitempty"`
	BackupDir      string `json:"backupDir,omitempty" yaml:"backupDir,omitempty"`

	Server   ServerConfig   `json:"server" yaml:"server"`
	Unload   UnloadConfig   `json:"unload" yaml:"unload"`
	Backup   BackupConfig   `json:"backup" yaml:"backup"`
	Spawn    *SpawnConfig   `json:"spawn,omitempty" yaml:"spawn,omitempty"`
	Defaults WorldDefaults  `json:"defaults" yaml:"defaults"`
	Log      LogConfig      `json:"log" yaml:"log"`
	Importer ImporterConfig `json:"importer" yaml:"importer"`
}

// ServerConfig holds settings of the hosting runtime.
type ServerConfig struct {
	Port     int    `json:"port,omitempty" yaml:"port,omitempty"`
	Hostname string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	// DataVersion is the newest level format this process can read.
	DataVersion int `json:"dataVersion,omitempty" yaml:"dataVersion,omitempty"`
}

// UnloadConfig controls idle unloading.
type UnloadConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// TimeUntilUnload is the grace period in HH:MM:SS.
	TimeUntilUnload string `json:"timeUntilUnload" yaml:"timeUntilUnload"`
	// Blacklist holds world names or glob patterns that are never unloaded.
	Blacklist []string `json:"blacklist" yaml:"blacklist"`
}

// BackupConfig controls backup rotation and the automatic sweep.
type BackupConfig struct {
	MaxBackupsPerWorld int              `json:"maxBackupsPerWorld" yaml:"maxBackupsPerWorld"`
	Storage            string           `json:"storage" yaml:"storage"`
	AutoBackup         AutoBackupConfig `json:"autoBackup" yaml:"autoBackup"`
}

// AutoBackupConfig controls the periodic backup sweep.
type AutoBackupConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	// Interval is the number of seconds between backups of one world.
	Interval         int  `json:"interval" yaml:"interval"`
	OnlyActiveWorlds bool `json:"onlyActiveWorlds" yaml:"onlyActiveWorlds"`
}

// SpawnConfig designates the fallback/spawn world and the offset inside it.
type SpawnConfig struct {
	World string  `json:"world" yaml:"world"`
	X     float64 `json:"x" yaml:"x"`
	Y     float64 `json:"y" yaml:"y"`
	Z     float64 `json:"z" yaml:"z"`
	Yaw   float32 `json:"yaw,omitempty" yaml:"yaw,omitempty"`
	Pitch float32 `json:"pitch,omitempty" yaml:"pitch,omitempty"`
}

// Location converts the configured spawn into a Location.
func (s SpawnConfig) Location() Location {
	return Location{World: s.World, X: s.X, Y: s.Y, Z: s.Z, Yaw: s.Yaw, Pitch: s.Pitch}
}

// WorldDefaults is the baseline applied to every freshly loaded world.
type WorldDefaults struct {
	Difficulty      Difficulty        `json:"difficulty,omitempty" yaml:"difficulty,omitempty"`
	Time            *int64            `json:"time,omitempty" yaml:"time,omitempty"`
	WorldBorderSize *float64          `json:"worldBorderSize,omitempty" yaml:"worldBorderSize,omitempty"`
	GameRules       map[string]string `json:"gameRules,omitempty" yaml:"gameRules,omitempty"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty" yaml:"pretty,omitempty"`
	File   string `json:"file,omitempty" yaml:"file,omitempty"`
}

// ImporterConfig controls discovery of unregistered world directories.
type ImporterConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
}
