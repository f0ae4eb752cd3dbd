package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldkeeper/worldkeeper/pkg/types"
)

func isolate(t *testing.T) string {
	t.Helper()
	tmpDir := t.TempDir()
	t.Setenv("HOME", tmpDir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, ".config"))
	t.Setenv("WORLDKEEPER_CONFIG", "")
	return tmpDir
}

func TestLoadDefaults(t *testing.T) {
	dir := isolate(t)

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Unload.Enabled)
	assert.Equal(t, "01:00:00", cfg.Unload.TimeUntilUnload)
	assert.Equal(t, []string{"world", "world_nether", "world_the_end"}, cfg.Unload.Blacklist)
	assert.Equal(t, 5, cfg.Backup.MaxBackupsPerWorld)
	assert.True(t, cfg.Backup.AutoBackup.Enabled)
	assert.Equal(t, 900, cfg.Backup.AutoBackup.Interval)
	assert.True(t, cfg.Backup.AutoBackup.OnlyActiveWorlds)
	assert.Nil(t, cfg.Spawn)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := isolate(t)

	yml := `
unload:
  timeUntilUnload: "00:05:00"
  blacklist: ["lobby", "event_*"]
backup:
  maxBackupsPerWorld: 2
  autoBackup:
    onlyActiveWorlds: false
spawn:
  world: lobby
  x: 10.5
  y: 65
  z: -3.5
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(yml), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.True(t, cfg.Unload.Enabled, "untouched fields keep their defaults")
	assert.Equal(t, "00:05:00", cfg.Unload.TimeUntilUnload)
	assert.Equal(t, []string{"lobby", "event_*"}, cfg.Unload.Blacklist)
	assert.Equal(t, 2, cfg.Backup.MaxBackupsPerWorld)
	assert.False(t, cfg.Backup.AutoBackup.OnlyActiveWorlds)
	assert.Equal(t, 900, cfg.Backup.AutoBackup.Interval)
	require.NotNil(t, cfg.Spawn)
	assert.Equal(t, types.Location{World: "lobby", X: 10.5, Y: 65, Z: -3.5}, cfg.Spawn.Location())
}

func TestLoadJSONCWithInterpolation(t *testing.T) {
	dir := isolate(t)
	t.Setenv("TEST_BACKUP_DIR", "/srv/backups")

	jsoncConfig := `{
		// comments are allowed
		"backupDir": "{env:TEST_BACKUP_DIR}",
		"backup": {"maxBackupsPerWorld": 3, "storage": "local", "autoBackup": {"enabled": false, "interval": 60, "onlyActiveWorlds": true}},
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "worldkeeper.jsonc"), []byte(jsoncConfig), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "/srv/backups", cfg.BackupDir)
	assert.Equal(t, 3, cfg.Backup.MaxBackupsPerWorld)
	assert.False(t, cfg.Backup.AutoBackup.Enabled)
	assert.Equal(t, 60, cfg.Backup.AutoBackup.Interval)
}

func TestLoadEnvOverrides(t *testing.T) {
	dir := isolate(t)
	t.Setenv("WORLDKEEPER_UNLOAD_ENABLED", "false")
	t.Setenv("WORLDKEEPER_MAX_BACKUPS", "7")
	t.Setenv("WORLDKEEPER_UNLOAD_TIME", "00:00:30")
	t.Setenv("WORLDKEEPER_LOG_FILE", "/var/log/worldkeeper.log")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.False(t, cfg.Unload.Enabled)
	assert.Equal(t, "/var/log/worldkeeper.log", cfg.Log.File)
	assert.Equal(t, 7, cfg.Backup.MaxBackupsPerWorld)
	grace, err := UnloadGrace(cfg.Unload)
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, grace)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("unload:\n  timeUntilUnload: soon\n"), 0644))

	_, err := Load(dir)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte("backup:\n  maxBackupsPerWorld: 0\n"), 0644))
	_, err = Load(dir)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		wantErr  bool
	}{
		{"01:00:00", time.Hour, false},
		{"00:01:30", 90 * time.Second, false},
		{"10:00:05", 10*time.Hour + 5*time.Second, false},
		{"1:2", 0, true},
		{"aa:00:00", 0, true},
		{"00:-1:00", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			d, err := ParseClock(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, d)
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := isolate(t)
	cfg := Default()
	cfg.Unload.Blacklist = []string{"hub"}

	path := filepath.Join(dir, "out", "config.yml")
	require.NoError(t, Save(cfg, path))

	loaded, err := Load(filepath.Dir(path))
	require.NoError(t, err)
	assert.Equal(t, []string{"hub"}, loaded.Unload.Blacklist)
}

func TestPathsResolve(t *testing.T) {
	isolate(t)
	paths := GetPaths()

	worlds, backups := paths.Resolve(&types.Config{})
	assert.Equal(t, paths.WorldsDir(), worlds)
	assert.Equal(t, paths.BackupsDir(), backups)

	worlds, backups = paths.Resolve(&types.Config{WorldContainer: "/w", BackupDir: "/b"})
	assert.Equal(t, "/w", worlds)
	assert.Equal(t, "/b", backups)
}
