package logging

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture points the global logger at a buffer for the duration of the test.
func capture(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Level = level
	cfg.Output = &buf
	Init(cfg)
	t.Cleanup(func() { Init(DefaultConfig()) })
	return &buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &m), line)
		out = append(out, m)
	}
	return out
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, InfoLevel, cfg.Level)
	assert.Equal(t, os.Stderr, cfg.Output)
	assert.False(t, cfg.Pretty)
	assert.Empty(t, cfg.File)
	assert.Equal(t, time.RFC3339, cfg.TimeFormat)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug":   DebugLevel,
		"INFO":    InfoLevel,
		" warn ":  WarnLevel,
		"Warning": WarnLevel,
		"ERROR":   ErrorLevel,
		"fatal":   FatalLevel,
		"":        InfoLevel,
		"verbose": InfoLevel,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), "ParseLevel(%q)", in)
	}
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t, WarnLevel)

	Debug().Str("world", "alpha").Msg("loading world")
	Info().Str("world", "alpha").Msg("loaded world")
	Warn().Str("world", "alpha").Msg("failed to unload world, it may still be loaded")
	Error().Str("world", "alpha").Msg("backup failed")

	entries := lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "error", entries[1]["level"])
}

func TestStructuredFields(t *testing.T) {
	buf := capture(t, DebugLevel)

	Info().Str("world", "alpha").Str("id", "0b7c").Bool("saved", true).Msg("unloaded world")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "unloaded world", e["message"])
	assert.Equal(t, "alpha", e["world"])
	assert.Equal(t, "0b7c", e["id"])
	assert.Equal(t, true, e["saved"])
	assert.Contains(t, e, "time")
}

func TestWithChildLogger(t *testing.T) {
	buf := capture(t, InfoLevel)

	log := With().Str("component", "backup").Logger()
	log.Info().Int("deleted", 2).Msg("rotated backups")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "backup", entries[0]["component"])
	assert.Equal(t, float64(2), entries[0]["deleted"])
}

func TestPrettyOutput(t *testing.T) {
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.Pretty = true
	Init(cfg)
	t.Cleanup(func() { Init(DefaultConfig()) })

	Info().Str("world", "alpha").Msg("loaded world")

	out := buf.String()
	assert.Contains(t, out, "loaded world")
	assert.Contains(t, out, "world=")
	assert.False(t, json.Valid([]byte(strings.TrimSpace(out))))
}

func TestInitFillsDefaults(t *testing.T) {
	require.NoError(t, Init(Config{Level: InfoLevel}))
	t.Cleanup(func() { Init(DefaultConfig()) })

	assert.NotPanics(t, func() { Info().Msg("still works") })
	assert.Empty(t, LogFile())
}

func TestLogFileCopiesRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "worldkeeper.log")
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.Pretty = true
	cfg.File = path
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { Init(DefaultConfig()) })

	assert.Equal(t, path, LogFile())
	Info().Str("world", "alpha").Msg("created world")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var rec map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(data), &rec))
	assert.Equal(t, "created world", rec["message"])
	assert.Equal(t, "alpha", rec["world"])
	assert.Contains(t, buf.String(), "created world")
}

func TestInitReplacesLogFile(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = &bytes.Buffer{}
	cfg.File = filepath.Join(dir, "first.log")
	require.NoError(t, Init(cfg))

	first := file
	cfg.File = ""
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { Init(DefaultConfig()) })

	assert.Empty(t, LogFile())
	assert.Nil(t, file)
	assert.Error(t, first.Close(), "previous file should already be closed")
}

func TestInitUnopenableFile(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.File = filepath.Join(blocker, "worldkeeper.log")
	err := Init(cfg)
	t.Cleanup(func() { Init(DefaultConfig()) })

	assert.Error(t, err)
	assert.Empty(t, LogFile())
	Info().Msg("console only")
	assert.Contains(t, buf.String(), "console only")
}

func TestCloseKeepsConsole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worldkeeper.log")
	var buf bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &buf
	cfg.File = path
	require.NoError(t, Init(cfg))
	t.Cleanup(func() { Init(DefaultConfig()) })

	require.NoError(t, Close())
	assert.Empty(t, LogFile())
	assert.NoError(t, Close())

	Info().Msg("after close")
	assert.Contains(t, buf.String(), "after close")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "after close")
}
