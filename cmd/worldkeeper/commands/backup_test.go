package commands

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldkeeper/worldkeeper/internal/archive"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 B"},
		{1023, "1023 B"},
		{1024, "1.0 KiB"},
		{1536, "1.5 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatSize(tt.in))
	}
}

func TestRenderBackups(t *testing.T) {
	color.NoColor = true

	var buf bytes.Buffer
	renderBackups(&buf, "alpha", nil)
	assert.Equal(t, "No backups of alpha.\n", buf.String())

	buf.Reset()
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	renderBackups(&buf, "alpha", []types.Backup{
		{ID: "01HQ0000000000000000000001", CreatedAt: created, Size: 2048},
		{ID: "01HQ0000000000000000000002", CreatedAt: created.Add(time.Minute), Size: 10},
	})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Backups of alpha (2)", lines[0])
	assert.Contains(t, lines[1], "01HQ0000000000000000000001")
	assert.Contains(t, lines[1], "2.0 KiB")
	assert.NotContains(t, lines[1], "(latest)")
	assert.Contains(t, lines[2], "(latest)")
}

func TestRenderEntries(t *testing.T) {
	color.NoColor = true

	fs := afero.NewOsFs()
	root := t.TempDir()
	src := filepath.Join(root, "world")
	require.NoError(t, fs.MkdirAll(filepath.Join(src, "region"), 0755))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(src, "level.dat"), []byte("meta"), 0644))
	require.NoError(t, afero.WriteFile(fs, filepath.Join(src, "region", "0.0.page"), []byte("page"), 0644))

	path := filepath.Join(root, "world.zip")
	require.NoError(t, archive.CreateFile(fs, src, path))
	entries, err := archive.Entries(fs, path)
	require.NoError(t, err)

	var buf bytes.Buffer
	renderEntries(&buf, entries)
	out := buf.String()
	assert.Contains(t, out, "level.dat")
	assert.Contains(t, out, "region/0.0.page")
	assert.Contains(t, out, "8 B uncompressed")
}
