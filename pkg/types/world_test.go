package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseWorldType(t *testing.T) {
	got, err := ParseWorldType(" nether ")
	require.NoError(t, err)
	assert.Equal(t, WorldNether, got)

	got, err = ParseWorldType("Template")
	require.NoError(t, err)
	assert.Equal(t, WorldTemplate, got)

	_, err = ParseWorldType("lava")
	assert.Error(t, err)
}

func TestWorldTypeTraits(t *testing.T) {
	assert.True(t, WorldNether.OtherDimension())
	assert.True(t, WorldEnd.OtherDimension())
	assert.False(t, WorldNormal.OtherDimension())

	assert.True(t, WorldVoid.NeedsFallbackSpawn())
	assert.True(t, WorldTemplate.NeedsFallbackSpawn())
	assert.False(t, WorldFlat.NeedsFallbackSpawn())
}

func TestLocationBlock(t *testing.T) {
	loc := Location{World: "alpha", X: 0.5, Y: 65, Z: -0.5}
	assert.Equal(t, BlockPos{X: 0, Y: 65, Z: -1}, loc.Block())
	assert.Equal(t, BlockPos{X: 0, Y: 64, Z: -1}, loc.Block().Down())

	assert.Equal(t, loc, BlockPos{X: 0, Y: 65, Z: -1}.Center("alpha").Add(0, 0, 1))
	assert.Equal(t, "beta", loc.In("beta").World)
	assert.Equal(t, "alpha(0.5, 65.0, -0.5)", loc.String())
}

func TestMaterial(t *testing.T) {
	assert.Equal(t, "GRASS_BLOCK", Grass.String())
	assert.Equal(t, "UNKNOWN", Material(200).String())

	assert.True(t, Stone.Solid())
	assert.False(t, Water.Solid())
	assert.False(t, Water.Passable())
	assert.True(t, Torch.Passable())
	assert.False(t, Torch.Solid())
}
