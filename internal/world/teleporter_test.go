package world

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldkeeper/worldkeeper/internal/host"
	"github.com/worldkeeper/worldkeeper/pkg/types"
)

func TestDestination(t *testing.T) {
	env := newTestEnv(t, nil)
	tp := env.manager.Teleporter()

	normal := env.create(t, "alpha", types.WorldNormal)
	lvl := env.server.Level("alpha")
	dest := tp.Destination(normal, lvl)
	assert.Equal(t, types.Location{World: "alpha", X: 0.5, Y: 65, Z: 0.5}, dest)

	custom := types.Location{World: "elsewhere", X: 10, Y: 70, Z: -3, Yaw: 90}
	require.NoError(t, env.registry.Update(context.Background(), normal, func(d *Data) {
		d.CustomSpawn = &custom
	}))
	dest = tp.Destination(normal, lvl)
	assert.Equal(t, custom.In("alpha"), dest)
}

func TestDestinationScansOtherDimensions(t *testing.T) {
	env := newTestEnv(t, nil)
	tp := env.manager.Teleporter()

	nether := env.create(t, "depths", types.WorldNether)
	lvl := env.server.Level("depths")
	dest := tp.Destination(nether, lvl)

	// The first safe cell sits on the netherrack floor.
	assert.Equal(t, types.Location{World: "depths", X: 0.5, Y: 33, Z: 0.5}, dest)
	assert.True(t, IsSafeLocation(lvl, types.BlockPos{X: 0, Y: 32, Z: 0}))
}

func TestDestinationFallsBackWhenNothingIsSafe(t *testing.T) {
	env := newTestEnv(t, nil)
	tp := env.manager.Teleporter()

	end := env.create(t, "void-end", types.WorldEnd)
	lvl := env.server.Level("void-end")
	// Nothing is safe outside the island, so move the spawn there.
	lvl.SetSpawn(types.BlockPos{X: 500, Y: 100, Z: 500})

	dest := tp.Destination(end, lvl)
	assert.Equal(t, types.Location{World: "void-end", X: 500.5, Y: 100, Z: 500.5}, dest)
}

func TestTeleportIntoResidentWorld(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "alpha", types.WorldNormal)
	beta := env.create(t, "beta", types.WorldFlat)
	p := env.server.Join("alex")
	require.Equal(t, "alpha", p.World())

	done := make(chan bool, 1)
	env.onMain(t, func() {
		require.NoError(t, env.manager.Teleporter().Teleport(beta, p, func(ok bool) { done <- ok }))
	})

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("teleport did not complete")
	}
	assert.Equal(t, "beta", p.World())
	assert.Equal(t, types.Location{World: "beta", X: 0.5, Y: -60, Z: 0.5}, p.Location())
	assert.Contains(t, p.Sounds(), teleportSound)
}

func TestTeleportLoadsWorldFirst(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "alpha", types.WorldNormal)
	beta, err := env.registry.Add(context.Background(), "beta", Data{Type: types.WorldNormal})
	require.NoError(t, err)
	p := env.server.Join("alex")

	done := make(chan bool, 1)
	start := time.Now()
	env.onMain(t, func() {
		require.NoError(t, env.manager.Teleporter().Teleport(beta, p, func(ok bool) { done <- ok }))
		assert.Equal(t, "Loading world beta...", p.Title())
	})
	assert.True(t, beta.Loaded())

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("teleport did not complete")
	}
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
	assert.Equal(t, "beta", p.World())
	assert.Empty(t, p.Title())
}

func TestTeleportUnknownWorld(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "alpha", types.WorldNormal)
	ghost, err := env.registry.Add(context.Background(), "ghost", Data{Type: types.WorldImported})
	require.NoError(t, err)
	p := env.server.Join("alex")

	env.onMain(t, func() {
		err = env.manager.Teleporter().Teleport(ghost, p, nil)
	})
	assert.Error(t, err)
	assert.Equal(t, "The world ghost is unknown.", p.LastNotice())
	assert.Empty(t, p.Title())
	assert.Equal(t, "alpha", p.World())
}

func TestTeleportStartsFlightOverAir(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "alpha", types.WorldNormal)
	sky := env.create(t, "sky", types.WorldNormal)
	air := types.Location{World: "sky", X: 0.5, Y: 200, Z: 0.5}
	require.NoError(t, env.registry.Update(context.Background(), sky, func(d *Data) {
		d.CustomSpawn = &air
	}))

	p := env.server.Join("alex")
	p.SetAllowFlight(true)

	done := make(chan bool, 1)
	env.onMain(t, func() {
		require.NoError(t, env.manager.Teleporter().Teleport(sky, p, func(ok bool) { done <- ok }))
	})
	require.True(t, <-done)
	assert.True(t, p.Flying())
}

func TestRemovePlayersToSpawn(t *testing.T) {
	env := newTestEnv(t, func(cfg *types.Config) {
		cfg.Spawn = &types.SpawnConfig{World: "hub", X: 0.5, Y: 65, Z: 0.5}
	})
	env.create(t, "hub", types.WorldNormal)
	beta := env.create(t, "beta", types.WorldFlat)

	p := env.server.Join("alex")
	moveTo(t, env, p, types.Location{World: "beta", X: 0.5, Y: -60, Z: 0.5})

	var removed []*host.Player
	env.onMain(t, func() {
		removed = env.manager.Evictor().RemovePlayers(beta, "Restoration in progress.")
	})
	require.Len(t, removed, 1)

	require.Eventually(t, func() bool { return p.World() == "hub" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.Location{World: "hub", X: 0.5, Y: 65, Z: 0.5}, p.Location())
	assert.Equal(t, "Restoration in progress.", p.LastNotice())
}

func TestRemovePlayersToDefaultLevel(t *testing.T) {
	env := newTestEnv(t, nil)
	env.create(t, "alpha", types.WorldNormal)
	beta := env.create(t, "beta", types.WorldFlat)

	p := env.server.Join("alex")
	moveTo(t, env, p, types.Location{World: "beta", X: 0.5, Y: -60, Z: 0.5})

	var removed []*host.Player
	env.onMain(t, func() {
		removed = env.manager.Evictor().RemovePlayers(beta, "bye")
	})
	require.Len(t, removed, 1)
	require.Eventually(t, func() bool { return p.World() == "alpha" }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, types.Location{World: "alpha", X: 0.5, Y: 65, Z: 0.5}, p.Location())
}

func TestRemovePlayersKicksWhenNowhereToGo(t *testing.T) {
	env := newTestEnv(t, nil)
	alpha := env.create(t, "alpha", types.WorldNormal)
	p := env.server.Join("alex")

	var removed []*host.Player
	env.onMain(t, func() {
		removed = env.manager.Evictor().RemovePlayers(alpha, "Restoration in progress.")
	})
	assert.Empty(t, removed)
	assert.False(t, p.Online())
	assert.Nil(t, env.server.Player(p.ID))
	assert.Equal(t, "Restoration in progress.", p.LastNotice())
}

func moveTo(t *testing.T, env *testEnv, p *host.Player, loc types.Location) {
	t.Helper()
	done := make(chan bool, 1)
	env.server.Teleport(p, loc, func(ok bool) { done <- ok })
	require.True(t, <-done)
}
