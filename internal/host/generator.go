package host

import "github.com/worldkeeper/worldkeeper/pkg/types"

// terrain returns the generated material at a coordinate. Pages only
// store blocks that differ from it.
type terrain func(x, y, z int) types.Material

// generator describes how a new level of one world type is laid out.
type generator struct {
	minHeight int
	maxHeight int
	spawn     types.BlockPos
	terrain   terrain
}

const endIslandRadius = 40

var generators = map[types.WorldType]generator{
	types.WorldNormal: {
		minHeight: -64,
		maxHeight: 320,
		spawn:     types.BlockPos{X: 0, Y: 65, Z: 0},
		terrain: func(_, y, _ int) types.Material {
			switch {
			case y == -64:
				return types.Bedrock
			case y < 61:
				return types.Stone
			case y < 64:
				return types.Dirt
			case y == 64:
				return types.Grass
			}
			return types.Air
		},
	},
	types.WorldFlat: {
		minHeight: -64,
		maxHeight: 320,
		spawn:     types.BlockPos{X: 0, Y: -60, Z: 0},
		terrain: func(_, y, _ int) types.Material {
			switch y {
			case -64:
				return types.Bedrock
			case -63, -62:
				return types.Dirt
			case -61:
				return types.Grass
			}
			return types.Air
		},
	},
	types.WorldVoid: {
		minHeight: -64,
		maxHeight: 320,
		spawn:     types.BlockPos{X: 0, Y: 64, Z: 0},
		terrain:   func(_, _, _ int) types.Material { return types.Air },
	},
	types.WorldNether: {
		minHeight: 0,
		maxHeight: 128,
		spawn:     types.BlockPos{X: 0, Y: 64, Z: 0},
		terrain: func(_, y, _ int) types.Material {
			switch {
			case y == 0 || y == 127:
				return types.Bedrock
			case y <= 31:
				return types.Netherrack
			case y >= 100:
				return types.Netherrack
			}
			return types.Air
		},
	},
	types.WorldEnd: {
		minHeight: 0,
		maxHeight: 256,
		spawn:     types.BlockPos{X: 0, Y: 100, Z: 0},
		terrain: func(x, y, z int) types.Material {
			if y >= 40 && y <= 48 && x*x+z*z <= endIslandRadius*endIslandRadius {
				return types.EndStone
			}
			return types.Air
		},
	},
}

// generatorFor returns the generator of a world type. Template and
// imported levels without a recognised generator are treated as void.
func generatorFor(t types.WorldType) generator {
	if g, ok := generators[t]; ok {
		return g
	}
	return generators[types.WorldVoid]
}
