package types

// Material is the content of a single block.
type Material uint8

const (
	Air Material = iota
	Stone
	Grass
	Dirt
	Bedrock
	Water
	Lava
	Netherrack
	EndStone
	GoldBlock
	Glass
	TallGrass
	Torch
)

var materialNames = [...]string{
	Air:        "AIR",
	Stone:      "STONE",
	Grass:      "GRASS_BLOCK",
	Dirt:       "DIRT",
	Bedrock:    "BEDROCK",
	Water:      "WATER",
	Lava:       "LAVA",
	Netherrack: "NETHERRACK",
	EndStone:   "END_STONE",
	GoldBlock:  "GOLD_BLOCK",
	Glass:      "GLASS",
	TallGrass:  "TALL_GRASS",
	Torch:      "TORCH",
}

func (m Material) String() string {
	if int(m) < len(materialNames) {
		return materialNames[m]
	}
	return "UNKNOWN"
}

// Solid reports whether an entity can stand on the block.
func (m Material) Solid() bool {
	switch m {
	case Stone, Grass, Dirt, Bedrock, Netherrack, EndStone, GoldBlock, Glass:
		return true
	}
	return false
}

// Passable reports whether an entity can occupy the block.
func (m Material) Passable() bool {
	switch m {
	case Air, TallGrass, Torch:
		return true
	}
	return false
}
