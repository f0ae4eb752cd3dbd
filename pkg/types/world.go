package types

import (
	"fmt"
	"math"
	"strings"
)

// WorldType determines how a world is generated and which post-load
// setup it receives. It has no influence on lifecycle decisions.
type WorldType string

const (
	WorldNormal   WorldType = "NORMAL"
	WorldFlat     WorldType = "FLAT"
	WorldVoid     WorldType = "VOID"
	WorldNether   WorldType = "NETHER"
	WorldEnd      WorldType = "END"
	WorldTemplate WorldType = "TEMPLATE"
	WorldImported WorldType = "IMPORTED"
)

// ParseWorldType parses a world type name (case-insensitive).
func ParseWorldType(s string) (WorldType, error) {
	t := WorldType(strings.ToUpper(strings.TrimSpace(s)))
	switch t {
	case WorldNormal, WorldFlat, WorldVoid, WorldNether, WorldEnd, WorldTemplate, WorldImported:
		return t, nil
	}
	return "", fmt.Errorf("unknown world type: %q", s)
}

// OtherDimension reports whether entry points must be found by scanning
// for a safe location instead of trusting the default spawn.
func (t WorldType) OtherDimension() bool {
	return t == WorldNether || t == WorldEnd
}

// NeedsFallbackSpawn reports whether the default spawn cannot be trusted
// after loading and a known-safe point must be applied.
func (t WorldType) NeedsFallbackSpawn() bool {
	return t == WorldVoid || t == WorldTemplate
}

// Difficulty is the world difficulty setting.
type Difficulty string

const (
	DifficultyPeaceful Difficulty = "PEACEFUL"
	DifficultyEasy     Difficulty = "EASY"
	DifficultyNormal   Difficulty = "NORMAL"
	DifficultyHard     Difficulty = "HARD"
)

// BlockPos is an integer block coordinate.
type BlockPos struct {
	X int `json:"x" cbor:"1,keyasint"`
	Y int `json:"y" cbor:"2,keyasint"`
	Z int `json:"z" cbor:"3,keyasint"`
}

// Up returns the block above p.
func (p BlockPos) Up() BlockPos { return BlockPos{p.X, p.Y + 1, p.Z} }

// Down returns the block below p.
func (p BlockPos) Down() BlockPos { return BlockPos{p.X, p.Y - 1, p.Z} }

// Center returns the location at the horizontal center of the block.
func (p BlockPos) Center(world string) Location {
	return Location{World: world, X: float64(p.X) + 0.5, Y: float64(p.Y), Z: float64(p.Z) + 0.5}
}

// Location is a position inside a named world.
type Location struct {
	World string  `json:"world" yaml:"world" cbor:"1,keyasint"`
	X     float64 `json:"x" yaml:"x" cbor:"2,keyasint"`
	Y     float64 `json:"y" yaml:"y" cbor:"3,keyasint"`
	Z     float64 `json:"z" yaml:"z" cbor:"4,keyasint"`
	Yaw   float32 `json:"yaw,omitempty" yaml:"yaw,omitempty" cbor:"5,keyasint,omitempty"`
	Pitch float32 `json:"pitch,omitempty" yaml:"pitch,omitempty" cbor:"6,keyasint,omitempty"`
}

// Block returns the block containing l.
func (l Location) Block() BlockPos {
	return BlockPos{
		X: int(math.Floor(l.X)),
		Y: int(math.Floor(l.Y)),
		Z: int(math.Floor(l.Z)),
	}
}

// Add returns l offset by the given deltas.
func (l Location) Add(dx, dy, dz float64) Location {
	l.X += dx
	l.Y += dy
	l.Z += dz
	return l
}

// In returns l re-pointed at another world, keeping the relative offset.
func (l Location) In(world string) Location {
	l.World = world
	return l
}

func (l Location) String() string {
	return fmt.Sprintf("%s(%.1f, %.1f, %.1f)", l.World, l.X, l.Y, l.Z)
}
