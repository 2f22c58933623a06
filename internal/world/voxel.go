package world

import (
	"fmt"
	"strings"
)

// Kind enumerates the materials a voxel can be made of.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindGrass
	KindDirt
)

// Kinds lists every placeable kind in code order.
var Kinds = []Kind{KindGrass, KindDirt}

func (k Kind) String() string {
	switch k {
	case KindGrass:
		return MaterialGrass
	case KindDirt:
		return MaterialDirt
	default:
		return "unknown"
	}
}

// Valid reports whether k may be stored in a World.
func (k Kind) Valid() bool {
	return k == KindGrass || k == KindDirt
}

func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("marshal kind %d: %w", uint8(k), ErrUnknownKind)
	}
	return []byte(k.String()), nil
}

func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseKind maps a material name to its Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case MaterialGrass:
		return KindGrass, nil
	case MaterialDirt:
		return KindDirt, nil
	default:
		return KindUnknown, fmt.Errorf("parse kind %q: %w", s, ErrUnknownKind)
	}
}

// Position is an integer lattice point. Voxels are unit cubes centred on their
// position.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

func (p Position) String() string {
	return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z)
}

func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Voxel is a placed block. Identity is positional.
type Voxel struct {
	Position Position `json:"position"`
	Kind     Kind     `json:"kind"`
}

// Bounds is an axis-aligned box represented by inclusive min/max corners.
type Bounds struct {
	Min Position
	Max Position
}

func (b Bounds) expand(p Position) Bounds {
	b.Min.X = min(b.Min.X, p.X)
	b.Min.Y = min(b.Min.Y, p.Y)
	b.Min.Z = min(b.Min.Z, p.Z)
	b.Max.X = max(b.Max.X, p.X)
	b.Max.Y = max(b.Max.Y, p.Y)
	b.Max.Z = max(b.Max.Z, p.Z)
	return b
}
