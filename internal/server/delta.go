package server

import (
	"cmp"
	"slices"
	"time"

	"voxelterrain/internal/network"
	"voxelterrain/internal/world"
)

// deltaAccumulator collects removals between flushes. A position removed twice
// in one window is reported once.
type deltaAccumulator struct {
	removed map[world.Position]world.Voxel
}

func newDeltaAccumulator() *deltaAccumulator {
	return &deltaAccumulator{removed: make(map[world.Position]world.Voxel)}
}

func (d *deltaAccumulator) add(v world.Voxel) {
	if d.removed == nil {
		d.removed = make(map[world.Position]world.Voxel)
	}
	d.removed[v.Position] = v
}

func (d *deltaAccumulator) len() int {
	return len(d.removed)
}

func (d *deltaAccumulator) flush(seq *uint64) (network.WorldDelta, bool) {
	if len(d.removed) == 0 {
		return network.WorldDelta{}, false
	}

	delta := network.WorldDelta{
		Seq:       *seq,
		Timestamp: time.Now().UTC(),
		Removed:   make([]network.VoxelState, 0, len(d.removed)),
	}
	*seq++
	for _, v := range d.removed {
		delta.Removed = append(delta.Removed, encodeVoxel(v))
	}
	slices.SortFunc(delta.Removed, func(a, b network.VoxelState) int {
		if c := cmp.Compare(a.X, b.X); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Z, b.Z); c != 0 {
			return c
		}
		return cmp.Compare(a.Y, b.Y)
	})

	d.removed = make(map[world.Position]world.Voxel)
	return delta, true
}

func encodeKind(kind world.Kind) network.KindCode {
	switch kind {
	case world.KindGrass:
		return network.KindCodeGrass
	case world.KindDirt:
		return network.KindCodeDirt
	default:
		return network.KindCodeUnknown
	}
}

func encodeVoxel(v world.Voxel) network.VoxelState {
	appearance := world.AppearanceOf(v.Kind)
	return network.VoxelState{
		X:        v.Position.X,
		Y:        v.Position.Y,
		Z:        v.Position.Z,
		Kind:     encodeKind(v.Kind),
		Material: appearance.Material,
		Color:    appearance.Color,
		Texture:  appearance.Texture,
	}
}
