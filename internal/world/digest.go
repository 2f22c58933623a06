package world

import (
	"encoding/binary"
	"slices"

	"github.com/cespare/xxhash/v2"
)

// Digest fingerprints the world contents. Two worlds holding the same voxels
// produce the same digest regardless of insertion order.
func (w *World) Digest() uint64 {
	return DigestOf(w.Snapshot())
}

// DigestOf fingerprints a set of voxels, such as one returned by Snapshot, in
// the same way as Digest. The order of voxels does not matter.
func DigestOf(voxels []Voxel) uint64 {
	if !slices.IsSortedFunc(voxels, compareVoxels) {
		voxels = slices.SortedFunc(slices.Values(voxels), compareVoxels)
	}
	h := xxhash.New()
	var buf [25]byte
	for _, v := range voxels {
		binary.LittleEndian.PutUint64(buf[0:8], uint64(int64(v.Position.X)))
		binary.LittleEndian.PutUint64(buf[8:16], uint64(int64(v.Position.Y)))
		binary.LittleEndian.PutUint64(buf[16:24], uint64(int64(v.Position.Z)))
		buf[24] = byte(v.Kind)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
