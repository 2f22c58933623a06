// Package picker resolves which voxel a viewer ray strikes first.
//
// Voxels are unit cubes centred on their integer position. The ray is walked
// cell by cell with a 3D DDA, so every cell the ray passes through is tested
// exactly once and in order of distance.
package picker

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"voxelterrain/internal/world"
)

// Lookup is the read side of a voxel world.
type Lookup interface {
	Get(p world.Position) (world.Voxel, bool)
	Bounds() (world.Bounds, bool)
}

// Editor is a Lookup that also supports removal.
type Editor interface {
	Lookup
	Remove(p world.Position) bool
}

// Hit describes the first voxel struck by a ray.
type Hit struct {
	Voxel world.Voxel
	// Distance along the normalised ray to the face where it entered the voxel.
	// Zero when the origin is inside the voxel.
	Distance float64
	// Normal is the unit axis of the face the ray entered through, pointing
	// back towards the origin. Zero when the origin is inside the voxel.
	Normal world.Position
}

// Pick returns the first occupied cell along the ray within maxDistance.
// A zero or non-finite direction, an empty world, or a ray that misses the
// world bounds yields no hit.
//
// The ray is first clipped against the world bounds and the walk starts at
// the entry point, so the work done is proportional to the size of the world
// rather than to the distance of the origin.
func Pick(w Lookup, origin, direction mgl64.Vec3, maxDistance float64) (Hit, bool) {
	if w == nil || !(maxDistance >= 0) {
		return Hit{}, false
	}
	bounds, ok := w.Bounds()
	if !ok {
		return Hit{}, false
	}
	length := direction.Len()
	if length == 0 || math.IsNaN(length) || math.IsInf(length, 0) {
		return Hit{}, false
	}
	if !finite(origin) {
		return Hit{}, false
	}
	dir := direction.Mul(1 / length)

	lo := [3]int{bounds.Min.X, bounds.Min.Y, bounds.Min.Z}
	hi := [3]int{bounds.Max.X, bounds.Max.Y, bounds.Max.Z}
	tEnter, tExit, entryAxis, ok := clip(lo, hi, origin, dir)
	if !ok || tExit < 0 || tEnter > maxDistance {
		return Hit{}, false
	}
	start := max(tEnter, 0)
	entry := origin.Add(dir.Mul(start))

	var (
		cell   [3]int
		step   [3]int
		tMax   [3]float64
		tDelta [3]float64
		normal world.Position
	)
	for axis := 0; axis < 3; axis++ {
		d := dir[axis]
		// Shift by half a cell so boundaries land on integers.
		p := entry[axis] + 0.5
		if tEnter > 0 && axis == entryAxis {
			if d > 0 {
				p = float64(lo[axis])
			} else {
				p = float64(hi[axis] + 1)
			}
		}
		c := math.Floor(p)
		if p == c && d < 0 {
			c--
		}
		if tEnter > 0 {
			// Rounding at the entry point may land a hair outside the box.
			c = math.Max(float64(lo[axis]), math.Min(float64(hi[axis]), c))
		}
		cell[axis] = int(c)

		switch {
		case d > 0:
			step[axis] = 1
			tMax[axis] = start + max((c+1-p)/d, 0)
			tDelta[axis] = 1 / d
		case d < 0:
			step[axis] = -1
			tMax[axis] = start + max((c-p)/d, 0)
			tDelta[axis] = -1 / d
		default:
			tMax[axis] = math.Inf(1)
			tDelta[axis] = math.Inf(1)
		}
	}
	if tEnter > 0 {
		normal = axisNormal(entryAxis, step)
	}

	t := start
	for t <= maxDistance {
		pos := world.Position{X: cell[0], Y: cell[1], Z: cell[2]}
		if v, ok := w.Get(pos); ok {
			return Hit{Voxel: v, Distance: t, Normal: normal}, true
		}
		if movingAway(lo, hi, cell, step) {
			return Hit{}, false
		}

		axis := 0
		if tMax[1] < tMax[axis] {
			axis = 1
		}
		if tMax[2] < tMax[axis] {
			axis = 2
		}
		t = tMax[axis]
		cell[axis] += step[axis]
		tMax[axis] += tDelta[axis]
		normal = axisNormal(axis, step)
	}
	return Hit{}, false
}

// Break picks along the ray and removes the struck voxel.
func Break(w Editor, origin, direction mgl64.Vec3, maxDistance float64) (Hit, bool) {
	hit, ok := Pick(w, origin, direction, maxDistance)
	if !ok {
		return Hit{}, false
	}
	if !w.Remove(hit.Voxel.Position) {
		return Hit{}, false
	}
	return hit, true
}

// clip intersects the ray with the box covering every cell in [lo, hi] using
// the slab method. entryAxis is the axis whose slab the ray crosses last on
// the way in.
func clip(lo, hi [3]int, origin, dir mgl64.Vec3) (tEnter, tExit float64, entryAxis int, ok bool) {
	tEnter, tExit = math.Inf(-1), math.Inf(1)
	entryAxis = -1
	for axis := 0; axis < 3; axis++ {
		near := float64(lo[axis]) - 0.5
		far := float64(hi[axis]) + 0.5
		o, d := origin[axis], dir[axis]
		if d == 0 {
			if o < near || o > far {
				return 0, 0, -1, false
			}
			continue
		}
		t0 := (near - o) / d
		t1 := (far - o) / d
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tEnter {
			tEnter = t0
			entryAxis = axis
		}
		tExit = min(tExit, t1)
	}
	if tEnter > tExit {
		return 0, 0, -1, false
	}
	return tEnter, tExit, entryAxis, true
}

func axisNormal(axis int, step [3]int) world.Position {
	var n world.Position
	switch axis {
	case 0:
		n.X = -step[0]
	case 1:
		n.Y = -step[1]
	case 2:
		n.Z = -step[2]
	}
	return n
}

// movingAway reports whether the cell lies outside [lo, hi] on some axis and
// the ray cannot come back towards it on that axis.
func movingAway(lo, hi, cell, step [3]int) bool {
	for axis := 0; axis < 3; axis++ {
		if cell[axis] < lo[axis] && step[axis] <= 0 {
			return true
		}
		if cell[axis] > hi[axis] && step[axis] >= 0 {
			return true
		}
	}
	return false
}

func finite(v mgl64.Vec3) bool {
	for _, c := range v {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return false
		}
	}
	return true
}
