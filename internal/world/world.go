package world

import (
	"cmp"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
)

var (
	// ErrDuplicatePosition is returned by Insert when a voxel already occupies
	// the target position.
	ErrDuplicatePosition = errors.New("duplicate voxel position")
	// ErrUnknownKind is returned when a voxel carries a kind outside the enum.
	ErrUnknownKind = errors.New("unknown voxel kind")
)

// World is a sparse set of voxels keyed by position. It is populated once by
// the terrain builder and afterwards only shrinks through removals. Reads may
// run concurrently; writes are expected from a single goroutine at a time.
type World struct {
	mu        sync.RWMutex
	voxels    map[Position]Kind
	bounds    Bounds
	hasBounds bool
}

func New() *World {
	return &World{
		voxels: make(map[Position]Kind),
	}
}

// NewWithCapacity preallocates room for n voxels.
func NewWithCapacity(n int) *World {
	if n < 0 {
		n = 0
	}
	return &World{
		voxels: make(map[Position]Kind, n),
	}
}

// Insert places v. It never overwrites an existing voxel.
func (w *World) Insert(v Voxel) error {
	if !v.Kind.Valid() {
		return fmt.Errorf("insert %v kind %d: %w", v.Position, uint8(v.Kind), ErrUnknownKind)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if existing, ok := w.voxels[v.Position]; ok {
		return fmt.Errorf("insert %s at %v (occupied by %s): %w", v.Kind, v.Position, existing, ErrDuplicatePosition)
	}
	w.voxels[v.Position] = v.Kind
	if w.hasBounds {
		w.bounds = w.bounds.expand(v.Position)
	} else {
		w.bounds = Bounds{Min: v.Position, Max: v.Position}
		w.hasBounds = true
	}
	return nil
}

// Remove deletes the voxel at p and reports whether one was there. Removing an
// empty position is a no-op.
func (w *World) Remove(p Position) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.voxels[p]; !ok {
		return false
	}
	delete(w.voxels, p)
	return true
}

func (w *World) Get(p Position) (Voxel, bool) {
	w.mu.RLock()
	kind, ok := w.voxels[p]
	w.mu.RUnlock()
	if !ok {
		return Voxel{}, false
	}
	return Voxel{Position: p, Kind: kind}, true
}

func (w *World) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.voxels)
}

// Bounds returns the smallest box enclosing every voxel ever inserted. Removals
// do not shrink it, so it only ever over-approximates the occupied space.
func (w *World) Bounds() (Bounds, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.bounds, w.hasBounds
}

// All yields every voxel. Each range over the sequence takes a fresh snapshot
// of the positions, so the world may be modified while iterating; voxels
// removed mid-iteration are skipped.
func (w *World) All() iter.Seq[Voxel] {
	return func(yield func(Voxel) bool) {
		for _, p := range w.positions() {
			v, ok := w.Get(p)
			if !ok {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Snapshot returns every voxel sorted by position (X, then Z, then Y).
func (w *World) Snapshot() []Voxel {
	w.mu.RLock()
	out := make([]Voxel, 0, len(w.voxels))
	for p, kind := range w.voxels {
		out = append(out, Voxel{Position: p, Kind: kind})
	}
	w.mu.RUnlock()
	slices.SortFunc(out, compareVoxels)
	return out
}

// Column returns the voxels stacked at (x, z), highest first.
func (w *World) Column(x, z int) []Voxel {
	w.mu.RLock()
	defer w.mu.RUnlock()
	if !w.hasBounds {
		return nil
	}
	var column []Voxel
	for y := w.bounds.Max.Y; y >= w.bounds.Min.Y; y-- {
		p := Position{X: x, Y: y, Z: z}
		if kind, ok := w.voxels[p]; ok {
			column = append(column, Voxel{Position: p, Kind: kind})
		}
	}
	return column
}

// CountByKind tallies voxels per kind.
func (w *World) CountByKind() map[Kind]int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	counts := make(map[Kind]int, len(Kinds))
	for _, kind := range w.voxels {
		counts[kind]++
	}
	return counts
}

func (w *World) positions() []Position {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Position, 0, len(w.voxels))
	for p := range w.voxels {
		out = append(out, p)
	}
	return out
}

func compareVoxels(a, b Voxel) int {
	return comparePositions(a.Position, b.Position)
}

func comparePositions(a, b Position) int {
	if c := cmp.Compare(a.X, b.X); c != 0 {
		return c
	}
	if c := cmp.Compare(a.Z, b.Z); c != 0 {
		return c
	}
	return cmp.Compare(a.Y, b.Y)
}
