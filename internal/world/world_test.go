package world

import (
	"encoding/json"
	"errors"
	"slices"
	"testing"
)

func TestInsertRejectsDuplicatePosition(t *testing.T) {
	w := New()
	p := Position{X: 1, Y: 2, Z: 3}
	if err := w.Insert(Voxel{Position: p, Kind: KindGrass}); err != nil {
		t.Fatalf("first insert: %v", err)
	}
	err := w.Insert(Voxel{Position: p, Kind: KindDirt})
	if !errors.Is(err, ErrDuplicatePosition) {
		t.Fatalf("expected ErrDuplicatePosition, got %v", err)
	}
	got, ok := w.Get(p)
	if !ok || got.Kind != KindGrass {
		t.Fatalf("duplicate insert must not overwrite, got %+v (present=%v)", got, ok)
	}
}

func TestInsertRejectsUnknownKind(t *testing.T) {
	w := New()
	err := w.Insert(Voxel{Position: Position{}, Kind: KindUnknown})
	if !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind, got %v", err)
	}
	if w.Len() != 0 {
		t.Fatalf("rejected voxel was stored")
	}
}

func TestRemoveIsIdempotent(t *testing.T) {
	w := New()
	p := Position{X: 4, Y: -1, Z: 0}

	if w.Remove(p) {
		t.Fatalf("remove on empty world reported a voxel")
	}

	if err := w.Insert(Voxel{Position: p, Kind: KindDirt}); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if !w.Remove(p) {
		t.Fatalf("first remove should report the voxel")
	}
	if w.Remove(p) {
		t.Fatalf("second remove should report nothing")
	}
	if _, ok := w.Get(p); ok {
		t.Fatalf("voxel still present after removal")
	}
}

func TestAllIsRestartableAndToleratesRemoval(t *testing.T) {
	w := New()
	for x := 0; x < 4; x++ {
		if err := w.Insert(Voxel{Position: Position{X: x}, Kind: KindGrass}); err != nil {
			t.Fatalf("insert: %v", err)
		}
	}

	count := func() int {
		n := 0
		for range w.All() {
			n++
		}
		return n
	}
	if got := count(); got != 4 {
		t.Fatalf("first pass yielded %d voxels, want 4", got)
	}
	if got := count(); got != 4 {
		t.Fatalf("second pass yielded %d voxels, want 4", got)
	}

	seen := 0
	for v := range w.All() {
		seen++
		w.Remove(v.Position)
	}
	if seen != 4 || w.Len() != 0 {
		t.Fatalf("removing during iteration: seen %d, remaining %d", seen, w.Len())
	}

	for range w.All() {
		t.Fatalf("empty world yielded a voxel")
	}
}

func TestAllStopsEarly(t *testing.T) {
	w := New()
	for y := 0; y < 10; y++ {
		_ = w.Insert(Voxel{Position: Position{Y: y}, Kind: KindDirt})
	}
	n := 0
	for range w.All() {
		n++
		if n == 3 {
			break
		}
	}
	if n != 3 {
		t.Fatalf("expected early stop after 3, got %d", n)
	}
}

func TestBoundsGrowOnInsertOnly(t *testing.T) {
	w := New()
	if _, ok := w.Bounds(); ok {
		t.Fatalf("empty world should have no bounds")
	}
	_ = w.Insert(Voxel{Position: Position{X: -2, Y: 5, Z: 1}, Kind: KindGrass})
	_ = w.Insert(Voxel{Position: Position{X: 3, Y: -10, Z: 7}, Kind: KindDirt})

	want := Bounds{Min: Position{X: -2, Y: -10, Z: 1}, Max: Position{X: 3, Y: 5, Z: 7}}
	got, ok := w.Bounds()
	if !ok || got != want {
		t.Fatalf("bounds = %+v (ok=%v), want %+v", got, ok, want)
	}

	w.Remove(Position{X: 3, Y: -10, Z: 7})
	if got, _ := w.Bounds(); got != want {
		t.Fatalf("bounds shrank after removal: %+v", got)
	}
}

func TestColumnReturnsHighestFirst(t *testing.T) {
	w := New()
	_ = w.Insert(Voxel{Position: Position{X: 1, Y: 3, Z: 2}, Kind: KindGrass})
	_ = w.Insert(Voxel{Position: Position{X: 1, Y: 1, Z: 2}, Kind: KindDirt})
	_ = w.Insert(Voxel{Position: Position{X: 1, Y: 2, Z: 2}, Kind: KindDirt})
	_ = w.Insert(Voxel{Position: Position{X: 0, Y: 9, Z: 2}, Kind: KindGrass})

	column := w.Column(1, 2)
	if len(column) != 3 {
		t.Fatalf("column length %d, want 3", len(column))
	}
	for i, wantY := range []int{3, 2, 1} {
		if column[i].Position.Y != wantY {
			t.Fatalf("column[%d].Y = %d, want %d", i, column[i].Position.Y, wantY)
		}
	}
	if column[0].Kind != KindGrass {
		t.Fatalf("top of column should be grass, got %s", column[0].Kind)
	}
}

func TestDigestIgnoresInsertionOrder(t *testing.T) {
	voxels := []Voxel{
		{Position: Position{X: 0, Y: 0, Z: 0}, Kind: KindGrass},
		{Position: Position{X: 1, Y: -4, Z: 2}, Kind: KindDirt},
		{Position: Position{X: -3, Y: 8, Z: 5}, Kind: KindDirt},
	}

	a := New()
	b := New()
	for i := range voxels {
		_ = a.Insert(voxels[i])
		_ = b.Insert(voxels[len(voxels)-1-i])
	}
	if a.Digest() != b.Digest() {
		t.Fatalf("digest depends on insertion order")
	}

	b.Remove(voxels[1].Position)
	if a.Digest() == b.Digest() {
		t.Fatalf("digest did not change after removal")
	}
}

func TestDigestOfMatchesWorldDigest(t *testing.T) {
	w := New()
	for _, v := range []Voxel{
		{Position: Position{X: 2, Y: 1, Z: 0}, Kind: KindGrass},
		{Position: Position{X: 2, Y: 0, Z: 0}, Kind: KindDirt},
		{Position: Position{X: -1, Y: 5, Z: 3}, Kind: KindGrass},
	} {
		_ = w.Insert(v)
	}

	snapshot := w.Snapshot()
	if DigestOf(snapshot) != w.Digest() {
		t.Fatalf("DigestOf(Snapshot()) differs from Digest()")
	}

	reversed := slices.Clone(snapshot)
	slices.Reverse(reversed)
	if DigestOf(reversed) != w.Digest() {
		t.Fatalf("DigestOf depends on voxel order")
	}
	if reversed[0] != snapshot[len(snapshot)-1] {
		t.Fatalf("DigestOf reordered its argument")
	}

	w.Remove(Position{X: 2, Y: 1, Z: 0})
	if DigestOf(snapshot) == w.Digest() {
		t.Fatalf("stale snapshot still matches after removal")
	}
}

func TestVoxelJSONUsesMaterialNames(t *testing.T) {
	v := Voxel{Position: Position{X: 1, Y: 2, Z: 3}, Kind: KindDirt}
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	want := `{"position":{"x":1,"y":2,"z":3},"kind":"dirt"}`
	if string(data) != want {
		t.Fatalf("json = %s, want %s", data, want)
	}

	var decoded Voxel
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded != v {
		t.Fatalf("decoded %+v, want %+v", decoded, v)
	}

	if err := json.Unmarshal([]byte(`{"kind":"lava"}`), &decoded); !errors.Is(err, ErrUnknownKind) {
		t.Fatalf("expected ErrUnknownKind for unknown material, got %v", err)
	}
}
