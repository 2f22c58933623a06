package render

import (
	"bytes"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/qmuntal/gltf"

	"voxelterrain/internal/world"
)

func smallWorld(t *testing.T) *world.World {
	t.Helper()
	w := world.New()
	for x := 0; x < 2; x++ {
		for z := 0; z < 2; z++ {
			voxels := []world.Voxel{
				{Position: world.Position{X: x, Y: 1, Z: z}, Kind: world.KindGrass},
				{Position: world.Position{X: x, Y: 0, Z: z}, Kind: world.KindDirt},
			}
			for _, v := range voxels {
				if err := w.Insert(v); err != nil {
					t.Fatalf("insert: %v", err)
				}
			}
		}
	}
	return w
}

func TestRenderPreviewDrawsGrassTops(t *testing.T) {
	img, err := RenderPreview(smallWorld(t))
	if err != nil {
		t.Fatalf("render: %v", err)
	}

	grass := applyLighting(resolveKindColor(world.KindGrass), previewAmbientLight+0.8)
	found := false
	b := img.Bounds()
	for y := b.Min.Y; y < b.Max.Y && !found; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.NRGBAAt(x, y) == grass {
				found = true
				break
			}
		}
	}
	if !found {
		t.Fatalf("expected lit grass colour %v in preview", grass)
	}
}

func TestSavePreviewWritesPNG(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "preview.png")
	if err := SavePreview(smallWorld(t), path); err != nil {
		t.Fatalf("save preview: %v", err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer file.Close()
	img, err := png.Decode(file)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if img.Bounds().Dx() < previewTileWidth || img.Bounds().Dy() < previewTileHeight {
		t.Fatalf("preview too small: %v", img.Bounds())
	}
}

func TestRenderPreviewEmptyWorld(t *testing.T) {
	img, err := RenderPreview(world.New())
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if img.NRGBAAt(0, 0) != previewBackground {
		t.Fatalf("empty preview should be background only")
	}
}

func TestParseHexColor(t *testing.T) {
	col, ok := parseHexColor("#5d9b3d")
	if !ok || col.R != 0x5d || col.G != 0x9b || col.B != 0x3d || col.A != 255 {
		t.Fatalf("parse = %v, %v", col, ok)
	}
	for _, bad := range []string{"", "#123", "zzzzzz", "#1234567"} {
		if _, ok := parseHexColor(bad); ok {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestUnitCubeNormalsPointOutward(t *testing.T) {
	positions, normals, indices := unitCube()
	if len(positions) != 24 || len(indices) != 36 {
		t.Fatalf("cube has %d vertices and %d indices", len(positions), len(indices))
	}
	for i := 0; i < len(indices); i += 3 {
		p0, p1, p2 := positions[indices[i]], positions[indices[i+1]], positions[indices[i+2]]
		a := [3]float32{p1[0] - p0[0], p1[1] - p0[1], p1[2] - p0[2]}
		b := [3]float32{p2[0] - p0[0], p2[1] - p0[1], p2[2] - p0[2]}
		cross := [3]float32{
			a[1]*b[2] - a[2]*b[1],
			a[2]*b[0] - a[0]*b[2],
			a[0]*b[1] - a[1]*b[0],
		}
		n := normals[indices[i]]
		if dot := cross[0]*n[0] + cross[1]*n[1] + cross[2]*n[2]; dot <= 0 {
			t.Fatalf("triangle %d winds inward (normal %v, cross %v)", i/3, n, cross)
		}
	}
}

func TestWriteGLBOneNodePerVoxel(t *testing.T) {
	w := smallWorld(t)
	var buf bytes.Buffer
	if err := WriteGLB(w, &buf); err != nil {
		t.Fatalf("write glb: %v", err)
	}
	if !bytes.HasPrefix(buf.Bytes(), []byte("glTF")) {
		t.Fatalf("output is not a binary glTF stream")
	}

	doc := new(gltf.Document)
	if err := gltf.NewDecoder(bytes.NewReader(buf.Bytes())).Decode(doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(doc.Nodes) != w.Len() {
		t.Fatalf("nodes = %d, want %d", len(doc.Nodes), w.Len())
	}
	if len(doc.Meshes) != 2 || len(doc.Materials) != 2 {
		t.Fatalf("expected one mesh and material per kind, got %d meshes %d materials", len(doc.Meshes), len(doc.Materials))
	}
	if len(doc.Scenes) == 0 || len(doc.Scenes[0].Nodes) != w.Len() {
		t.Fatalf("scene does not reference every node")
	}

	first := doc.Nodes[0]
	if first.Translation != [3]float64{0, 0, 0} {
		t.Fatalf("first node translation %v, want origin", first.Translation)
	}
}

func TestSaveGLBCreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scene.glb")
	if err := SaveGLB(smallWorld(t), path); err != nil {
		t.Fatalf("save glb: %v", err)
	}
	doc, err := gltf.Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if len(doc.Nodes) != 8 {
		t.Fatalf("nodes = %d, want 8", len(doc.Nodes))
	}
}

func TestBuildSceneLinksNodesToKindMeshes(t *testing.T) {
	doc, err := BuildScene(smallWorld(t))
	if err != nil {
		t.Fatalf("build scene: %v", err)
	}

	for i, node := range doc.Nodes {
		if node.Mesh == nil || *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
			t.Fatalf("node %d has mesh index %v", i, node.Mesh)
		}
		if doc.Scenes[0].Nodes[i] != i {
			t.Fatalf("scene node %d references %d", i, doc.Scenes[0].Nodes[i])
		}
	}

	for i, mesh := range doc.Meshes {
		prim := mesh.Primitives[0]
		if prim.Material == nil || *prim.Material != i {
			t.Fatalf("mesh %d uses material %v, want %d", i, prim.Material, i)
		}
		if _, ok := prim.Attributes[gltf.POSITION]; !ok {
			t.Fatalf("mesh %d has no positions", i)
		}
		if prim.Indices == nil {
			t.Fatalf("mesh %d has no indices", i)
		}
	}

	grass := resolveKindColor(world.KindGrass)
	factor := doc.Materials[0].PBRMetallicRoughness.BaseColorFactor
	want := [4]float64{float64(grass.R) / 255, float64(grass.G) / 255, float64(grass.B) / 255, 1}
	if factor == nil || *factor != want {
		t.Fatalf("grass base colour %v, want %v", factor, want)
	}
}
