package render

import (
	"fmt"
	"io"

	"github.com/qmuntal/gltf"
	"github.com/qmuntal/gltf/modeler"

	"voxelterrain/internal/world"
)

// cubeFace lists a face normal and two tangents whose cross product is the
// normal, so corners built from them wind counter-clockwise when seen from
// outside.
type cubeFace struct {
	normal, u, v [3]float32
}

var cubeFaces = [6]cubeFace{
	{normal: [3]float32{1, 0, 0}, u: [3]float32{0, 1, 0}, v: [3]float32{0, 0, 1}},
	{normal: [3]float32{-1, 0, 0}, u: [3]float32{0, 0, 1}, v: [3]float32{0, 1, 0}},
	{normal: [3]float32{0, 1, 0}, u: [3]float32{0, 0, 1}, v: [3]float32{1, 0, 0}},
	{normal: [3]float32{0, -1, 0}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 0, 1}},
	{normal: [3]float32{0, 0, 1}, u: [3]float32{1, 0, 0}, v: [3]float32{0, 1, 0}},
	{normal: [3]float32{0, 0, -1}, u: [3]float32{0, 1, 0}, v: [3]float32{1, 0, 0}},
}

// unitCube returns a unit cube centred on the origin with flat per-face
// normals.
func unitCube() (positions, normals [][3]float32, indices []uint32) {
	signs := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range cubeFaces {
		base := uint32(len(positions))
		for _, s := range signs {
			var p [3]float32
			for axis := 0; axis < 3; axis++ {
				p[axis] = 0.5 * (f.normal[axis] + s[0]*f.u[axis] + s[1]*f.v[axis])
			}
			positions = append(positions, p)
			normals = append(normals, f.normal)
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}
	return positions, normals, indices
}

// BuildScene converts src into a glTF document: one cube mesh and material
// per voxel kind present, and one node per voxel translated to its position.
func BuildScene(src Source) (*gltf.Document, error) {
	if src == nil {
		return nil, fmt.Errorf("build scene: source is nil")
	}

	doc := gltf.NewDocument()
	doc.Asset.Generator = "voxelterrain"

	voxels := collect(src)
	meshByKind := make(map[world.Kind]int)
	for _, kind := range world.Kinds {
		present := false
		for _, v := range voxels {
			if v.Kind == kind {
				present = true
				break
			}
		}
		if !present {
			continue
		}
		meshByKind[kind] = addKindMesh(doc, kind)
	}

	for _, v := range voxels {
		meshIdx, ok := meshByKind[v.Kind]
		if !ok {
			return nil, fmt.Errorf("build scene: voxel at %v has kind %s: %w", v.Position, v.Kind, world.ErrUnknownKind)
		}
		node := &gltf.Node{
			Name: fmt.Sprintf("%s%v", v.Kind, v.Position),
			Mesh: gltf.Index(meshIdx),
			Translation: [3]float64{
				float64(v.Position.X),
				float64(v.Position.Y),
				float64(v.Position.Z),
			},
		}
		doc.Nodes = append(doc.Nodes, node)
		doc.Scenes[0].Nodes = append(doc.Scenes[0].Nodes, len(doc.Nodes)-1)
	}
	return doc, nil
}

func addKindMesh(doc *gltf.Document, kind world.Kind) int {
	positions, normals, indices := unitCube()

	posAccessor := modeler.WritePosition(doc, positions)
	normalAccessor := modeler.WriteNormal(doc, normals)
	indicesAccessor := modeler.WriteIndices(doc, indices)

	col := resolveKindColor(kind)
	pbr := &gltf.PBRMetallicRoughness{
		BaseColorFactor: &[4]float64{
			float64(col.R) / 255,
			float64(col.G) / 255,
			float64(col.B) / 255,
			1,
		},
		MetallicFactor:  gltf.Float(0),
		RoughnessFactor: gltf.Float(1),
	}
	appearance := world.AppearanceOf(kind)
	doc.Materials = append(doc.Materials, &gltf.Material{
		Name:                 appearance.Material,
		PBRMetallicRoughness: pbr,
		AlphaMode:            gltf.AlphaOpaque,
	})

	prim := &gltf.Primitive{
		Attributes: gltf.PrimitiveAttributes{
			gltf.POSITION: posAccessor,
			gltf.NORMAL:   normalAccessor,
		},
		Indices:  gltf.Index(indicesAccessor),
		Material: gltf.Index(len(doc.Materials) - 1),
	}
	doc.Meshes = append(doc.Meshes, &gltf.Mesh{Name: appearance.Material, Primitives: []*gltf.Primitive{prim}})
	return len(doc.Meshes) - 1
}

// WriteGLB encodes the scene for src as a binary glTF stream.
func WriteGLB(src Source, out io.Writer) error {
	doc, err := BuildScene(src)
	if err != nil {
		return err
	}
	enc := gltf.NewEncoder(out)
	enc.AsBinary = true
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode glb: %w", err)
	}
	return nil
}

// SaveGLB writes the scene for src to path.
func SaveGLB(src Source, path string) error {
	if path == "" {
		return fmt.Errorf("glb path is empty")
	}
	doc, err := BuildScene(src)
	if err != nil {
		return err
	}
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := gltf.SaveBinary(doc, path); err != nil {
		return fmt.Errorf("save glb: %w", err)
	}
	return nil
}
