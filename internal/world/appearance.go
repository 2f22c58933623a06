package world

// Appearance captures the render binding for a voxel kind: the material name,
// a flat colour and the texture a renderer should bind.
type Appearance struct {
	Material string
	Color    string
	Texture  string
}

const (
	MaterialGrass = "grass"
	MaterialDirt  = "dirt"
)

// DefaultAppearances enumerates the built-in voxel visuals.
var DefaultAppearances = map[Kind]Appearance{
	KindGrass: {
		Material: MaterialGrass,
		Color:    "#5d9b3d",
		Texture:  "assets/textures/grass.png",
	},
	KindDirt: {
		Material: MaterialDirt,
		Color:    "#8b5a2b",
		Texture:  "assets/textures/dirt.png",
	},
}

// AppearanceOf returns the appearance for kind, falling back to a neutral grey
// for kinds without a preset.
func AppearanceOf(kind Kind) Appearance {
	if preset, ok := DefaultAppearances[kind]; ok {
		return preset
	}
	return Appearance{Material: kind.String(), Color: "#808080"}
}
