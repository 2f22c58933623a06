package noise

import "github.com/ojrac/opensimplex-go"

// channelSpacing separates channels along the third axis of the simplex volume
// so that each channel reads an unrelated 2D slice.
const channelSpacing = 97.0

// Simplex is a smooth OpenSimplex sampler layered into fractal noise. Unlike
// Fractal it needs no lattice source: a seed fully determines it. It is safe
// for concurrent use.
type Simplex struct {
	noise opensimplex.Noise

	Scale       float64
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

// NewSimplex returns a single-octave sampler at unit scale.
func NewSimplex(seed int64) *Simplex {
	return &Simplex{
		noise:       opensimplex.New(seed),
		Scale:       1,
		Octaves:     1,
		Persistence: 0.5,
		Lacunarity:  2,
	}
}

// Query implements Sampler. Values lie in [-1, 1].
func (s *Simplex) Query(x, y float64, channel int) float64 {
	octaves := max(s.Octaves, 1)
	x *= s.Scale
	y *= s.Scale
	z := float64(channel) * channelSpacing

	frequency := 1.0
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0
	for i := 0; i < octaves; i++ {
		noiseSum += s.noise.Eval3(x*frequency, y*frequency, z) * amplitude
		maxAmplitude += amplitude
		amplitude *= s.Persistence
		frequency *= s.Lacunarity
	}
	if maxAmplitude == 0 {
		return 0
	}
	return clamp(noiseSum/maxAmplitude, -1, 1)
}
