package noise

import "math"

// Fractal layers smoothed lattice values from Source into fractal value noise.
// Lattice points sit on integer coordinates; between them values are blended
// with a smoothstep curve, so the result is continuous where Source is not.
type Fractal struct {
	Source      Sampler
	Octaves     int
	Persistence float64
	Lacunarity  float64
}

// Query implements Sampler. The result stays within [-1, 1] because each
// octave is a convex blend of source values and octaves are normalised by their
// total amplitude.
func (f Fractal) Query(x, y float64, channel int) float64 {
	octaves := f.Octaves
	if octaves <= 0 {
		octaves = 1
	}
	frequency := 1.0
	amplitude := 1.0
	noiseSum := 0.0
	maxAmplitude := 0.0

	for i := 0; i < octaves; i++ {
		noiseSum += f.valueNoise(x*frequency, y*frequency, channel) * amplitude
		maxAmplitude += amplitude
		amplitude *= f.Persistence
		frequency *= f.Lacunarity
	}

	if maxAmplitude == 0 {
		return 0
	}
	return clamp(noiseSum/maxAmplitude, -1, 1)
}

func (f Fractal) valueNoise(x, y float64, channel int) float64 {
	x0 := math.Floor(x)
	y0 := math.Floor(y)

	sx := smooth(x - x0)
	sy := smooth(y - y0)

	n0 := f.Source.Query(x0, y0, channel)
	n1 := f.Source.Query(x0+1, y0, channel)
	ix0 := lerp(n0, n1, sx)

	n2 := f.Source.Query(x0, y0+1, channel)
	n3 := f.Source.Query(x0+1, y0+1, channel)
	ix1 := lerp(n2, n3, sx)

	return lerp(ix0, ix1, sy)
}

func smooth(t float64) float64 {
	return t * t * (3 - 2*t)
}

func lerp(a, b, t float64) float64 {
	return a + t*(b-a)
}

func clamp(v, lo, hi float64) float64 {
	return max(lo, min(v, hi))
}
