package terrain

import (
	"context"
	"fmt"
	"log"
	"math"
	"runtime"
	"sync"

	"github.com/alitto/pond/v2"

	"voxelterrain/internal/config"
	"voxelterrain/internal/noise"
	"voxelterrain/internal/world"
)

// HeightChannel is the noise channel that drives surface height.
const HeightChannel = 0

// Builder turns a noise sampler into a populated world of grass-topped dirt
// columns.
type Builder struct {
	cfg     config.TerrainConfig
	sampler noise.Sampler
	logger  *log.Logger
}

func NewBuilder(cfg config.TerrainConfig, sampler noise.Sampler, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.New(log.Writer(), "terrain ", log.LstdFlags|log.Lmicroseconds)
	}
	return &Builder{
		cfg:     cfg,
		sampler: sampler,
		logger:  logger,
	}
}

// NewSampler wraps field according to cfg: zero octaves sample the field
// directly, more layer smoothed fractal noise. Value smoothing interpolates the
// field's own lattice; simplex smoothing uses OpenSimplex noise seeded and
// scaled like the field.
func NewSampler(field *noise.Field, cfg config.TerrainConfig) noise.Sampler {
	if cfg.Octaves <= 0 {
		return field
	}
	if cfg.Smoothing == config.SmoothingSimplex {
		s := noise.NewSimplex(field.Seed())
		s.Scale = field.Scale()
		s.Octaves = cfg.Octaves
		s.Persistence = cfg.Persistence
		s.Lacunarity = cfg.Lacunarity
		return s
	}
	return noise.Fractal{
		Source:      field,
		Octaves:     cfg.Octaves,
		Persistence: cfg.Persistence,
		Lacunarity:  cfg.Lacunarity,
	}
}

type columnResult struct {
	i, j   int
	voxels []world.Voxel
}

// Build generates a fresh world of width×depth columns. Grid cell (i, j) lands
// at world x=j, z=i. Columns are produced concurrently and merged by the
// calling goroutine, which is the only writer to the returned world.
func (b *Builder) Build(ctx context.Context, width, depth int) (*world.World, error) {
	if width <= 0 || depth <= 0 {
		return nil, fmt.Errorf("build %dx%d: dimensions must be positive", width, depth)
	}
	if b.sampler == nil {
		return nil, fmt.Errorf("build %dx%d: sampler is nil", width, depth)
	}

	totalColumns := width * depth
	out := world.NewWithCapacity(totalColumns * b.expectedColumnHeight())
	b.logger.Printf("world %dx%d generation progress: 0%%", width, depth)

	workers := b.workerCount(totalColumns)
	pool := pond.NewPool(workers)
	defer pool.StopAndWait()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan columnResult, workers)
	var wg sync.WaitGroup

	go func() {
		defer func() {
			wg.Wait()
			close(results)
		}()
		for i := 0; i < width; i++ {
			for j := 0; j < depth; j++ {
				if ctx.Err() != nil {
					return
				}
				wg.Add(1)
				pool.Submit(func() {
					defer wg.Done()
					result := columnResult{i: i, j: j, voxels: b.Column(i, j)}
					select {
					case results <- result:
					case <-ctx.Done():
					}
				})
			}
		}
	}()

	generatedColumns := 0
	nextLogPercent := 10
	var mergeErr error

	for result := range results {
		if mergeErr != nil {
			continue
		}
		for _, v := range result.voxels {
			if err := out.Insert(v); err != nil {
				mergeErr = fmt.Errorf("merge column (%d,%d): %w", result.i, result.j, err)
				cancel()
				break
			}
		}
		if mergeErr != nil {
			continue
		}

		generatedColumns++
		progress := generatedColumns * 100 / totalColumns
		if progress >= nextLogPercent {
			b.logger.Printf("world %dx%d generation progress: %d%%", width, depth, progress)
			nextLogPercent = ((progress / 10) + 1) * 10
		}
	}

	if mergeErr != nil {
		return nil, mergeErr
	}
	if err := ctx.Err(); err != nil && generatedColumns < totalColumns {
		return nil, fmt.Errorf("build %dx%d: %w", width, depth, err)
	}
	return out, nil
}

// Column produces the voxels for grid cell (i, j): one grass voxel on the
// surface and dirt below it down to the floor depth inclusive.
func (b *Builder) Column(i, j int) []world.Voxel {
	height := b.SurfaceHeight(i, j)
	floor := b.cfg.FloorDepth

	n := 1
	if height > floor {
		n += height - floor
	}
	column := make([]world.Voxel, 0, n)
	column = append(column, world.Voxel{
		Position: world.Position{X: j, Y: height, Z: i},
		Kind:     world.KindGrass,
	})
	for k := height - 1; k >= floor; k-- {
		column = append(column, world.Voxel{
			Position: world.Position{X: j, Y: k, Z: i},
			Kind:     world.KindDirt,
		})
	}
	return column
}

// SurfaceHeight returns the grass height for grid cell (i, j).
func (b *Builder) SurfaceHeight(i, j int) int {
	step := b.cfg.Step
	sample := b.sampler.Query(float64(i)*step, float64(j)*step, HeightChannel)
	return int(math.Ceil(sample * b.cfg.Amplitude))
}

func (b *Builder) expectedColumnHeight() int {
	h := int(math.Ceil(math.Abs(b.cfg.Amplitude))) - b.cfg.FloorDepth + 1
	if h < 1 {
		return 1
	}
	return h
}

func (b *Builder) workerCount(totalColumns int) int {
	if totalColumns <= 0 {
		return 1
	}
	if b.cfg.Workers > 0 {
		if b.cfg.Workers < totalColumns {
			return b.cfg.Workers
		}
		return totalColumns
	}
	workers := runtime.GOMAXPROCS(0)
	if workers > totalColumns {
		workers = totalColumns
	}
	if workers <= 0 {
		workers = 1
	}
	return workers
}
