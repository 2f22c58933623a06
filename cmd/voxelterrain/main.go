package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"math/rand/v2"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"voxelterrain/internal/config"
	"voxelterrain/internal/noise"
	"voxelterrain/internal/picker"
	"voxelterrain/internal/render"
	viewer "voxelterrain/internal/server"
	"voxelterrain/internal/terrain"
	"voxelterrain/internal/world"
)

func main() {
	var (
		cfgPath     string
		seed        int64
		width       int
		depth       int
		previewPath string
		glbPath     string
		listen      string
		pickRay     string
	)
	flag.StringVar(&cfgPath, "config", "", "path to configuration file (JSON or YAML)")
	flag.Int64Var(&seed, "seed", 0, "noise seed; overrides the configured seed")
	flag.IntVar(&width, "width", 0, "world width in columns; overrides the config")
	flag.IntVar(&depth, "depth", 0, "world depth in columns; overrides the config")
	flag.StringVar(&previewPath, "preview", "", "write an isometric PNG preview to this path")
	flag.StringVar(&glbPath, "glb", "", "write a glTF binary scene to this path")
	flag.StringVar(&listen, "serve", "", "serve viewers over WebSocket on this address")
	flag.StringVar(&pickRay, "pick", "", `break the first voxel along a ray, "ox,oy,oz:dx,dy,dz"`)
	flag.Parse()

	seedSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			seedSet = true
		}
	})

	logger := log.New(log.Writer(), "voxelterrain ", log.LstdFlags|log.Lmicroseconds)

	wrote, err := writeConfigFromEnv(cfgPath)
	if err != nil {
		log.Fatalf("sync config from environment: %v", err)
	}
	if wrote {
		logger.Printf("wrote environment configuration to %s", cfgPath)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if width > 0 {
		cfg.World.Width = width
	}
	if depth > 0 {
		cfg.World.Depth = depth
	}
	if previewPath != "" {
		cfg.Export.PreviewPath = previewPath
	}
	if glbPath != "" {
		cfg.Export.GLBPath = glbPath
	}
	if listen != "" {
		cfg.Viewer.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("validate config: %v", err)
	}

	if !seedSet {
		seed = resolveSeed(cfg.Noise)
	}

	ctx, cancel := signalContext()
	defer cancel()

	w, err := generate(ctx, cfg, seed, logger)
	if err != nil {
		log.Fatalf("generate world: %v", err)
	}

	if pickRay != "" {
		origin, direction, err := parseRay(pickRay)
		if err != nil {
			log.Fatalf("parse --pick: %v", err)
		}
		if hit, ok := picker.Break(w, origin, direction, cfg.Picker.MaxDistance); ok {
			logger.Printf("broke %s at %v (distance %.2f)", hit.Voxel.Kind, hit.Voxel.Position, hit.Distance)
		} else {
			logger.Printf("pick %s struck nothing within %.1f", pickRay, cfg.Picker.MaxDistance)
		}
	}

	if path := cfg.Export.PreviewPath; path != "" {
		if err := render.SavePreview(w, path); err != nil {
			log.Fatalf("save preview: %v", err)
		}
		logger.Printf("preview written to %s", path)
	}
	if path := cfg.Export.GLBPath; path != "" {
		if err := render.SaveGLB(w, path); err != nil {
			log.Fatalf("save glb: %v", err)
		}
		logger.Printf("glb written to %s", path)
	}

	if cfg.Viewer.Listen == "" {
		return
	}
	srv, err := viewer.New(cfg, w, seed, nil)
	if err != nil {
		log.Fatalf("initialise viewer server: %v", err)
	}
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("viewer server exited with error: %v", err)
	}
}

func generate(ctx context.Context, cfg *config.Config, seed int64, logger *log.Logger) (*world.World, error) {
	mode, err := noise.ParseMode(cfg.Noise.Mode)
	if err != nil {
		return nil, err
	}
	field := noise.New(seed, noise.WithMode(mode), noise.WithScale(cfg.Noise.Scale))
	builder := terrain.NewBuilder(cfg.Terrain, terrain.NewSampler(field, cfg.Terrain), nil)

	start := time.Now()
	w, err := builder.Build(ctx, cfg.World.Width, cfg.World.Depth)
	if err != nil {
		return nil, err
	}
	counts := w.CountByKind()
	logger.Printf("generated %dx%d world in %s: seed %d, %s mode, %d voxels (grass %d, dirt %d), digest %016x",
		cfg.World.Width, cfg.World.Depth, time.Since(start).Round(time.Millisecond), seed, mode,
		w.Len(), counts[world.KindGrass], counts[world.KindDirt], w.Digest())
	return w, nil
}

// resolveSeed returns the configured seed, or a process-random one when the
// config leaves it unset and asks for randomness.
func resolveSeed(cfg config.NoiseConfig) int64 {
	if cfg.Seed != 0 || !cfg.RandomSeed {
		return cfg.Seed
	}
	return rand.Int64()
}

func parseRay(s string) (origin, direction mgl64.Vec3, err error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return origin, direction, fmt.Errorf("want origin:direction, got %q", s)
	}
	if origin, err = parseVec3(parts[0]); err != nil {
		return origin, direction, fmt.Errorf("origin: %w", err)
	}
	if direction, err = parseVec3(parts[1]); err != nil {
		return origin, direction, fmt.Errorf("direction: %w", err)
	}
	return origin, direction, nil
}

func parseVec3(s string) (mgl64.Vec3, error) {
	fields := strings.Split(s, ",")
	if len(fields) != 3 {
		return mgl64.Vec3{}, fmt.Errorf("want three components, got %q", s)
	}
	var v mgl64.Vec3
	for i, f := range fields {
		parsed, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return mgl64.Vec3{}, fmt.Errorf("component %d: %w", i, err)
		}
		v[i] = parsed
	}
	return v, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(signals)
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
			return
		}

		// Ensure the process terminates if shutdown stalls.
		time.AfterFunc(10*time.Second, func() {
			log.Printf("forced shutdown after timeout")
			os.Exit(1)
		})
	}()

	return ctx, cancel
}
