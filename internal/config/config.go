package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a JSON and YAML friendly wrapper around time.Duration that
// accepts human readable strings such as "150ms" in configuration files while
// still allowing numeric representations when necessary.
type Duration time.Duration

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// MarshalJSON encodes the duration using the canonical string representation.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON decodes a duration from either a string (e.g. "250ms") or a
// numeric value representing nanoseconds. Empty strings and null values decode
// to zero.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return fmt.Errorf("duration: empty value")
	}
	if string(b) == "null" {
		*d = 0
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("duration: decode string: %w", err)
		}
		return d.parse(s)
	}
	var n int64
	if err := json.Unmarshal(b, &n); err == nil {
		*d = Duration(time.Duration(n))
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err == nil {
		*d = Duration(time.Duration(f))
		return nil
	}
	return fmt.Errorf("duration: invalid value %s", string(b))
}

// MarshalYAML mirrors MarshalJSON so both formats round-trip.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML accepts the same forms as UnmarshalJSON.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Tag == "!!int" {
		var n int64
		if err := node.Decode(&n); err != nil {
			return fmt.Errorf("duration: decode int: %w", err)
		}
		*d = Duration(time.Duration(n))
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration: decode string: %w", err)
	}
	return d.parse(s)
}

func (d *Duration) parse(s string) error {
	if s == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration: parse %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Noise modes accepted by NoiseConfig.Mode.
const (
	NoiseModeTable = "table"
	NoiseModeHash  = "hash"
)

// Config captures the tunable parameters needed to build and serve a world.
type Config struct {
	World   WorldConfig   `json:"world" yaml:"world"`
	Noise   NoiseConfig   `json:"noise" yaml:"noise"`
	Terrain TerrainConfig `json:"terrain" yaml:"terrain"`
	Picker  PickerConfig  `json:"picker" yaml:"picker"`
	Viewer  ViewerConfig  `json:"viewer" yaml:"viewer"`
	Export  ExportConfig  `json:"export" yaml:"export"`
}

type WorldConfig struct {
	Width int `json:"width" yaml:"width"` // columns along the first grid index
	Depth int `json:"depth" yaml:"depth"` // columns along the second grid index
}

type NoiseConfig struct {
	Seed       int64   `json:"seed" yaml:"seed"`
	RandomSeed bool    `json:"randomSeed" yaml:"randomSeed"` // pick a process-random seed at startup
	Scale      float64 `json:"scale" yaml:"scale"`
	Mode       string  `json:"mode" yaml:"mode"` // "table" or "hash"
}

type TerrainConfig struct {
	Step        float64 `json:"step" yaml:"step"`             // noise coordinate step per column
	Amplitude   float64 `json:"amplitude" yaml:"amplitude"`   // surface height multiplier
	FloorDepth  int     `json:"floorDepth" yaml:"floorDepth"` // lowest dirt layer, inclusive
	Octaves     int     `json:"octaves" yaml:"octaves"`       // 0 samples the field directly
	Smoothing   string  `json:"smoothing" yaml:"smoothing"`   // "value" or "simplex" when octaves > 0
	Persistence float64 `json:"persistence" yaml:"persistence"`
	Lacunarity  float64 `json:"lacunarity" yaml:"lacunarity"`
	Workers     int     `json:"workers" yaml:"workers"` // 0 selects GOMAXPROCS
}

// Smoothing selects how octaves are layered when terrain.octaves > 0.
const (
	SmoothingValue   = "value"   // value noise interpolated over the noise field lattice
	SmoothingSimplex = "simplex" // OpenSimplex noise seeded from the noise seed
)

type PickerConfig struct {
	MaxDistance float64 `json:"maxDistance" yaml:"maxDistance"`
}

type ViewerConfig struct {
	Listen       string   `json:"listen" yaml:"listen"` // empty disables the viewer server
	ReadTimeout  Duration `json:"readTimeout" yaml:"readTimeout"`
	WriteTimeout Duration `json:"writeTimeout" yaml:"writeTimeout"`
	MaxQueue     int      `json:"maxQueue" yaml:"maxQueue"` // outbound frames buffered per session
	Compress     bool     `json:"compress" yaml:"compress"` // zstd snapshot frames
}

type ExportConfig struct {
	PreviewPath string `json:"previewPath" yaml:"previewPath"`
	GLBPath     string `json:"glbPath" yaml:"glbPath"`
}

// Load reads configuration from a JSON or YAML file if provided. An empty path
// returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if isYAML(path) {
		if err := decodeYAML(data, cfg); err != nil {
			return nil, err
		}
	} else {
		if err := decodeJSON(data, cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// Decode parses a JSON or YAML document over the defaults and validates it.
func Decode(data []byte, format string) (*Config, error) {
	cfg := Default()
	var err error
	switch strings.ToLower(format) {
	case "yaml", "yml":
		err = decodeYAML(data, cfg)
	case "json", "":
		err = decodeJSON(data, cfg)
	default:
		return nil, fmt.Errorf("unknown config format %q", format)
	}
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func decodeJSON(data []byte, cfg *Config) error {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	if err := validateDocument(doc); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func decodeYAML(data []byte, cfg *Config) error {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	if doc != nil {
		if err := validateDocument(doc); err != nil {
			return fmt.Errorf("schema: %w", err)
		}
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func Default() *Config {
	return &Config{
		World: WorldConfig{
			Width: 50,
			Depth: 50,
		},
		Noise: NoiseConfig{
			Seed:       0,
			RandomSeed: true,
			Scale:      1.0,
			Mode:       NoiseModeTable,
		},
		Terrain: TerrainConfig{
			Step:        0.1,
			Amplitude:   10,
			FloorDepth:  -10,
			Octaves:     0,
			Smoothing:   SmoothingValue,
			Persistence: 0.5,
			Lacunarity:  2.0,
			Workers:     0,
		},
		Picker: PickerConfig{
			MaxDistance: 64,
		},
		Viewer: ViewerConfig{
			Listen:       "",
			ReadTimeout:  Duration(60 * time.Second),
			WriteTimeout: Duration(5 * time.Second),
			MaxQueue:     16,
			Compress:     true,
		},
		Export: ExportConfig{},
	}
}

func (c *Config) Validate() error {
	if c.World.Width <= 0 || c.World.Depth <= 0 {
		return errors.New("world dimensions must be positive")
	}
	if c.Noise.Scale == 0 {
		return errors.New("noise.scale must be non-zero")
	}
	if c.Noise.Mode != NoiseModeTable && c.Noise.Mode != NoiseModeHash {
		return fmt.Errorf("noise.mode must be %q or %q", NoiseModeTable, NoiseModeHash)
	}
	if c.Terrain.Step <= 0 {
		return errors.New("terrain.step must be positive")
	}
	if c.Terrain.Octaves < 0 {
		return errors.New("terrain.octaves cannot be negative")
	}
	if c.Terrain.Octaves > 0 && (c.Terrain.Persistence <= 0 || c.Terrain.Lacunarity <= 0) {
		return errors.New("terrain persistence and lacunarity must be positive")
	}
	switch c.Terrain.Smoothing {
	case "", SmoothingValue, SmoothingSimplex:
	default:
		return fmt.Errorf("terrain.smoothing %q is not one of %q, %q", c.Terrain.Smoothing, SmoothingValue, SmoothingSimplex)
	}
	if c.Terrain.Workers < 0 {
		return errors.New("terrain.workers cannot be negative")
	}
	if c.Picker.MaxDistance <= 0 {
		return errors.New("picker.maxDistance must be positive")
	}
	if c.Viewer.MaxQueue <= 0 {
		return errors.New("viewer.maxQueue must be positive")
	}
	return nil
}
