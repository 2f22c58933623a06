// Package noise provides the seeded value source that shapes terrain.
//
// A Field answers Query(x, y, channel) with a value in [-1, 1]. Two sources
// back it: a precomputed 251×251×5 lookup table and a pure 32-bit integer
// hash. Both are fixed at construction, so a Field may be shared by any number
// of readers.
package noise

import (
	"fmt"
	"math"
	"math/bits"
)

// Mode selects which source backs Field.Query.
type Mode uint8

const (
	ModeTable Mode = iota
	ModeHash
)

func (m Mode) String() string {
	switch m {
	case ModeTable:
		return "table"
	case ModeHash:
		return "hash"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode maps a configuration string to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "table", "":
		return ModeTable, nil
	case "hash":
		return ModeHash, nil
	default:
		return 0, fmt.Errorf("unknown noise mode %q", s)
	}
}

// Sampler is anything that maps a coordinate and channel to a value in [-1, 1].
type Sampler interface {
	Query(x, y float64, channel int) float64
}

const (
	// coordinateOffset keeps realistic coordinates positive before flooring.
	coordinateOffset = 25100
	hashDenominator  = 1 << 31
)

// Field is a deterministic noise source. The sub-seeds and table are written
// once by New; SetScale and SetMode only affect later queries and must not
// race with readers.
type Field struct {
	seed                       int64
	seedA, seedB, seedC, seedD int32
	table                      *Table
	scale                      float64
	mode                       Mode
}

// Option configures a Field during New.
type Option func(*Field)

// WithMode selects the initial mode. The lookup table is only built when the
// initial mode is ModeTable.
func WithMode(mode Mode) Option {
	return func(f *Field) {
		f.mode = mode
	}
}

// WithScale sets the coordinate multiplier applied before sampling.
func WithScale(scale float64) Option {
	return func(f *Field) {
		f.scale = scale
	}
}

// New derives the sub-seeds from seed and, in table mode, fills the lookup
// table.
func New(seed int64, opts ...Option) *Field {
	f := &Field{
		seed:  seed,
		scale: 1.0,
		mode:  ModeTable,
	}
	for _, opt := range opts {
		opt(f)
	}

	// 32-bit wraparound is part of the contract.
	base := (40000 + int32(seed)%100000) * 4000
	f.seedA = base + 43876431
	f.seedB = base + 81256937
	f.seedC = base + 124532173
	f.seedD = base + 159683467

	if f.mode == ModeTable {
		f.table = NewTable(seed)
	}
	return f
}

func (f *Field) Seed() int64 {
	return f.seed
}

func (f *Field) Scale() float64 {
	return f.scale
}

func (f *Field) Mode() Mode {
	return f.mode
}

// SubSeeds returns seedA..seedD.
func (f *Field) SubSeeds() [4]int32 {
	return [4]int32{f.seedA, f.seedB, f.seedC, f.seedD}
}

func (f *Field) SetScale(scale float64) {
	f.scale = scale
}

// SetMode switches the backing source. Switching to ModeTable on a field that
// was built without a table is a programmer error and panics.
func (f *Field) SetMode(mode Mode) {
	if mode == ModeTable && f.table == nil {
		panic("noise: table mode requested but the lookup table was never built")
	}
	f.mode = mode
}

// Query samples the field. Any input is accepted: coordinates wrap around the
// table or truncate to 32 bits for the hash. In table mode the channel wraps
// modulo the table depth.
func (f *Field) Query(x, y float64, channel int) float64 {
	x = x*f.scale + coordinateOffset
	y = y*f.scale + coordinateOffset
	ix := math.Floor(x)
	iy := math.Floor(y)
	if f.mode == ModeTable {
		return f.table.At(wrapFloat(ix, TableSize), wrapFloat(iy, TableSize), wrapChannel(channel))
	}
	return f.HashF(truncate32(ix), truncate32(iy), channel)
}

// HashF maps Hash onto [-1, 1).
func (f *Field) HashF(i, j int32, channel int) float64 {
	return float64(f.Hash(i, j, channel)) / hashDenominator
}

// Hash mixes a lattice point into a signed 32-bit value. Three rounds of
// xor/add/rotate against the sub-seeds; rotation counts depend on the channel
// and are taken modulo 32, so any channel is accepted and channels 16 apart
// coincide.
func (f *Field) Hash(i, j int32, channel int) int32 {
	a := uint32(i)
	b := uint32(j)
	sa, sb := uint32(f.seedA), uint32(f.seedB)
	sc, sd := uint32(f.seedC), uint32(f.seedD)
	ra := 25 - 2*channel
	rb := 3 + 2*channel
	for r := 0; r < 3; r++ {
		a = bits.RotateLeft32((a^sa)+(b^sc), ra)
		b = bits.RotateLeft32((a^sb)+(b^sd), rb)
	}
	return int32(a ^ b)
}

func wrapChannel(channel int) int {
	channel %= TableChannels
	if channel < 0 {
		channel += TableChannels
	}
	return channel
}

func wrapFloat(v float64, n int) int {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	m := math.Mod(v, float64(n))
	if m < 0 {
		m += float64(n)
	}
	idx := int(m)
	if idx >= n {
		idx = 0
	}
	return idx
}

func truncate32(v float64) int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	if v >= -(1<<63) && v < 1<<63 {
		return int32(int64(v))
	}
	m := math.Mod(v, 1<<32)
	if m < 0 {
		m += 1 << 32
	}
	return int32(uint32(uint64(m)))
}
