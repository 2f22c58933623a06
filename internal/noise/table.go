package noise

const (
	// TableSize is the edge length of the lookup table lattice.
	TableSize = 251
	// TableChannels is the number of independent values stored per lattice point.
	TableChannels = 5

	tableLen = TableSize * TableSize * TableChannels

	lcgMultiplier = 6364136223846793005
	lcgIncrement  = 1442695040888963407
	tableSpan     = 1_000_000
)

// Table is a dense, immutable 251×251×5 grid of values in [-1, 1] stored in a
// single contiguous array.
type Table struct {
	values [tableLen]float64
}

// NewTable fills a table from a 64-bit linear congruential sequence seeded with
// seed. The sequence is fully specified here so tables match on every
// platform.
func NewTable(seed int64) *Table {
	t := &Table{}
	rng := lcg{state: uint64(seed)}
	for idx := range t.values {
		v := rng.next() % (2*tableSpan + 1)
		t.values[idx] = (float64(v) - tableSpan) / tableSpan
	}
	return t
}

func tableIndex(i, j, channel int) int {
	return (i*TableSize+j)*TableChannels + channel
}

// At returns the value stored at lattice point (i, j) on channel. Indices must
// already be wrapped into range.
func (t *Table) At(i, j, channel int) float64 {
	return t.values[tableIndex(i, j, channel)]
}

type lcg struct {
	state uint64
}

// next advances the generator and returns its upper 31 bits.
func (g *lcg) next() uint64 {
	g.state = g.state*lcgMultiplier + lcgIncrement
	return g.state >> 33
}
