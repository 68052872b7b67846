// Package mtrand implements the 64-bit Mersenne Twister, the generator the
// source this core is ported from uses to pick new cluster positions
// (MersenneTwister.nextLong(), called from OAutoshardedStorageImpl). There
// is no ecosystem library for this specific generator among the retrieved
// examples - see DESIGN.md for why a hand port is the right call here
// rather than substituting a different PRNG.
package mtrand

const (
	nn        = 312
	mm        = 156
	matrixA   = 0xB5026F5AA96619E9
	upperMask = 0xFFFFFFFF80000000
	lowerMask = 0x7FFFFFFF
)

// Generator is a single MT19937-64 stream. It is not safe for concurrent
// use; callers that need a shared generator should wrap it the way
// *mtrand.SafeGenerator does.
type Generator struct {
	state [nn]uint64
	index int
}

// New seeds a generator the same way MersenneTwister's single-arg
// constructor does.
func New(seed uint64) *Generator {
	g := &Generator{}
	g.Seed(seed)
	return g
}

// Seed reinitializes the generator's state from a single 64-bit seed.
func (g *Generator) Seed(seed uint64) {
	g.state[0] = seed
	for i := 1; i < nn; i++ {
		g.state[i] = 6364136223846793005*(g.state[i-1]^(g.state[i-1]>>62)) + uint64(i)
	}
	g.index = nn
}

// NextUint64 draws the next 64-bit word from the stream, regenerating the
// state array every nn draws the way the reference algorithm does.
func (g *Generator) NextUint64() uint64 {
	if g.index >= nn {
		g.generate()
	}
	x := g.state[g.index]
	g.index++

	x ^= (x >> 29) & 0x5555555555555555
	x ^= (x << 17) & 0x71D67FFFEDA60000
	x ^= (x << 37) & 0xFFF7EEE000000000
	x ^= x >> 43
	return x
}

// NextInt64 reinterprets the next 64-bit word as a signed int64, matching
// java.util.Random-family nextLong()'s use of the raw bit pattern.
func (g *Generator) NextInt64() int64 {
	return int64(g.NextUint64())
}

func (g *Generator) generate() {
	var mag01 = [2]uint64{0, matrixA}
	for i := 0; i < nn-mm; i++ {
		x := (g.state[i] & upperMask) | (g.state[i+1] & lowerMask)
		g.state[i] = g.state[i+mm] ^ (x >> 1) ^ mag01[x&1]
	}
	for i := nn - mm; i < nn-1; i++ {
		x := (g.state[i] & upperMask) | (g.state[i+1] & lowerMask)
		g.state[i] = g.state[i+(mm-nn)] ^ (x >> 1) ^ mag01[x&1]
	}
	x := (g.state[nn-1] & upperMask) | (g.state[0] & lowerMask)
	g.state[nn-1] = g.state[mm-1] ^ (x >> 1) ^ mag01[x&1]
	g.index = 0
}
