package scramble

import (
	"encoding/binary"
	"io"
)

// generator is a deterministic stream of pseudo-random numbers read from an
// extendable output function.
type generator struct {
	r   io.Reader
	buf [64]byte
	pos int
}

func newGenerator(r io.Reader) *generator {
	return &generator{r: r, pos: len(generator{}.buf)}
}

func (g *generator) fill() {
	if _, err := io.ReadFull(g.r, g.buf[:]); err != nil {
		panic(err)
	}
	g.pos = 0
}

func (g *generator) Uint64() uint64 {
	if g.pos+8 > len(g.buf) {
		g.fill()
	}
	x := binary.LittleEndian.Uint64(g.buf[g.pos:])
	g.pos += 8
	return x
}

// Intn returns a uniform value in [0, n). n must be > 0.
func (g *generator) Intn(n int) int {
	bound := uint64(n)
	limit := ^uint64(0) - (^uint64(0) % bound)
	for {
		x := g.Uint64()
		if x < limit {
			return int(x % bound)
		}
	}
}

// perm fills p with a uniformly shuffled identity permutation.
func (g *generator) perm(p []uint8) {
	for i := range p {
		p[i] = uint8(i)
	}
	for i := len(p) - 1; i > 0; i-- {
		j := g.Intn(i + 1)
		p[i], p[j] = p[j], p[i]
	}
}

// nonce returns a non-zero nonce for the instruction at state.
func (g *generator) nonce(state uint64) uint64 {
	for {
		if n := g.Uint64() ^ state; n != 0 {
			return n
		}
	}
}
