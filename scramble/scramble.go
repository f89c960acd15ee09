// package scramble implements the two-layer opcode substitution and the operand mask
// which hide the instruction stream of a program from static inspection.
//
// A Context owns the secret KEY and the permutation tables.
// It is not safe for concurrent use; give each goroutine its own Context.
package scramble

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"

	"lukechampine.com/blake3"

	"shroudvm.org/shroud/spec"
)

// Golden64 is the operand diffusion multiplier.
const Golden64 uint64 = 0x9E3779B97F4A7C15

// Instruction is one slot of a program.
// A Nonce of 0 marks an instruction which is not scrambled.
type Instruction struct {
	Op      uint8
	Operand int64
	Nonce   uint64
}

// Plain returns an unscrambled instruction.
func Plain(op spec.Op, operand int64) Instruction {
	return Instruction{Op: uint8(op), Operand: operand}
}

// Decoded is an instruction after the mask has been removed.
type Decoded struct {
	Op      spec.Op
	Operand int64
}

// Config controls where a Context gets its secret material.
type Config struct {
	// Secret, if set, replaces the entropy source so that the same Secret and seed
	// always produce the same KEY and permutation tables.
	Secret []byte
	// Entropy is read when Secret is empty. Defaults to crypto/rand.Reader.
	Entropy io.Reader
}

// Tables is the complete secret state of a Context.
// It is a plain value; copying it is a snapshot.
type Tables struct {
	Key    uint64
	Layer1 [spec.OpCount]uint8
	Layer2 [spec.OpCount]uint8
	Inv1   [spec.OpCount]uint8
	Inv2   [spec.OpCount]uint8
}

type Context struct {
	cfg         Config
	t           Tables
	initialized bool
}

func New(cfg Config) *Context {
	if cfg.Entropy == nil {
		cfg.Entropy = rand.Reader
	}
	return &Context{cfg: cfg}
}

// Init derives a new KEY and new permutation tables.
// seed is mixed into the derivation.
func (c *Context) Init(seed uint64) {
	h := blake3.New(32, nil)
	if len(c.cfg.Secret) > 0 {
		h.Write(c.cfg.Secret)
	} else {
		var ent [32]byte
		if _, err := io.ReadFull(c.cfg.Entropy, ent[:]); err != nil {
			panic(fmt.Errorf("scramble: reading entropy: %w", err))
		}
		h.Write(ent[:])
	}
	h.Write(le64(seed))
	g := newGenerator(h.XOF())

	var t Tables
	for t.Key == 0 {
		t.Key = g.Uint64()
	}
	g.perm(t.Layer1[:])
	g.perm(t.Layer2[:])
	for i := range t.Layer1 {
		t.Inv1[t.Layer1[i]] = uint8(i)
		t.Inv2[t.Layer2[i]] = uint8(i)
	}
	c.t = t
	c.initialized = true
}

// EnsureInit calls Init the first time it is called.
func (c *Context) EnsureInit(seed uint64) {
	if !c.initialized {
		c.Init(seed)
	}
}

func (c *Context) Initialized() bool {
	return c.initialized
}

// Key returns the secret KEY. It is 0 until the Context is initialized.
func (c *Context) Key() uint64 {
	return c.t.Key
}

// Fingerprint identifies the secret state without revealing it.
func (c *Context) Fingerprint() uint64 {
	h := blake3.New(32, nil)
	h.Write([]byte("shroud/fingerprint"))
	h.Write(le64(c.t.Key))
	h.Write(c.t.Layer1[:])
	h.Write(c.t.Layer2[:])
	return binary.LittleEndian.Uint64(h.Sum(nil))
}

// Snapshot returns a copy of the secret state.
func (c *Context) Snapshot() Tables {
	return c.t
}

// Restore replaces the secret state with one taken by Snapshot.
func (c *Context) Restore(t Tables) {
	c.t = t
	c.initialized = t.Key != 0
}

// Step advances the state register by one instruction position.
func Step(state, key uint64) uint64 {
	return (state + key) ^ (key >> 3)
}

// Encode scrambles op and operand under the state for its position and a nonce.
// op must be valid.
func (c *Context) Encode(op spec.Op, operand int64, state, nonce uint64) Instruction {
	mapped := c.t.Layer2[c.t.Layer1[op]]
	mix := state ^ nonce
	return Instruction{
		Op:      mapped ^ uint8(mix),
		Operand: operand ^ int64(mix*Golden64),
		Nonce:   nonce,
	}
}

// Decode removes the scrambling from in.
// If the opcode does not map back into the instruction set, the returned Op is spec.OpCount.
func (c *Context) Decode(in Instruction, state uint64) (spec.Op, int64) {
	if in.Nonce == 0 {
		return spec.Op(in.Op), in.Operand
	}
	mix := state ^ in.Nonce
	x := in.Op ^ uint8(mix)
	operand := in.Operand ^ int64(mix*Golden64)
	if x >= uint8(spec.OpCount) {
		return spec.OpCount, operand
	}
	return spec.Op(c.t.Inv1[c.t.Inv2[x]]), operand
}

// EncodeProgram scrambles a program of plain instructions in place.
// The program is left untouched if it contains an invalid op.
func (c *Context) EncodeProgram(prog []Instruction, seed uint64) error {
	for i, in := range prog {
		if !spec.Op(in.Op).IsValid() {
			return fmt.Errorf("scramble: invalid op %d at %d", in.Op, i)
		}
	}
	c.EnsureInit(seed)
	key := c.t.Key
	state := key ^ seed
	g := c.nonceGenerator(seed)
	for i := range prog {
		state = Step(state, key)
		prog[i] = c.Encode(spec.Op(prog[i].Op), prog[i].Operand, state, g.nonce(state))
	}
	return nil
}

// DecodeProgram returns the plain form of an encoded program.
func (c *Context) DecodeProgram(prog []Instruction, seed uint64) []Decoded {
	c.EnsureInit(seed)
	out := make([]Decoded, len(prog))
	var s Stream
	s.Reset(c.t.Key, seed)
	for i := range prog {
		op, operand := c.Decode(prog[i], s.At(i))
		out[i] = Decoded{Op: op, Operand: operand}
	}
	return out
}

// Stream produces the state for each instruction position of one call.
// States are computed once, in increasing position order, and remembered so that
// jumps in either direction decode with the same state the encoder used.
type Stream struct {
	key    uint64
	cur    uint64
	states []uint64
}

// Stream returns a Stream for seed under the current KEY.
func (c *Context) Stream(seed uint64) *Stream {
	s := &Stream{}
	s.Reset(c.t.Key, seed)
	return s
}

// Reset rewinds the Stream, keeping its buffer.
func (s *Stream) Reset(key, seed uint64) {
	s.key = key
	s.cur = key ^ seed
	s.states = s.states[:0]
}

// At returns the state for position pc.
func (s *Stream) At(pc int) uint64 {
	for len(s.states) <= pc {
		s.cur = Step(s.cur, s.key)
		s.states = append(s.states, s.cur)
	}
	return s.states[pc]
}

// Key returns the KEY the stream was reset with.
func (s *Stream) Key() uint64 {
	return s.key
}

func (c *Context) nonceGenerator(seed uint64) *generator {
	h := blake3.New(32, nil)
	h.Write([]byte("shroud/nonce"))
	h.Write(le64(c.t.Key ^ (seed << 1)))
	return newGenerator(h.XOF())
}

func le64(x uint64) []byte {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], x)
	return buf[:]
}
