package scramble

import (
	"fmt"

	"lukechampine.com/blake3"

	"shroudvm.org/shroud/spec"
)

// Builder accumulates a plain program and produces its encoded form.
// Positions returned by Emit are stable, so forward jumps can be patched once
// their target is known.
type Builder struct {
	c     *Context
	seed  uint64
	plain []Decoded
	g     *generator
}

func (c *Context) NewBuilder(seed uint64) *Builder {
	c.EnsureInit(seed)
	h := blake3.New(32, nil)
	h.Write([]byte("shroud/decoys"))
	h.Write(le64(c.t.Key ^ seed))
	return &Builder{c: c, seed: seed, g: newGenerator(h.XOF())}
}

// Emit appends an instruction and returns its position.
func (b *Builder) Emit(op spec.Op, operand int64) int {
	b.plain = append(b.plain, Decoded{Op: op, Operand: operand})
	return len(b.plain) - 1
}

// EmitDecoys appends between 0 and max decoy instructions.
func (b *Builder) EmitDecoys(max int) {
	if max <= 0 {
		return
	}
	decoys := spec.AllDecoys()
	n := b.g.Intn(max + 1)
	for i := 0; i < n; i++ {
		b.Emit(decoys[b.g.Intn(len(decoys))], int64(b.g.Uint64()))
	}
}

// Patch replaces the operand of the instruction at pos.
func (b *Builder) Patch(pos int, operand int64) {
	b.plain[pos].Operand = operand
}

// Len is the position the next Emit will return.
func (b *Builder) Len() int {
	return len(b.plain)
}

// Program returns the encoded program.
func (b *Builder) Program() ([]Instruction, error) {
	prog := make([]Instruction, len(b.plain))
	for i, d := range b.plain {
		if !d.Op.IsValid() {
			return nil, fmt.Errorf("scramble: invalid op %d at %d", d.Op, i)
		}
		prog[i] = Plain(d.Op, d.Operand)
	}
	if err := b.c.EncodeProgram(prog, b.seed); err != nil {
		return nil, err
	}
	return prog, nil
}
