package svm

import (
	"context"
	"unsafe"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
)

// JITStats counts the activity of the JIT cache.
type JITStats struct {
	// Hits counts calls served by an existing artifact.
	Hits uint64
	// Attempts counts compilations started.
	Attempts uint64
	Compiles uint64
	// Rejected counts programs marked permanently ineligible.
	Rejected uint64
	// Freed counts artifacts released by eviction or Reset.
	Freed uint64
}

// progKey identifies a program by the address of its first instruction.
type progKey struct {
	ptr  *scramble.Instruction
	n    int
	seed uint64
}

// countsPerArtifact sizes the call count and rejection tables relative to the artifact cache.
// A program whose count is evicted starts counting again from zero.
const countsPerArtifact = 4

type jitCache struct {
	threshold int
	counts    *simplelru.LRU[progKey, int]
	rejected  *simplelru.LRU[progKey, struct{}]
	arts      *simplelru.LRU[progKey, *Artifact]
	stats     JITStats
}

func newJITCache(threshold, size int) *jitCache {
	jc := &jitCache{
		threshold: threshold,
		counts:    mustLRU[progKey, int](countsPerArtifact*size, nil),
		rejected:  mustLRU[progKey, struct{}](countsPerArtifact*size, nil),
	}
	jc.arts = mustLRU(size, func(_ progKey, a *Artifact) {
		a.Free()
		jc.stats.Freed++
	})
	return jc
}

// hot counts a call and reports whether the program should now be compiled.
func (jc *jitCache) hot(key progKey) bool {
	if jc.rejected.Contains(key) {
		return false
	}
	n, _ := jc.counts.Get(key)
	n++
	jc.counts.Add(key, n)
	return n > jc.threshold
}

func (jc *jitCache) clear() int {
	n := jc.arts.Len()
	jc.arts.Purge()
	jc.counts.Purge()
	jc.rejected.Purge()
	return n
}

// compiled is one instruction of an Artifact.
type compiled func(m *Machine, f *frame) bool

// Artifact is a program decoded once and compiled to a sequence of closures.
// It is owned by the JIT cache and released with Free.
type Artifact struct {
	code []compiled
	ops  []spec.Op
}

// Len returns the number of instructions, or 0 once freed.
func (a *Artifact) Len() int {
	if a == nil {
		return 0
	}
	return len(a.code)
}

// Free releases the compiled code. It is safe to call more than once, and on nil.
func (a *Artifact) Free() {
	if a == nil {
		return
	}
	a.code = nil
	a.ops = nil
}

// Compile builds an Artifact from a decoded program.
// If the program contains an op outside the JIT subset, that op is returned with ok false.
func Compile(prog []scramble.Decoded) (_ *Artifact, bad spec.Op, ok bool) {
	code := make([]compiled, len(prog))
	ops := make([]spec.Op, len(prog))
	for i, d := range prog {
		if !d.Op.IsValid() || !d.Op.IsJITable() {
			return nil, d.Op, false
		}
		code[i] = compileOp(d.Op, d.Operand)
		ops[i] = d.Op
	}
	return &Artifact{code: code, ops: ops}, 0, true
}

func compileOp(op spec.Op, arg Word) compiled {
	if fn := binaryFns[op]; fn != nil {
		return func(_ *Machine, f *frame) bool {
			if f.sp >= 2 {
				f.stack[f.sp-2] = fn(f.stack[f.sp-2], f.stack[f.sp-1])
				f.sp--
			}
			return true
		}
	}
	if fn := unaryFns[op]; fn != nil {
		return func(_ *Machine, f *frame) bool {
			if f.sp >= 1 {
				f.stack[f.sp-1] = fn(f.stack[f.sp-1])
			}
			return true
		}
	}
	if fn := compareFns[op]; fn != nil {
		return func(_ *Machine, f *frame) bool {
			if f.sp >= 2 {
				f.sp -= 2
				if fn(f.stack[f.sp], f.stack[f.sp+1]) {
					f.jump(arg)
				}
			}
			return true
		}
	}
	switch op {
	case spec.PUSH, spec.LDC, spec.LDC_W, spec.LDC2_W:
		return func(_ *Machine, f *frame) bool {
			f.pushConst(arg)
			return true
		}
	case spec.LOAD, spec.LLOAD, spec.FLOAD, spec.DLOAD, spec.ALOAD:
		return func(_ *Machine, f *frame) bool {
			f.load(arg)
			return true
		}
	case spec.STORE, spec.LSTORE, spec.FSTORE, spec.DSTORE, spec.ASTORE:
		return func(_ *Machine, f *frame) bool {
			f.store(arg)
			return true
		}
	case spec.IINC:
		return func(_ *Machine, f *frame) bool {
			f.iinc(arg)
			return true
		}
	case spec.GOTO, spec.GOTO_W:
		return func(_ *Machine, f *frame) bool {
			f.jump(arg)
			return true
		}
	case spec.NOP, spec.JUNK1, spec.JUNK2:
		return func(*Machine, *frame) bool { return true }
	case spec.HALT:
		return func(_ *Machine, f *frame) bool { return f.stop(HaltOp) }
	}
	return func(m *Machine, f *frame) bool {
		return m.step(f, op, arg)
	}
}

// ExecuteJIT is call compatible with Execute.
// Once a program has been called more than the hot threshold it is decoded once and later
// calls replay the compiled form. Programs containing host object, field, invoke or exception
// instructions are never compiled.
//
// Programs are identified by the address of their first instruction, their length and the seed.
// A program must not be modified after it has been passed to ExecuteJIT.
func (m *Machine) ExecuteJIT(ctx context.Context, prog []scramble.Instruction, locals []Word, seed uint64, tabs *Tables) Word {
	if !m.opts.JIT || len(prog) == 0 {
		return m.Execute(ctx, prog, locals, seed, tabs)
	}
	m.sc.EnsureInit(seed)
	key := progKey{ptr: unsafe.SliceData(prog), n: len(prog), seed: seed}
	if a, ok := m.jit.arts.Get(key); ok {
		m.jit.stats.Hits++
		return m.runArtifact(ctx, a, locals, tabs)
	}
	if m.jit.hot(key) {
		if a := m.compile(ctx, key, prog, seed); a != nil {
			return m.runArtifact(ctx, a, locals, tabs)
		}
	}
	return m.Execute(ctx, prog, locals, seed, tabs)
}

func (m *Machine) compile(ctx context.Context, key progKey, prog []scramble.Instruction, seed uint64) *Artifact {
	m.jit.stats.Attempts++
	m.jit.counts.Remove(key)
	a, bad, ok := Compile(m.sc.DecodeProgram(prog, seed))
	if !ok {
		m.jit.rejected.Add(key, struct{}{})
		m.jit.stats.Rejected++
		logctx.Debug(ctx, "program not compilable", zap.Int("len", len(prog)), zap.Stringer("op", bad))
		return nil
	}
	if m.jit.arts.Add(key, a) {
		logctx.Debug(ctx, "evicted compiled program")
	}
	m.jit.stats.Compiles++
	logctx.Debug(ctx, "compiled program", zap.Int("len", len(prog)))
	return a
}

func (m *Machine) runArtifact(ctx context.Context, a *Artifact, locals []Word, tabs *Tables) Word {
	code := a.code
	f := m.enter(ctx, locals, tabs, len(code))
	defer m.leave(f)
	m.stats.JITCalls++
	if m.host.ExceptionCheck() {
		f.stop(HaltPending)
		return 0
	}
	for f.pc < len(code) {
		pc := f.pc
		c := code[pc]
		f.pc++
		if m.trace != nil {
			m.trace.PushBack(TraceEntry{PC: pc, Op: a.ops[pc], SP: f.sp})
		}
		if !c(m, f) {
			if f.halt == HaltHost {
				logctx.Debug(ctx, "halted on host exception", zap.Int("pc", pc))
			}
			return f.result()
		}
	}
	f.stop(HaltEnd)
	return f.result()
}

// JITStats returns the JIT cache counters.
func (m *Machine) JITStats() JITStats {
	return m.jit.stats
}
