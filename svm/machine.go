// package svm implements the shroud virtual machine: an interpreter for scrambled stack programs,
// the bridge to the managed runtime which hosts it, and a cache of pre-decoded hot programs.
package svm

import (
	"context"
	"fmt"
	"io"
	"os"

	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"shroudvm.org/shroud/internal/ringbuf"
	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
)

// Halt is the reason a call stopped.
type Halt uint8

const (
	HaltNone Halt = iota
	// HaltEnd means the program counter ran off the end of the program.
	HaltEnd
	// HaltOp means a HALT instruction was executed.
	HaltOp
	// HaltInvalid means an instruction could not be decoded or referenced a missing table entry.
	HaltInvalid
	// HaltHost means an instruction raised or caused a host exception outside of a try region.
	HaltHost
	// HaltPending means an exception was already pending when a host operation was about to start.
	HaltPending
)

func (h Halt) String() string {
	switch h {
	case HaltNone:
		return "none"
	case HaltEnd:
		return "end"
	case HaltOp:
		return "halt"
	case HaltInvalid:
		return "invalid"
	case HaltHost:
		return "host"
	case HaltPending:
		return "pending"
	default:
		return fmt.Sprintf("Halt(%d)", uint8(h))
	}
}

type Options struct {
	Scramble scramble.Config
	// Output receives the values written by PRINT. Defaults to os.Stdout.
	Output io.Writer

	ClassCacheSize     int
	MemberCacheSize    int
	SignatureCacheSize int

	// JIT enables the hot program cache used by ExecuteJIT.
	JIT bool
	// HotThreshold is the number of calls after which a program is compiled.
	HotThreshold int
	JITCacheSize int

	// TraceSize is the number of dispatches remembered by the tracer. 0 disables tracing.
	// Interpreted and compiled calls are both traced.
	TraceSize int
}

func DefaultOptions() Options {
	return Options{
		ClassCacheSize:     1024,
		MemberCacheSize:    4096,
		SignatureCacheSize: 512,
		JIT:                true,
		HotThreshold:       10,
		JITCacheSize:       256,
	}
}

// Stats counts calls made to a Machine.
type Stats struct {
	Calls     uint64
	JITCalls  uint64
	ArrayPins uint64
}

// Machine executes programs for a single goroutine.
// It owns the encoding context, the resolution caches and the JIT cache, none of which are
// safe for concurrent use. Host callbacks may re-enter the Machine on the same goroutine.
type Machine struct {
	host Host
	opts Options
	sc   *scramble.Context
	out  io.Writer

	res    *resolver
	jit    *jitCache
	frames []*frame
	trace  *ringbuf.RingBuf[TraceEntry]

	stats    Stats
	lastHalt Halt
}

func New(host Host, opts Options) *Machine {
	def := DefaultOptions()
	if opts.ClassCacheSize <= 0 {
		opts.ClassCacheSize = def.ClassCacheSize
	}
	if opts.MemberCacheSize <= 0 {
		opts.MemberCacheSize = def.MemberCacheSize
	}
	if opts.SignatureCacheSize <= 0 {
		opts.SignatureCacheSize = def.SignatureCacheSize
	}
	if opts.HotThreshold <= 0 {
		opts.HotThreshold = def.HotThreshold
	}
	if opts.JITCacheSize <= 0 {
		opts.JITCacheSize = def.JITCacheSize
	}
	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	m := &Machine{
		host: host,
		opts: opts,
		sc:   scramble.New(opts.Scramble),
		out:  out,
		res:  newResolver(host, opts.ClassCacheSize, opts.MemberCacheSize, opts.SignatureCacheSize),
	}
	m.jit = newJITCache(opts.HotThreshold, opts.JITCacheSize)
	if opts.TraceSize > 0 {
		rb := ringbuf.New[TraceEntry](opts.TraceSize)
		m.trace = &rb
	}
	return m
}

// Scramble returns the encoding context used to decode programs.
// Programs must be encoded with this context, or one with the same secret state.
func (m *Machine) Scramble() *scramble.Context {
	return m.sc
}

// EncodeProgram encodes a plain program in place for execution by this Machine.
func (m *Machine) EncodeProgram(prog []scramble.Instruction, seed uint64) error {
	return m.sc.EncodeProgram(prog, seed)
}

// Execute runs prog and returns the word on top of the stack when it stops, or 0 if the stack is empty.
// seed must be the seed prog was encoded with. locals may be nil. tabs may be nil if prog
// does not reference any table.
//
// Errors are never returned. Host-domain errors are left pending on the Host and the
// reason for stopping is available from LastHalt.
func (m *Machine) Execute(ctx context.Context, prog []scramble.Instruction, locals []Word, seed uint64, tabs *Tables) Word {
	m.sc.EnsureInit(seed)
	f := m.enter(ctx, locals, tabs, len(prog))
	defer m.leave(f)
	if m.host.ExceptionCheck() {
		f.stop(HaltPending)
		return 0
	}
	f.stream.Reset(m.sc.Key(), seed)
	m.interpret(f, prog)
	return f.result()
}

func (m *Machine) interpret(f *frame, prog []scramble.Instruction) {
	for {
		if f.pc >= len(prog) {
			f.stop(HaltEnd)
			return
		}
		pc := f.pc
		op, arg := m.sc.Decode(prog[pc], f.stream.At(pc))
		f.pc++
		if m.trace != nil {
			m.trace.PushBack(TraceEntry{PC: pc, Op: op, SP: f.sp})
		}
		if !op.IsValid() {
			f.stop(HaltInvalid)
			return
		}
		if !m.step(f, op, arg) {
			if f.halt == HaltHost {
				logctx.Debug(f.ctx, "halted on host exception", zap.Stringer("op", op), zap.Int("pc", pc))
			}
			return
		}
	}
}

func (m *Machine) enter(ctx context.Context, locals []Word, tabs *Tables, n int) *frame {
	if tabs == nil {
		tabs = &Tables{}
	}
	var f *frame
	if l := len(m.frames); l > 0 {
		f = m.frames[l-1]
		m.frames = m.frames[:l-1]
	} else {
		f = new(frame)
	}
	f.reset(ctx, locals, tabs, n)
	m.stats.Calls++
	return f
}

func (m *Machine) leave(f *frame) {
	f.pins.release(m.host)
	m.stats.ArrayPins += f.pins.count
	f.pins.count = 0
	m.lastHalt = f.halt
	f.ctx = nil
	f.locals = nil
	f.tabs = nil
	m.frames = append(m.frames, f)
}

// LastHalt returns the reason the most recent call stopped.
func (m *Machine) LastHalt() Halt {
	return m.lastHalt
}

func (m *Machine) Stats() Stats {
	return m.stats
}

// CacheStats returns the resolution cache counters.
func (m *Machine) CacheStats() CacheStats {
	return m.res.stats
}

// Reset releases every handle held by the resolution caches and frees every JIT artifact.
// It must be called before the handles' owning context becomes invalid.
func (m *Machine) Reset(ctx context.Context) {
	entries := m.res.reset()
	artifacts := m.jit.clear()
	logctx.Info(ctx, "machine reset", zap.Int("cache_entries", entries), zap.Int("artifacts", artifacts))
}

// Arith runs op on lhs and rhs in a freshly encoded program padded with decoys.
func (m *Machine) Arith(ctx context.Context, op spec.Op, lhs, rhs Word, seed uint64) Word {
	b := m.sc.NewBuilder(seed)
	b.EmitDecoys(3)
	b.Emit(spec.PUSH, lhs)
	b.EmitDecoys(3)
	b.Emit(spec.PUSH, rhs)
	b.EmitDecoys(3)
	b.Emit(op, 0)
	b.EmitDecoys(3)
	b.Emit(spec.HALT, 0)
	return m.runBuilt(ctx, b, seed)
}

// Unary runs op on v in a freshly encoded program padded with decoys.
func (m *Machine) Unary(ctx context.Context, op spec.Op, v Word, seed uint64) Word {
	b := m.sc.NewBuilder(seed)
	b.Emit(spec.PUSH, v)
	b.EmitDecoys(2)
	b.Emit(op, 0)
	b.EmitDecoys(2)
	b.Emit(spec.HALT, 0)
	return m.runBuilt(ctx, b, seed)
}

func (m *Machine) runBuilt(ctx context.Context, b *scramble.Builder, seed uint64) Word {
	prog, err := b.Program()
	if err != nil {
		logctx.Error(ctx, "building program", zap.Error(err))
		m.lastHalt = HaltInvalid
		return 0
	}
	return m.Execute(ctx, prog, nil, seed, nil)
}
