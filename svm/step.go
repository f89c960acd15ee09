package svm

import (
	"fmt"

	"shroudvm.org/shroud/spec"
)

// step executes one decoded instruction. It returns false when the call must stop.
// The program counter has already been advanced, so instructions may override it.
func (m *Machine) step(f *frame, op spec.Op, arg Word) bool {
	if fn := binaryFns[op]; fn != nil {
		if f.has(2) {
			f.stack[f.sp-2] = fn(f.stack[f.sp-2], f.stack[f.sp-1])
			f.sp--
		}
		return true
	}
	if fn := unaryFns[op]; fn != nil {
		if f.has(1) {
			f.stack[f.sp-1] = fn(f.stack[f.sp-1])
		}
		return true
	}
	if fn := compareFns[op]; fn != nil {
		if f.has(2) {
			b, a := f.pop(), f.pop()
			if fn(a, b) {
				f.jump(arg)
			}
		}
		return true
	}
	if fn := testFns[op]; fn != nil {
		if f.has(1) && fn(f.pop()) {
			f.jump(arg)
		}
		return true
	}

	switch op {
	// constants
	case spec.PUSH, spec.LDC, spec.LDC_W, spec.LDC2_W:
		f.pushConst(arg)
	case spec.FCONST_0, spec.DCONST_0, spec.LCONST_0, spec.ACONST_NULL:
		f.pushConst(0)
	case spec.FCONST_1:
		f.pushConst(f32w(1))
	case spec.FCONST_2:
		f.pushConst(f32w(2))
	case spec.DCONST_1:
		f.pushConst(f64w(1))
	case spec.LCONST_1:
		f.pushConst(1)

	// control
	case spec.NOP, spec.JUNK1, spec.JUNK2:
	case spec.HALT:
		return f.stop(HaltOp)
	case spec.PRINT:
		if f.has(1) {
			fmt.Fprintln(m.out, f.pop())
		}
	case spec.GOTO, spec.GOTO_W:
		f.jump(arg)
	case spec.TABLESWITCH:
		ts, ok := f.tabs.tableSwitch(arg)
		if !ok {
			return f.stop(HaltInvalid)
		}
		if f.has(1) {
			f.jump(Word(ts.Target(int32(f.pop()))))
		}
	case spec.LOOKUPSWITCH:
		ls, ok := f.tabs.lookupSwitch(arg)
		if !ok {
			return f.stop(HaltInvalid)
		}
		if f.has(1) {
			f.jump(Word(ls.Target(int32(f.pop()))))
		}

	// division
	case spec.DIV, spec.LDIV, spec.REM, spec.LREM, spec.IDIV, spec.IREM:
		return m.divide(f, op)

	// locals
	case spec.LOAD, spec.LLOAD, spec.FLOAD, spec.DLOAD, spec.ALOAD:
		f.load(arg)
	case spec.STORE, spec.LSTORE, spec.FSTORE, spec.DSTORE, spec.ASTORE:
		f.store(arg)
	case spec.IINC:
		f.iinc(arg)

	// stack
	case spec.SWAP:
		f.swap()
	case spec.DUP:
		f.dup()
	case spec.POP:
		if f.has(1) {
			f.sp--
		}
	case spec.POP2:
		if f.has(2) {
			f.sp -= 2
		}
	case spec.DUP_X1:
		f.dupX1()
	case spec.DUP_X2:
		f.dupX2()
	case spec.DUP2:
		f.dup2()
	case spec.DUP2_X1:
		f.dup2X1()
	case spec.DUP2_X2:
		f.dup2X2()

	// arrays
	case spec.ARRAYLENGTH:
		return m.arrayLength(f)
	case spec.IALOAD, spec.BALOAD, spec.CALOAD, spec.SALOAD, spec.LALOAD, spec.FALOAD, spec.DALOAD, spec.AALOAD:
		return m.arrayLoad(f, op)
	case spec.IASTORE, spec.BASTORE, spec.CASTORE, spec.SASTORE, spec.LASTORE, spec.FASTORE, spec.DASTORE, spec.AASTORE:
		return m.arrayStore(f, op)

	// objects
	case spec.NEW:
		return m.newObject(f, arg)
	case spec.ANEWARRAY:
		return m.newRefArray(f, arg)
	case spec.NEWARRAY:
		return m.newPrimArray(f, arg)
	case spec.MULTIANEWARRAY:
		return m.newMultiArray(f, arg)
	case spec.CHECKCAST:
		return m.checkCast(f, arg)
	case spec.INSTANCEOF:
		return m.instanceOf(f, arg)
	case spec.MONITORENTER, spec.MONITOREXIT:
		return m.monitor(f, op)

	// fields
	case spec.GETSTATIC:
		return m.getStatic(f, arg)
	case spec.PUTSTATIC:
		return m.putStatic(f, arg)
	case spec.GETFIELD:
		return m.getField(f, arg)
	case spec.PUTFIELD:
		return m.putField(f, arg)

	// invocation
	case spec.INVOKESTATIC, spec.INVOKEVIRTUAL, spec.INVOKESPECIAL, spec.INVOKEINTERFACE, spec.INVOKEDYNAMIC:
		return m.invoke(f, op, arg)

	// exceptions
	case spec.ATHROW:
		return m.athrow(f)
	case spec.TRY_START:
		f.try++
		f.jump(arg)
	case spec.CATCH_HANDLER, spec.FINALLY_HANDLER:
		if f.try > 0 {
			f.try--
		}
		f.jump(arg)
	case spec.EXCEPTION_CHECK:
		if m.host.ExceptionCheck() {
			ex := m.host.PendingException()
			m.host.ExceptionClear()
			f.pushConst(Word(ex))
			f.jump(arg)
		}
	case spec.EXCEPTION_CLEAR:
		m.host.ExceptionClear()

	default:
		return f.stop(HaltInvalid)
	}
	return true
}

// divide implements the integer divisions, which raise ArithmeticException on a zero divisor.
// Outside of a try region the operands are left on the stack.
func (m *Machine) divide(f *frame, op spec.Op) bool {
	if !f.has(2) {
		return true
	}
	a, b := f.stack[f.sp-2], f.stack[f.sp-1]
	narrow := op == spec.IDIV || op == spec.IREM
	if narrow {
		a, b = i32(a), i32(b)
	}
	if b == 0 {
		if f.try > 0 {
			f.sp -= 2
		}
		return m.raise(f, ArithmeticException, "/ by zero")
	}
	var r Word
	switch op {
	case spec.DIV, spec.LDIV:
		r = a / b
	case spec.REM, spec.LREM:
		r = a % b
	case spec.IDIV:
		r = Word(int32(a) / int32(b))
	case spec.IREM:
		r = Word(int32(a) % int32(b))
	}
	f.stack[f.sp-2] = r
	f.sp--
	return true
}

func (f *frame) pushConst(x Word) {
	if f.canPush(1) {
		f.push(x)
	}
}

func (f *frame) load(i Word) {
	if f.canPush(1) && f.validLocal(i) {
		f.push(f.locals[i])
	}
}

// store pops into a local. The stack is untouched if the index is out of range.
func (f *frame) store(i Word) {
	if f.has(1) && f.validLocal(i) {
		f.locals[i] = f.pop()
	}
}

// iinc adds the high 32 bits of arg to the int local indexed by the low 32 bits.
func (f *frame) iinc(arg Word) {
	idx := uint32(arg)
	inc := int32(arg >> 32)
	if uint64(idx) < uint64(len(f.locals)) {
		f.locals[idx] = Word(int32(f.locals[idx]) + inc)
	}
}

func (f *frame) swap() {
	if f.has(2) {
		s := f.stack[:f.sp]
		s[f.sp-1], s[f.sp-2] = s[f.sp-2], s[f.sp-1]
	}
}

func (f *frame) dup() {
	if f.has(1) && f.canPush(1) {
		f.push(f.peek())
	}
}

func (f *frame) dupX1() {
	if f.has(2) && f.canPush(1) {
		s := &f.stack
		v1, v2 := s[f.sp-1], s[f.sp-2]
		s[f.sp-2] = v1
		s[f.sp-1] = v2
		f.push(v1)
	}
}

func (f *frame) dupX2() {
	if f.has(3) && f.canPush(1) {
		s := &f.stack
		v1, v2, v3 := s[f.sp-1], s[f.sp-2], s[f.sp-3]
		s[f.sp-3] = v1
		s[f.sp-2] = v3
		s[f.sp-1] = v2
		f.push(v1)
	}
}

func (f *frame) dup2() {
	if f.has(2) && f.canPush(2) {
		s := &f.stack
		s[f.sp] = s[f.sp-2]
		s[f.sp+1] = s[f.sp-1]
		f.sp += 2
	}
}

func (f *frame) dup2X1() {
	if f.has(3) && f.canPush(2) {
		s := &f.stack
		v1, v2, v3 := s[f.sp-1], s[f.sp-2], s[f.sp-3]
		s[f.sp-3] = v2
		s[f.sp-2] = v1
		s[f.sp-1] = v3
		s[f.sp] = v2
		s[f.sp+1] = v1
		f.sp += 2
	}
}

func (f *frame) dup2X2() {
	if f.has(4) && f.canPush(2) {
		s := &f.stack
		v1, v2, v3, v4 := s[f.sp-1], s[f.sp-2], s[f.sp-3], s[f.sp-4]
		s[f.sp-4] = v2
		s[f.sp-3] = v1
		s[f.sp-2] = v4
		s[f.sp-1] = v3
		s[f.sp] = v2
		s[f.sp+1] = v1
		f.sp += 2
	}
}
