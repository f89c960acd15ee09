package svm

import (
	"fmt"

	"shroudvm.org/shroud/spec"
)

// ready reports whether a host operation may start.
// A pending exception stops the call before the host is touched.
func (m *Machine) ready(f *frame) bool {
	if m.host.ExceptionCheck() {
		return f.stop(HaltPending)
	}
	return true
}

// settle is called after a host operation.
// It stops the call if the operation left an exception pending outside of a try region.
func (m *Machine) settle(f *frame) bool {
	if f.try > 0 || !m.host.ExceptionCheck() {
		return true
	}
	return f.stop(HaltHost)
}

// raise throws a new exception of the named class.
func (m *Machine) raise(f *frame, className, msg string) bool {
	if cls := m.host.FindClass(className); cls != Null {
		m.host.ThrowNew(cls, msg)
		m.host.DeleteLocalRef(cls)
	}
	if f.try > 0 {
		return true
	}
	return f.stop(HaltHost)
}

// unresolved handles a failed class or member resolution.
// The host normally has an exception pending already, if not one is raised.
func (m *Machine) unresolved(f *frame, className, what string) bool {
	if m.host.ExceptionCheck() {
		return m.settle(f)
	}
	return m.raise(f, className, what)
}

func (m *Machine) raiseNPE(f *frame) bool {
	return m.raise(f, NullPointerException, "null")
}

var arrayKinds = [spec.OpCount]Kind{
	spec.IALOAD: KindInt,
	spec.BALOAD: KindByte,
	spec.CALOAD: KindChar,
	spec.SALOAD: KindShort,
	spec.LALOAD: KindLong,
	spec.FALOAD: KindFloat,
	spec.DALOAD: KindDouble,
	spec.AALOAD: KindRef,

	spec.IASTORE: KindInt,
	spec.BASTORE: KindByte,
	spec.CASTORE: KindChar,
	spec.SASTORE: KindShort,
	spec.LASTORE: KindLong,
	spec.FASTORE: KindFloat,
	spec.DASTORE: KindDouble,
	spec.AASTORE: KindRef,
}

// newArrayKinds maps the NEWARRAY type codes to element kinds.
var newArrayKinds = map[Word]Kind{
	4:  KindBoolean,
	5:  KindChar,
	6:  KindFloat,
	7:  KindDouble,
	8:  KindByte,
	9:  KindShort,
	10: KindInt,
	11: KindLong,
}

func (m *Machine) pinned(f *frame, arr Ref, k Kind) []Value {
	if k == KindRef {
		return nil
	}
	return f.pins.elems(m.host, arr)
}

func (m *Machine) outOfBounds(f *frame, i, n int32) bool {
	return m.raise(f, ArrayIndexOutOfBoundsException, fmt.Sprintf("Index %d out of bounds for length %d", i, n))
}

func (m *Machine) arrayLength(f *frame) bool {
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	arr := Ref(f.pop())
	if arr == Null {
		return m.raiseNPE(f)
	}
	n := m.host.ArrayLength(arr)
	if !m.settle(f) {
		return false
	}
	f.push(Word(n))
	return true
}

func (m *Machine) arrayLoad(f *frame, op spec.Op) bool {
	if !f.has(2) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	k := arrayKinds[op]
	i := int32(f.pop())
	arr := Ref(f.pop())
	if arr == Null {
		return m.raiseNPE(f)
	}
	var v Value
	if elems := m.pinned(f, arr, k); elems != nil {
		if i < 0 || int(i) >= len(elems) {
			return m.outOfBounds(f, i, int32(len(elems)))
		}
		v = elems[i]
	} else {
		n := m.host.ArrayLength(arr)
		if i < 0 || i >= n {
			return m.outOfBounds(f, i, n)
		}
		v = m.host.GetArrayElement(arr, i)
		if !m.settle(f) {
			return false
		}
	}
	f.push(v.Word())
	return true
}

func (m *Machine) arrayStore(f *frame, op spec.Op) bool {
	if !f.has(3) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	k := arrayKinds[op]
	v := ValueOf(k, f.pop())
	i := int32(f.pop())
	arr := Ref(f.pop())
	if arr == Null {
		return m.raiseNPE(f)
	}
	if elems := m.pinned(f, arr, k); elems != nil {
		if i < 0 || int(i) >= len(elems) {
			return m.outOfBounds(f, i, int32(len(elems)))
		}
		elems[i] = v
		return true
	}
	n := m.host.ArrayLength(arr)
	if i < 0 || i >= n {
		return m.outOfBounds(f, i, n)
	}
	m.host.SetArrayElement(arr, i, v)
	return m.settle(f)
}

func (m *Machine) newObject(f *frame, arg Word) bool {
	name, ok := f.tabs.constant(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.canPush(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	cls := m.res.class(name)
	if cls == Null {
		return m.unresolved(f, NoClassDefFoundError, name)
	}
	obj := m.host.AllocObject(cls)
	m.host.DeleteLocalRef(cls)
	if !m.settle(f) {
		return false
	}
	f.push(Word(obj))
	return true
}

func (m *Machine) newRefArray(f *frame, arg Word) bool {
	name, ok := f.tabs.constant(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	n := int32(f.pop())
	if n < 0 {
		return m.raise(f, NegativeArraySizeException, fmt.Sprint(n))
	}
	cls := m.res.class(name)
	if cls == Null {
		return m.unresolved(f, NoClassDefFoundError, name)
	}
	arr := m.host.NewArray(KindRef, cls, n)
	m.host.DeleteLocalRef(cls)
	if !m.settle(f) {
		return false
	}
	f.push(Word(arr))
	return true
}

func (m *Machine) newPrimArray(f *frame, arg Word) bool {
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	n := int32(f.pop())
	k, ok := newArrayKinds[arg]
	if !ok {
		f.push(Word(Null))
		return true
	}
	if n < 0 {
		return m.raise(f, NegativeArraySizeException, fmt.Sprint(n))
	}
	arr := m.host.NewArray(k, Null, n)
	if !m.settle(f) {
		return false
	}
	f.push(Word(arr))
	return true
}

func (m *Machine) newMultiArray(f *frame, arg Word) bool {
	ref, ok := f.tabs.multiArray(arg)
	if !ok || ref.Dims < 1 {
		return f.stop(HaltInvalid)
	}
	if !f.has(ref.Dims) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	sizes := make([]int32, ref.Dims)
	for i := len(sizes) - 1; i >= 0; i-- {
		sizes[i] = int32(f.pop())
	}
	for _, n := range sizes {
		if n < 0 {
			return m.raise(f, NegativeArraySizeException, fmt.Sprint(n))
		}
	}
	arr := m.multiArray(ref.Class, sizes)
	if arr == Null && !m.host.ExceptionCheck() {
		return m.unresolved(f, NoClassDefFoundError, ref.Class)
	}
	if !m.settle(f) {
		return false
	}
	f.push(Word(arr))
	return true
}

// multiArray allocates an array with descriptor desc, and recursively its sub arrays,
// with one size per dimension.
func (m *Machine) multiArray(desc string, sizes []int32) Ref {
	k, elemName := arrayElem(desc)
	var cls Ref
	if k == KindRef {
		if cls = m.res.class(elemName); cls == Null {
			return Null
		}
		defer m.host.DeleteLocalRef(cls)
	}
	arr := m.host.NewArray(k, cls, sizes[0])
	if arr == Null || len(sizes) == 1 || k != KindRef {
		return arr
	}
	for i := int32(0); i < sizes[0]; i++ {
		sub := m.multiArray(desc[1:], sizes[1:])
		if sub == Null {
			return arr
		}
		m.host.SetArrayElement(arr, i, RefValue(sub))
		m.host.DeleteLocalRef(sub)
	}
	return arr
}

// checkCast raises ClassCastException if the top of the stack is not an instance of the class.
// The stack is not modified.
func (m *Machine) checkCast(f *frame, arg Word) bool {
	name, ok := f.tabs.constant(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.has(1) || Ref(f.peek()) == Null {
		return true
	}
	if !m.ready(f) {
		return false
	}
	cls := m.res.class(name)
	if cls == Null {
		return m.unresolved(f, NoClassDefFoundError, name)
	}
	is := m.host.IsInstanceOf(Ref(f.peek()), cls)
	m.host.DeleteLocalRef(cls)
	if !is {
		return m.raise(f, ClassCastException, name)
	}
	return m.settle(f)
}

func (m *Machine) instanceOf(f *frame, arg Word) bool {
	name, ok := f.tabs.constant(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	obj := Ref(f.pop())
	var res Word
	if obj != Null {
		cls := m.res.class(name)
		if cls == Null {
			return m.unresolved(f, NoClassDefFoundError, name)
		}
		if m.host.IsInstanceOf(obj, cls) {
			res = 1
		}
		m.host.DeleteLocalRef(cls)
	}
	f.push(res)
	return m.settle(f)
}

func (m *Machine) monitor(f *frame, op spec.Op) bool {
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	obj := Ref(f.pop())
	if obj == Null {
		return m.raiseNPE(f)
	}
	if op == spec.MONITORENTER {
		m.host.MonitorEnter(obj)
	} else {
		m.host.MonitorExit(obj)
	}
	return m.settle(f)
}

func (m *Machine) getStatic(f *frame, arg Word) bool {
	ref, ok := f.tabs.field(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.canPush(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	mem, ok := m.res.staticField(ref)
	if !ok {
		return m.unresolved(f, NoSuchFieldError, ref.Name)
	}
	v := m.host.GetField(mem.class, mem.id, KindFromDesc(ref.Desc))
	if !m.settle(f) {
		return false
	}
	f.push(v.Word())
	return true
}

// putStatic consumes the value even if the field cannot be resolved.
func (m *Machine) putStatic(f *frame, arg Word) bool {
	ref, ok := f.tabs.field(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	w := f.pop()
	mem, ok := m.res.staticField(ref)
	if !ok {
		return m.unresolved(f, NoSuchFieldError, ref.Name)
	}
	m.host.SetField(mem.class, mem.id, ValueOf(KindFromDesc(ref.Desc), w))
	return m.settle(f)
}

func (m *Machine) getField(f *frame, arg Word) bool {
	ref, ok := f.tabs.field(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	obj := Ref(f.pop())
	if obj == Null {
		return m.raiseNPE(f)
	}
	id, ok := m.res.field(ref)
	if !ok {
		return m.unresolved(f, NoSuchFieldError, ref.Name)
	}
	v := m.host.GetField(obj, id, KindFromDesc(ref.Desc))
	if !m.settle(f) {
		return false
	}
	f.push(v.Word())
	return true
}

func (m *Machine) putField(f *frame, arg Word) bool {
	ref, ok := f.tabs.field(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !f.has(2) {
		f.sp = 0
		return true
	}
	if !m.ready(f) {
		return false
	}
	w := f.pop()
	obj := Ref(f.pop())
	if obj == Null {
		return m.raiseNPE(f)
	}
	id, ok := m.res.field(ref)
	if !ok {
		return m.unresolved(f, NoSuchFieldError, ref.Name)
	}
	m.host.SetField(obj, id, ValueOf(KindFromDesc(ref.Desc), w))
	return m.settle(f)
}

// invoke calls a method. Arguments are popped right to left, then the receiver for instance calls.
// The encoding context is restored after the call in case the host re-entered the machine.
// Nothing is pushed if the call throws.
func (m *Machine) invoke(f *frame, op spec.Op, arg Word) bool {
	ref, ok := f.tabs.method(arg)
	if !ok {
		return f.stop(HaltInvalid)
	}
	if !m.ready(f) {
		return false
	}
	sig := m.res.signature(ref.Desc)
	static := op == spec.INVOKESTATIC || op == spec.INVOKEDYNAMIC
	need := len(sig.Args)
	if !static {
		need++
	}
	if !f.has(need) {
		f.sp = 0
		return true
	}
	// host code may read arrays this call has pinned
	f.pins.release(m.host)

	c := Call{Args: make([]Value, len(sig.Args))}
	for i := len(sig.Args) - 1; i >= 0; i-- {
		c.Args[i] = ValueOf(sig.Args[i], f.pop())
	}
	if static {
		mem, ok := m.res.staticMethod(ref)
		if !ok {
			return m.unresolved(f, NoSuchMethodError, ref.Name)
		}
		c.Mode, c.Class, c.Method = CallStatic, mem.class, mem.id
	} else {
		c.Recv = Ref(f.pop())
		if c.Recv == Null {
			return m.raiseNPE(f)
		}
		id, ok := m.res.method(ref)
		if !ok {
			return m.unresolved(f, NoSuchMethodError, ref.Name)
		}
		c.Mode, c.Method = CallVirtual, id
		if op == spec.INVOKESPECIAL {
			cls := m.res.class(ref.Class)
			if cls == Null {
				return m.unresolved(f, NoClassDefFoundError, ref.Class)
			}
			defer m.host.DeleteLocalRef(cls)
			c.Mode, c.Class = CallNonvirtual, cls
		}
	}

	snap := m.sc.Snapshot()
	w, ok := m.call(&c, sig.Ret)
	m.sc.Restore(snap)
	if m.host.ExceptionCheck() {
		return m.settle(f)
	}
	if ok && f.canPush(1) {
		f.push(w)
	}
	return true
}

// call dispatches on the return kind. The bool is false for void methods.
func (m *Machine) call(c *Call, ret Kind) (Word, bool) {
	switch {
	case ret == KindVoid:
		m.host.CallVoid(c)
		return 0, false
	case ret.IsIntLike():
		return Word(m.host.CallInt(c)), true
	case ret == KindLong:
		return m.host.CallLong(c), true
	case ret == KindFloat:
		return f32w(m.host.CallFloat(c)), true
	case ret == KindDouble:
		return f64w(m.host.CallDouble(c)), true
	default:
		return Word(m.host.CallObject(c)), true
	}
}

// athrow hands an object to the host as the pending exception.
func (m *Machine) athrow(f *frame) bool {
	if !f.has(1) {
		return true
	}
	if !m.ready(f) {
		return false
	}
	obj := Ref(f.pop())
	if obj == Null {
		return m.raiseNPE(f)
	}
	m.host.Throw(obj)
	if f.try > 0 {
		return true
	}
	return f.stop(HaltHost)
}
