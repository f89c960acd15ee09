// Package hostsim is an in-memory managed runtime which implements svm.Host.
// It models classes with single inheritance, objects, typed arrays, pending exceptions and
// local, weak and global references, and counts the calls made to it.
package hostsim

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"shroudvm.org/shroud/svm"

	"golang.org/x/exp/maps"
)

const (
	weakBase   svm.Ref = 1 << 40
	globalBase svm.Ref = 1 << 41
)

// Stats counts calls made by the machine.
type Stats struct {
	FindClass uint64
	MethodID  uint64
	FieldID   uint64
	Calls     uint64

	LocalRefsDeleted  uint64
	WeakRefs          uint64
	WeakRefsDeleted   uint64
	GlobalRefs        uint64
	GlobalRefsDeleted uint64

	Pins     uint64
	Releases uint64
}

type object struct {
	class  *Class
	fields map[svm.ID]svm.Value
	elems  []svm.Value
	msg    string
}

// Host implements svm.Host. It is not safe for concurrent use.
type Host struct {
	// Out receives the output of the console class.
	Out io.Writer

	classes  map[string]*Class
	byRef    map[svm.Ref]*Class
	objects  map[svm.Ref]*object
	methods  map[svm.ID]*Method
	fields   map[svm.ID]*Field
	weak     map[svm.Ref]svm.Ref
	global   map[svm.Ref]svm.Ref
	monitors map[svm.Ref]int

	nextObj    svm.Ref
	nextWeak   svm.Ref
	nextGlobal svm.Ref
	nextID     svm.ID
	pending    svm.Ref

	stats Stats
}

var _ svm.Host = &Host{}

func New() *Host {
	h := &Host{
		Out:      os.Stdout,
		classes:  make(map[string]*Class),
		byRef:    make(map[svm.Ref]*Class),
		objects:  make(map[svm.Ref]*object),
		methods:  make(map[svm.ID]*Method),
		fields:   make(map[svm.ID]*Field),
		weak:     make(map[svm.Ref]svm.Ref),
		global:   make(map[svm.Ref]svm.Ref),
		monitors: make(map[svm.Ref]int),
	}
	defineBuiltins(h)
	return h
}

func (h *Host) Stats() Stats {
	return h.stats
}

// DefineClass creates a class. super may be empty for java/lang/Object.
// It panics if super is not defined.
func (h *Host) DefineClass(name, super string) *Class {
	c := &Class{
		Name:    name,
		methods: make(map[string]*Method),
		fields:  make(map[string]*Field),
		statics: make(map[svm.ID]svm.Value),
	}
	if super != "" {
		sc, ok := h.classes[super]
		if !ok {
			panic(fmt.Sprintf("hostsim: undefined superclass %q", super))
		}
		c.Super = sc
	}
	c.ref = h.alloc(&object{class: c})
	h.classes[name] = c
	h.byRef[c.ref] = c
	return c
}

// Class returns a defined class by name.
func (h *Host) Class(name string) *Class {
	return h.classes[name]
}

// ClassNames lists the defined classes in order.
func (h *Host) ClassNames() []string {
	names := maps.Keys(h.classes)
	slices.Sort(names)
	return names
}

// ClassOf returns the class of an object, or nil.
func (h *Host) ClassOf(r svm.Ref) *Class {
	if o := h.object(r); o != nil {
		return o.class
	}
	return nil
}

// Message returns the message of a throwable created with ThrowNew.
func (h *Host) Message(r svm.Ref) string {
	if o := h.object(r); o != nil {
		return o.msg
	}
	return ""
}

// Elements returns a copy of the elements of an array.
func (h *Host) Elements(arr svm.Ref) []svm.Value {
	if o := h.object(arr); o != nil {
		return slices.Clone(o.elems)
	}
	return nil
}

// NewObject allocates an instance of the named class.
func (h *Host) NewObject(className string) svm.Ref {
	c := h.classes[className]
	if c == nil {
		panic(fmt.Sprintf("hostsim: undefined class %q", className))
	}
	return h.alloc(&object{class: c, fields: make(map[svm.ID]svm.Value)})
}

// Unload removes a class and clears every weak reference to it, as a collector would.
func (h *Host) Unload(name string) {
	c := h.classes[name]
	if c == nil {
		return
	}
	delete(h.classes, name)
	delete(h.byRef, c.ref)
	delete(h.objects, c.ref)
	for w, target := range h.weak {
		if target == c.ref {
			h.weak[w] = svm.Null
		}
	}
}

// ClearWeakRefs clears every weak reference without deleting it.
func (h *Host) ClearWeakRefs() {
	for w := range h.weak {
		h.weak[w] = svm.Null
	}
}

// LiveWeakRefs returns the number of weak references which have not been deleted.
func (h *Host) LiveWeakRefs() int {
	return len(h.weak)
}

// LiveGlobalRefs returns the number of global references which have not been deleted.
func (h *Host) LiveGlobalRefs() int {
	return len(h.global)
}

func (h *Host) alloc(o *object) svm.Ref {
	h.nextObj++
	h.objects[h.nextObj] = o
	return h.nextObj
}

// deref resolves any kind of reference to the object handle it points to.
func (h *Host) deref(r svm.Ref) svm.Ref {
	switch {
	case r >= globalBase:
		return h.global[r]
	case r >= weakBase:
		return h.weak[r]
	default:
		return r
	}
}

func (h *Host) object(r svm.Ref) *object {
	return h.objects[h.deref(r)]
}

func (h *Host) class(r svm.Ref) *Class {
	return h.byRef[h.deref(r)]
}

func (h *Host) throwNamed(className, msg string) {
	c := h.classes[className]
	if c == nil {
		c = h.classes["java/lang/Throwable"]
	}
	h.pending = h.alloc(&object{class: c, msg: msg})
}

func (h *Host) FindClass(name string) svm.Ref {
	h.stats.FindClass++
	c := h.classes[name]
	if c == nil && strings.HasPrefix(name, "[") {
		c = h.arrayClass(name)
	}
	if c == nil {
		h.throwNamed(svm.NoClassDefFoundError, name)
		return svm.Null
	}
	return c.ref
}

// arrayClass returns the class for an array descriptor, creating it on first use.
func (h *Host) arrayClass(desc string) *Class {
	if c := h.classes[desc]; c != nil {
		return c
	}
	elem := desc[1:]
	if strings.HasPrefix(elem, "L") {
		if h.classes[strings.TrimSuffix(elem[1:], ";")] == nil {
			return nil
		}
	} else if !strings.HasPrefix(elem, "[") && (len(elem) != 1 || svm.KindFromDesc(elem) == svm.KindRef) {
		return nil
	}
	c := h.DefineClass(desc, "java/lang/Object")
	c.elem = svm.KindFromDesc(elem)
	return c
}

func (h *Host) MethodID(class svm.Ref, name, desc string, static bool) svm.ID {
	h.stats.MethodID++
	c := h.class(class)
	if c == nil {
		h.throwNamed(svm.NoClassDefFoundError, "")
		return 0
	}
	m := c.findMethod(name, desc)
	if m == nil || m.Static != static {
		h.throwNamed(svm.NoSuchMethodError, name)
		return 0
	}
	return m.id
}

func (h *Host) FieldID(class svm.Ref, name, desc string, static bool) svm.ID {
	h.stats.FieldID++
	c := h.class(class)
	if c == nil {
		h.throwNamed(svm.NoClassDefFoundError, "")
		return 0
	}
	f := c.findField(name, desc)
	if f == nil || f.Static != static {
		h.throwNamed(svm.NoSuchFieldError, name)
		return 0
	}
	return f.id
}

// dispatch finds the implementation to run for c.
func (h *Host) dispatch(c *svm.Call) *Method {
	m := h.methods[c.Method]
	if m == nil {
		h.throwNamed(svm.NoSuchMethodError, "")
		return nil
	}
	if c.Mode == svm.CallVirtual {
		o := h.object(c.Recv)
		if o == nil {
			h.throwNamed(svm.NullPointerException, "null")
			return nil
		}
		if impl := o.class.findMethod(m.Name, m.Desc); impl != nil {
			m = impl
		}
	}
	return m
}

func (h *Host) call(c *svm.Call) svm.Value {
	h.stats.Calls++
	m := h.dispatch(c)
	if m == nil || m.Fn == nil {
		return svm.Value{}
	}
	return m.Fn(h, h.deref(c.Recv), c.Args)
}

func (h *Host) CallVoid(c *svm.Call) { h.call(c) }
func (h *Host) CallInt(c *svm.Call) int32 { return h.call(c).Int() }
func (h *Host) CallLong(c *svm.Call) int64 { return h.call(c).Long() }
func (h *Host) CallFloat(c *svm.Call) float32 { return h.call(c).Float() }
func (h *Host) CallDouble(c *svm.Call) float64 { return h.call(c).Double() }
func (h *Host) CallObject(c *svm.Call) svm.Ref { return h.call(c).Ref() }

func (h *Host) GetField(target svm.Ref, id svm.ID, k svm.Kind) svm.Value {
	f := h.fields[id]
	if f == nil {
		h.throwNamed(svm.NoSuchFieldError, "")
		return svm.Value{}
	}
	var v svm.Value
	var ok bool
	if f.Static {
		v, ok = f.Owner.statics[id]
	} else {
		o := h.object(target)
		if o == nil {
			h.throwNamed(svm.NullPointerException, "null")
			return svm.Value{}
		}
		v, ok = o.fields[id]
	}
	if !ok {
		return svm.ValueOf(k, 0)
	}
	return v
}

func (h *Host) SetField(target svm.Ref, id svm.ID, v svm.Value) {
	f := h.fields[id]
	if f == nil {
		h.throwNamed(svm.NoSuchFieldError, "")
		return
	}
	if f.Static {
		f.Owner.statics[id] = v
		return
	}
	o := h.object(target)
	if o == nil {
		h.throwNamed(svm.NullPointerException, "null")
		return
	}
	if o.fields == nil {
		o.fields = make(map[svm.ID]svm.Value)
	}
	o.fields[id] = v
}

func (h *Host) AllocObject(class svm.Ref) svm.Ref {
	c := h.class(class)
	if c == nil {
		h.throwNamed(svm.NoClassDefFoundError, "")
		return svm.Null
	}
	return h.alloc(&object{class: c, fields: make(map[svm.ID]svm.Value)})
}

func (h *Host) NewArray(k svm.Kind, elemClass svm.Ref, n int32) svm.Ref {
	if n < 0 {
		h.throwNamed(svm.NegativeArraySizeException, fmt.Sprint(n))
		return svm.Null
	}
	var desc string
	if k == svm.KindRef {
		ec := h.class(elemClass)
		if ec == nil {
			h.throwNamed(svm.NoClassDefFoundError, "")
			return svm.Null
		}
		if ec.IsArray() {
			desc = "[" + ec.Name
		} else {
			desc = "[L" + ec.Name + ";"
		}
	} else {
		desc = "[" + descOf(k)
	}
	c := h.arrayClass(desc)
	elems := make([]svm.Value, n)
	for i := range elems {
		elems[i] = svm.ValueOf(k, 0)
	}
	return h.alloc(&object{class: c, elems: elems})
}

func descOf(k svm.Kind) string {
	return string("VZBCSIJFD"[k])
}

func (h *Host) array(arr svm.Ref) *object {
	o := h.object(arr)
	if o == nil || !o.class.IsArray() {
		h.throwNamed(svm.NullPointerException, "null")
		return nil
	}
	return o
}

func (h *Host) ArrayLength(arr svm.Ref) int32 {
	o := h.array(arr)
	if o == nil {
		return 0
	}
	return int32(len(o.elems))
}

func (h *Host) GetArrayElement(arr svm.Ref, i int32) svm.Value {
	o := h.array(arr)
	if o == nil {
		return svm.Value{}
	}
	if i < 0 || int(i) >= len(o.elems) {
		h.throwNamed(svm.ArrayIndexOutOfBoundsException, fmt.Sprint(i))
		return svm.Value{}
	}
	return o.elems[i]
}

func (h *Host) SetArrayElement(arr svm.Ref, i int32, v svm.Value) {
	o := h.array(arr)
	if o == nil {
		return
	}
	if i < 0 || int(i) >= len(o.elems) {
		h.throwNamed(svm.ArrayIndexOutOfBoundsException, fmt.Sprint(i))
		return
	}
	if v.Kind() == svm.KindRef {
		v = svm.RefValue(h.deref(v.Ref()))
	}
	o.elems[i] = v
}

func (h *Host) PinArray(arr svm.Ref) []svm.Value {
	o := h.object(arr)
	if o == nil || !o.class.IsArray() || o.class.elem == svm.KindRef {
		return nil
	}
	h.stats.Pins++
	return slices.Clone(o.elems)
}

func (h *Host) ReleaseArray(arr svm.Ref, elems []svm.Value) {
	h.stats.Releases++
	if o := h.object(arr); o != nil {
		copy(o.elems, elems)
	}
}

func (h *Host) IsInstanceOf(obj, class svm.Ref) bool {
	o := h.object(obj)
	c := h.class(class)
	if o == nil || c == nil {
		return false
	}
	return o.class.IsSubclassOf(c)
}

func (h *Host) MonitorEnter(obj svm.Ref) {
	h.monitors[h.deref(obj)]++
}

func (h *Host) MonitorExit(obj svm.Ref) {
	r := h.deref(obj)
	if h.monitors[r] == 0 {
		h.throwNamed("java/lang/IllegalMonitorStateException", "")
		return
	}
	h.monitors[r]--
}

// Monitors returns the number of times obj is currently locked.
func (h *Host) Monitors(obj svm.Ref) int {
	return h.monitors[h.deref(obj)]
}

func (h *Host) Throw(obj svm.Ref) {
	h.pending = h.deref(obj)
}

func (h *Host) ThrowNew(class svm.Ref, msg string) {
	c := h.class(class)
	if c == nil {
		c = h.classes["java/lang/Throwable"]
	}
	h.pending = h.alloc(&object{class: c, msg: msg})
}

func (h *Host) ExceptionCheck() bool {
	return h.pending != svm.Null
}

func (h *Host) PendingException() svm.Ref {
	return h.pending
}

func (h *Host) ExceptionClear() {
	h.pending = svm.Null
}

func (h *Host) NewLocalRef(r svm.Ref) svm.Ref {
	target := h.deref(r)
	if _, ok := h.objects[target]; !ok {
		return svm.Null
	}
	return target
}

func (h *Host) DeleteLocalRef(svm.Ref) {
	h.stats.LocalRefsDeleted++
}

func (h *Host) NewWeakRef(r svm.Ref) svm.Ref {
	h.stats.WeakRefs++
	h.nextWeak++
	w := weakBase + h.nextWeak
	h.weak[w] = h.deref(r)
	return w
}

func (h *Host) DeleteWeakRef(r svm.Ref) {
	h.stats.WeakRefsDeleted++
	delete(h.weak, r)
}

func (h *Host) NewGlobalRef(r svm.Ref) svm.Ref {
	h.stats.GlobalRefs++
	h.nextGlobal++
	g := globalBase + h.nextGlobal
	h.global[g] = h.deref(r)
	return g
}

func (h *Host) DeleteGlobalRef(r svm.Ref) {
	h.stats.GlobalRefsDeleted++
	delete(h.global, r)
}
