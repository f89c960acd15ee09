package svm

import (
	"fmt"
	"math"
)

// Ref is a handle to an object owned by the host. Null is 0.
type Ref int64

const Null Ref = 0

// ID identifies a resolved method or field. 0 means unresolved.
type ID uint64

// Kind is the type tag of a value crossing the host boundary.
type Kind uint8

const (
	KindVoid Kind = iota
	KindBoolean
	KindByte
	KindChar
	KindShort
	KindInt
	KindLong
	KindFloat
	KindDouble
	KindRef
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindBoolean:
		return "boolean"
	case KindByte:
		return "byte"
	case KindChar:
		return "char"
	case KindShort:
		return "short"
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindFloat:
		return "float"
	case KindDouble:
		return "double"
	case KindRef:
		return "ref"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// IsIntLike returns true for the kinds that travel as a 32 bit int.
func (k Kind) IsIntLike() bool {
	return k >= KindBoolean && k <= KindInt
}

// KindFromDesc returns the Kind for the first character of a type descriptor.
// Object and array descriptors are KindRef.
func KindFromDesc(desc string) Kind {
	if desc == "" {
		return KindVoid
	}
	switch desc[0] {
	case 'V':
		return KindVoid
	case 'Z':
		return KindBoolean
	case 'B':
		return KindByte
	case 'C':
		return KindChar
	case 'S':
		return KindShort
	case 'I':
		return KindInt
	case 'J':
		return KindLong
	case 'F':
		return KindFloat
	case 'D':
		return KindDouble
	default:
		return KindRef
	}
}

// Value is a typed value passed to or returned from the host.
type Value struct {
	kind Kind
	bits uint64
}

func IntValue(k Kind, x int32) Value {
	return Value{kind: k, bits: uint64(int64(x))}
}

func LongValue(x int64) Value {
	return Value{kind: KindLong, bits: uint64(x)}
}

func FloatValue(x float32) Value {
	return Value{kind: KindFloat, bits: uint64(math.Float32bits(x))}
}

func DoubleValue(x float64) Value {
	return Value{kind: KindDouble, bits: math.Float64bits(x)}
}

func RefValue(r Ref) Value {
	return Value{kind: KindRef, bits: uint64(r)}
}

func (v Value) Kind() Kind { return v.kind }
func (v Value) Int() int32 { return int32(v.bits) }
func (v Value) Long() int64 { return int64(v.bits) }
func (v Value) Float() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) Double() float64 { return math.Float64frombits(v.bits) }
func (v Value) Ref() Ref { return Ref(v.bits) }
func (v Value) IsZero() bool { return v.bits == 0 }

func (v Value) String() string {
	switch {
	case v.kind.IsIntLike():
		return fmt.Sprintf("%s(%d)", v.kind, v.Int())
	case v.kind == KindLong:
		return fmt.Sprintf("long(%d)", v.Long())
	case v.kind == KindFloat:
		return fmt.Sprintf("float(%v)", v.Float())
	case v.kind == KindDouble:
		return fmt.Sprintf("double(%v)", v.Double())
	case v.kind == KindRef:
		return fmt.Sprintf("ref(%d)", v.Ref())
	default:
		return "void"
	}
}

// ValueOf converts a stack word into a Value of kind k.
// Narrow kinds are truncated the way a store to an array of that kind would truncate.
func ValueOf(k Kind, w Word) Value {
	switch k {
	case KindBoolean:
		return IntValue(k, int32(w&1))
	case KindByte:
		return IntValue(k, int32(int8(w)))
	case KindChar:
		return IntValue(k, int32(uint16(w)))
	case KindShort:
		return IntValue(k, int32(int16(w)))
	case KindInt:
		return IntValue(k, int32(w))
	case KindLong:
		return LongValue(w)
	case KindFloat:
		return Value{kind: KindFloat, bits: uint64(uint32(w))}
	case KindDouble:
		return Value{kind: KindDouble, bits: uint64(w)}
	case KindRef:
		return RefValue(Ref(w))
	default:
		return Value{}
	}
}

// Word converts v into its stack representation.
// Floats are sign extended from their 32 bit pattern, doubles keep their raw bits.
func (v Value) Word() Word {
	switch v.kind {
	case KindFloat:
		return Word(int32(uint32(v.bits)))
	case KindLong, KindDouble, KindRef:
		return Word(v.bits)
	case KindVoid:
		return 0
	default:
		return Word(int32(v.bits))
	}
}

// CallMode selects how the host dispatches a call.
type CallMode uint8

const (
	// CallStatic calls a static method on Class.
	CallStatic CallMode = iota
	// CallVirtual dispatches on the runtime class of Recv.
	CallVirtual
	// CallNonvirtual calls the implementation declared by Class on Recv.
	CallNonvirtual
)

// Call describes one method invocation.
type Call struct {
	Mode   CallMode
	Class  Ref
	Recv   Ref
	Method ID
	Args   []Value
}

// Host is the managed runtime the machine delegates objects, classes and exceptions to.
//
// Lookups which fail leave an exception pending, as do calls which throw.
// Local refs returned by the host are released by the machine with DeleteLocalRef.
type Host interface {
	FindClass(name string) Ref
	MethodID(class Ref, name, desc string, static bool) ID
	FieldID(class Ref, name, desc string, static bool) ID

	CallVoid(c *Call)
	CallInt(c *Call) int32
	CallLong(c *Call) int64
	CallFloat(c *Call) float32
	CallDouble(c *Call) float64
	CallObject(c *Call) Ref

	// GetField and SetField take the class as target for static fields.
	GetField(target Ref, field ID, k Kind) Value
	SetField(target Ref, field ID, v Value)

	AllocObject(class Ref) Ref
	// NewArray creates an array of n elements. elemClass is only used for KindRef.
	NewArray(k Kind, elemClass Ref, n int32) Ref
	ArrayLength(arr Ref) int32
	GetArrayElement(arr Ref, i int32) Value
	SetArrayElement(arr Ref, i int32, v Value)
	// PinArray returns the elements of a primitive array for direct access.
	// Changes are written back by ReleaseArray.
	PinArray(arr Ref) []Value
	ReleaseArray(arr Ref, elems []Value)
	IsInstanceOf(obj, class Ref) bool

	MonitorEnter(obj Ref)
	MonitorExit(obj Ref)

	Throw(obj Ref)
	ThrowNew(class Ref, msg string)
	ExceptionCheck() bool
	PendingException() Ref
	ExceptionClear()

	NewLocalRef(r Ref) Ref
	DeleteLocalRef(r Ref)
	NewWeakRef(r Ref) Ref
	DeleteWeakRef(r Ref)
	NewGlobalRef(r Ref) Ref
	DeleteGlobalRef(r Ref)
}

// Names of the exception classes raised by the machine.
const (
	ArithmeticException            = "java/lang/ArithmeticException"
	NullPointerException           = "java/lang/NullPointerException"
	ArrayIndexOutOfBoundsException = "java/lang/ArrayIndexOutOfBoundsException"
	ClassCastException             = "java/lang/ClassCastException"
	NegativeArraySizeException     = "java/lang/NegativeArraySizeException"
	NoSuchMethodError              = "java/lang/NoSuchMethodError"
	NoSuchFieldError               = "java/lang/NoSuchFieldError"
	NoClassDefFoundError           = "java/lang/NoClassDefFoundError"
)
