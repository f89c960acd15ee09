package hostsim

import (
	"fmt"
	"math"

	"shroudvm.org/shroud/svm"
)

const (
	ObjectClass    = "java/lang/Object"
	StringClass    = "java/lang/String"
	ThrowableClass = "java/lang/Throwable"
	MathClass      = "java/lang/Math"
	// ConsoleClass has static println methods which write to Host.Out.
	ConsoleClass = "shroud/Console"

	IllegalMonitorStateException = "java/lang/IllegalMonitorStateException"
)

func defineBuiltins(h *Host) {
	h.DefineClass(ObjectClass, "")
	h.DefineClass(StringClass, ObjectClass)
	h.DefineClass(ThrowableClass, ObjectClass)
	for _, x := range []struct{ name, super string }{
		{"java/lang/Exception", ThrowableClass},
		{"java/lang/Error", ThrowableClass},
		{"java/lang/RuntimeException", "java/lang/Exception"},
		{"java/lang/LinkageError", "java/lang/Error"},
		{"java/lang/IncompatibleClassChangeError", "java/lang/LinkageError"},
		{svm.ArithmeticException, "java/lang/RuntimeException"},
		{svm.NullPointerException, "java/lang/RuntimeException"},
		{"java/lang/IndexOutOfBoundsException", "java/lang/RuntimeException"},
		{svm.ArrayIndexOutOfBoundsException, "java/lang/IndexOutOfBoundsException"},
		{svm.ClassCastException, "java/lang/RuntimeException"},
		{svm.NegativeArraySizeException, "java/lang/RuntimeException"},
		{IllegalMonitorStateException, "java/lang/RuntimeException"},
		{svm.NoClassDefFoundError, "java/lang/LinkageError"},
		{svm.NoSuchMethodError, "java/lang/IncompatibleClassChangeError"},
		{svm.NoSuchFieldError, "java/lang/IncompatibleClassChangeError"},
	} {
		h.DefineClass(x.name, x.super)
	}

	m := h.DefineClass(MathClass, ObjectClass)
	m.DefineMethod(h, "max", "(II)I", true, func(h *Host, _ svm.Ref, args []svm.Value) svm.Value {
		return svm.IntValue(svm.KindInt, max(args[0].Int(), args[1].Int()))
	})
	m.DefineMethod(h, "min", "(II)I", true, func(h *Host, _ svm.Ref, args []svm.Value) svm.Value {
		return svm.IntValue(svm.KindInt, min(args[0].Int(), args[1].Int()))
	})
	m.DefineMethod(h, "abs", "(J)J", true, func(h *Host, _ svm.Ref, args []svm.Value) svm.Value {
		x := args[0].Long()
		if x < 0 {
			x = -x
		}
		return svm.LongValue(x)
	})
	m.DefineMethod(h, "sqrt", "(D)D", true, func(h *Host, _ svm.Ref, args []svm.Value) svm.Value {
		return svm.DoubleValue(math.Sqrt(args[0].Double()))
	})
	m.DefineMethod(h, "floorDiv", "(II)I", true, func(h *Host, _ svm.Ref, args []svm.Value) svm.Value {
		a, b := args[0].Int(), args[1].Int()
		if b == 0 {
			h.throwNamed(svm.ArithmeticException, "/ by zero")
			return svm.Value{}
		}
		q := a / b
		if (a%b != 0) && ((a < 0) != (b < 0)) {
			q--
		}
		return svm.IntValue(svm.KindInt, q)
	})

	c := h.DefineClass(ConsoleClass, ObjectClass)
	for _, desc := range []string{"(I)V", "(J)V", "(D)V", "(Z)V"} {
		c.DefineMethod(h, "println", desc, true, func(h *Host, _ svm.Ref, args []svm.Value) svm.Value {
			fmt.Fprintln(h.Out, plain(args[0]))
			return svm.Value{}
		})
	}
}

// plain formats v without its kind.
func plain(v svm.Value) any {
	switch v.Kind() {
	case svm.KindBoolean:
		return v.Int() != 0
	case svm.KindLong:
		return v.Long()
	case svm.KindFloat:
		return v.Float()
	case svm.KindDouble:
		return v.Double()
	default:
		return v.Int()
	}
}
