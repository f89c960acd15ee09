package svm_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"shroudvm.org/shroud/hostsim"
	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svm"
)

const (
	counterClass = "demo/Counter"
	doublerClass = "demo/Doubler"
)

// defineDemo defines demo/Counter, which has an int field n, a static long total,
// an instance method add(I)I which adds to n and returns it, and a static fail()I which throws.
// demo/Doubler extends it and adds twice as much.
func defineDemo(h *hostsim.Host) {
	c := h.DefineClass(counterClass, hostsim.ObjectClass)
	n := c.DefineField(h, "n", "I", false)
	c.DefineField(h, "total", "J", true)
	adder := func(scale int32) hostsim.MethodFunc {
		return func(h *hostsim.Host, recv svm.Ref, args []svm.Value) svm.Value {
			x := h.GetField(recv, n.ID(), svm.KindInt).Int() + scale*args[0].Int()
			h.SetField(recv, n.ID(), svm.IntValue(svm.KindInt, x))
			return svm.IntValue(svm.KindInt, x)
		}
	}
	c.DefineMethod(h, "add", "(I)I", false, adder(1))
	c.DefineMethod(h, "fail", "()I", true, func(h *hostsim.Host, _ svm.Ref, _ []svm.Value) svm.Value {
		h.ThrowNew(h.Class(svm.ArithmeticException).Ref(), "fail")
		return svm.Value{}
	})
	d := h.DefineClass(doublerClass, counterClass)
	d.DefineMethod(h, "add", "(I)I", false, adder(2))
}

func demoTables() *svm.Tables {
	return &svm.Tables{
		Constants: []string{
			counterClass,
			hostsim.ObjectClass,
			hostsim.StringClass,
			doublerClass,
			"java/lang/RuntimeException",
			"demo/Missing",
		},
		Methods: []svm.MethodRef{
			{Class: counterClass, Name: "add", Desc: "(I)I"},
			{Class: hostsim.MathClass, Name: "max", Desc: "(II)I"},
			{Class: counterClass, Name: "fail", Desc: "()I"},
			{Class: counterClass, Name: "missing", Desc: "()V"},
		},
		Fields: []svm.FieldRef{
			{Class: counterClass, Name: "n", Desc: "I"},
			{Class: counterClass, Name: "total", Desc: "J"},
			{Class: counterClass, Name: "nope", Desc: "I"},
		},
		MultiArrays: []svm.MultiArrayRef{
			{Class: "[[I", Dims: 2},
			{Class: "[[Ljava/lang/String;", Dims: 2},
		},
	}
}

func newDemoEnv(t testing.TB, mods ...func(*svm.Options)) *env {
	e := newEnv(t, mods...)
	defineDemo(e.host)
	return e
}

func TestBridge(t *testing.T) {
	t.Parallel()
	type testCase struct {
		Name string
		Prog []I

		Result svm.Word
		Halt   svm.Halt
		// Exception is the class of the exception left pending, if any.
		Exception string
		Check     func(t testing.TB, e *env, res svm.Word, locals []svm.Word)
	}
	tcs := []testCase{
		{
			Name:   "InvokeStatic",
			Prog:   []I{P(spec.PUSH, 3), P(spec.PUSH, 9), P(spec.INVOKESTATIC, 1)},
			Result: 9,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "InvokeStaticShortStack",
			Prog:   []I{P(spec.PUSH, 3), P(spec.INVOKESTATIC, 1)},
			Result: 0,
			Halt:   svm.HaltEnd,
			Check: func(t testing.TB, e *env, _ svm.Word, _ []svm.Word) {
				require.Equal(t, uint64(0), e.host.Stats().Calls)
			},
		},
		{
			Name: "InvokeVirtual",
			Prog: []I{
				P(spec.NEW, 0),
				P(spec.STORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 5),
				P(spec.INVOKEVIRTUAL, 0),
				P(spec.POP, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 7),
				P(spec.INVOKEVIRTUAL, 0),
			},
			Result: 12,
			Halt:   svm.HaltEnd,
			Check: func(t testing.TB, e *env, _ svm.Word, _ []svm.Word) {
				require.Equal(t, uint64(2), e.host.Stats().Calls)
				require.Equal(t, uint64(1), e.host.Stats().MethodID)
			},
		},
		{
			Name:   "InvokeVirtualDispatchesOnReceiver",
			Prog:   []I{P(spec.NEW, 3), P(spec.PUSH, 5), P(spec.INVOKEVIRTUAL, 0)},
			Result: 10,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "InvokeSpecialIgnoresOverride",
			Prog:   []I{P(spec.NEW, 3), P(spec.PUSH, 5), P(spec.INVOKESPECIAL, 0)},
			Result: 5,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "InvokeNullReceiver",
			Prog:      []I{P(spec.ACONST_NULL, 0), P(spec.PUSH, 1), P(spec.INVOKEVIRTUAL, 0)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NullPointerException,
		},
		{
			Name:      "InvokeThrowsPushesNothing",
			Prog:      []I{P(spec.PUSH, 1), P(spec.INVOKESTATIC, 2), P(spec.PUSH, 2)},
			Result:    1,
			Halt:      svm.HaltHost,
			Exception: svm.ArithmeticException,
		},
		{
			Name:      "InvokeMissingMethod",
			Prog:      []I{P(spec.NEW, 0), P(spec.INVOKEVIRTUAL, 3)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NoSuchMethodError,
		},
		{
			Name:   "Field",
			Prog:   []I{P(spec.NEW, 0), P(spec.DUP, 0), P(spec.PUSH, 41), P(spec.PUTFIELD, 0), P(spec.GETFIELD, 0)},
			Result: 41,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "FieldTruncatedToInt",
			Prog:   []I{P(spec.NEW, 0), P(spec.DUP, 0), P(spec.PUSH, 1<<32+3), P(spec.PUTFIELD, 0), P(spec.GETFIELD, 0)},
			Result: 3,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "GetFieldNull",
			Prog:      []I{P(spec.ACONST_NULL, 0), P(spec.GETFIELD, 0)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NullPointerException,
		},
		{
			Name:   "PutFieldShortStack",
			Prog:   []I{P(spec.PUSH, 1), P(spec.PUTFIELD, 0)},
			Result: 0,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "Static",
			Prog:   []I{P(spec.PUSH, 1<<40), P(spec.PUTSTATIC, 1), P(spec.GETSTATIC, 1)},
			Result: 1 << 40,
			Halt:   svm.HaltEnd,
			Check: func(t testing.TB, e *env, _ svm.Word, _ []svm.Word) {
				require.Equal(t, 1, e.host.LiveGlobalRefs())
			},
		},
		{
			Name:      "PutStaticUnknownConsumesValue",
			Prog:      []I{P(spec.PUSH, 5), P(spec.PUTSTATIC, 2)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NoSuchFieldError,
		},
		{
			Name: "IntArrayPinned",
			Prog: []I{
				P(spec.PUSH, 3),
				P(spec.NEWARRAY, 10),
				P(spec.STORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 1),
				P(spec.PUSH, 42),
				P(spec.IASTORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 1),
				P(spec.IALOAD, 0),
			},
			Result: 42,
			Halt:   svm.HaltEnd,
			Check: func(t testing.TB, e *env, _ svm.Word, locals []svm.Word) {
				require.Equal(t, uint64(1), e.m.Stats().ArrayPins)
				require.Equal(t, uint64(1), e.host.Stats().Pins)
				require.Equal(t, uint64(1), e.host.Stats().Releases)
				elems := e.host.Elements(svm.Ref(locals[0]))
				require.Len(t, elems, 3)
				require.Equal(t, int32(42), elems[1].Int())
			},
		},
		{
			Name: "ByteArrayTruncates",
			Prog: []I{
				P(spec.PUSH, 2),
				P(spec.NEWARRAY, 8),
				P(spec.STORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 0),
				P(spec.PUSH, 200),
				P(spec.BASTORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 0),
				P(spec.BALOAD, 0),
			},
			Result: -56,
			Halt:   svm.HaltEnd,
		},
		{
			Name: "DoubleArray",
			Prog: []I{
				P(spec.PUSH, 1),
				P(spec.NEWARRAY, 7),
				P(spec.DUP, 0),
				P(spec.PUSH, 0),
				P(spec.PUSH, dw(2.5)),
				P(spec.DASTORE, 0),
				P(spec.PUSH, 0),
				P(spec.DALOAD, 0),
			},
			Result: dw(2.5),
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "ArrayLength",
			Prog:   []I{P(spec.PUSH, 3), P(spec.NEWARRAY, 10), P(spec.ARRAYLENGTH, 0)},
			Result: 3,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "ArrayOutOfBounds",
			Prog:      []I{P(spec.PUSH, 3), P(spec.NEWARRAY, 10), P(spec.PUSH, 3), P(spec.IALOAD, 0)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.ArrayIndexOutOfBoundsException,
			Check: func(t testing.TB, e *env, _ svm.Word, _ []svm.Word) {
				require.Equal(t, "Index 3 out of bounds for length 3", e.host.Message(e.host.PendingException()))
			},
		},
		{
			Name:      "ArrayLengthNull",
			Prog:      []I{P(spec.ACONST_NULL, 0), P(spec.ARRAYLENGTH, 0)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NullPointerException,
		},
		{
			Name:   "NewArrayBadTypePushesNull",
			Prog:   []I{P(spec.PUSH, 3), P(spec.NEWARRAY, 99), P(spec.IFNULL, 5), P(spec.PUSH, 1), P(spec.HALT, 0), P(spec.PUSH, 2)},
			Result: 2,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "NewArrayNegative",
			Prog:      []I{P(spec.PUSH, -1), P(spec.NEWARRAY, 10)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NegativeArraySizeException,
		},
		{
			Name:   "RefArray",
			Prog:   []I{P(spec.PUSH, 2), P(spec.ANEWARRAY, 2), P(spec.ARRAYLENGTH, 0)},
			Result: 2,
			Halt:   svm.HaltEnd,
		},
		{
			Name: "RefArrayStoreLoad",
			Prog: []I{
				P(spec.PUSH, 2),
				P(spec.ANEWARRAY, 1),
				P(spec.STORE, 0),
				P(spec.NEW, 0),
				P(spec.STORE, 1),
				P(spec.LOAD, 0),
				P(spec.PUSH, 1),
				P(spec.LOAD, 1),
				P(spec.AASTORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 1),
				P(spec.AALOAD, 0),
				P(spec.LOAD, 1),
				P(spec.IF_ACMPEQ, 16),
				P(spec.PUSH, 0),
				P(spec.HALT, 0),
				P(spec.PUSH, 1),
			},
			Result: 1,
			Halt:   svm.HaltEnd,
		},
		{
			Name: "MultiArray",
			Prog: []I{
				P(spec.PUSH, 2),
				P(spec.PUSH, 3),
				P(spec.MULTIANEWARRAY, 0),
				P(spec.STORE, 0),
				P(spec.LOAD, 0),
				P(spec.PUSH, 1),
				P(spec.AALOAD, 0),
				P(spec.ARRAYLENGTH, 0),
			},
			Result: 3,
			Halt:   svm.HaltEnd,
			Check: func(t testing.TB, e *env, _ svm.Word, locals []svm.Word) {
				outer := svm.Ref(locals[0])
				require.Equal(t, "[[I", e.host.ClassOf(outer).Name)
				require.Len(t, e.host.Elements(outer), 2)
			},
		},
		{
			Name:   "MultiArrayOfObjects",
			Prog:   []I{P(spec.PUSH, 2), P(spec.PUSH, 4), P(spec.MULTIANEWARRAY, 1), P(spec.PUSH, 0), P(spec.AALOAD, 0), P(spec.ARRAYLENGTH, 0)},
			Result: 4,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "MultiArrayNegative",
			Prog:      []I{P(spec.PUSH, 2), P(spec.PUSH, -1), P(spec.MULTIANEWARRAY, 0)},
			Result:    0,
			Halt:      svm.HaltHost,
			Exception: svm.NegativeArraySizeException,
		},
		{
			Name:   "CheckCastKeepsObject",
			Prog:   []I{P(spec.NEW, 0), P(spec.CHECKCAST, 1), P(spec.INSTANCEOF, 0)},
			Result: 1,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "CheckCastFails",
			Prog:      []I{P(spec.NEW, 0), P(spec.CHECKCAST, 2)},
			Halt:      svm.HaltHost,
			Exception: svm.ClassCastException,
			Check: func(t testing.TB, e *env, res svm.Word, _ []svm.Word) {
				require.Equal(t, counterClass, e.host.ClassOf(svm.Ref(res)).Name)
			},
		},
		{
			Name:   "CheckCastNull",
			Prog:   []I{P(spec.ACONST_NULL, 0), P(spec.CHECKCAST, 2), P(spec.IFNULL, 5), P(spec.PUSH, 1), P(spec.HALT, 0), P(spec.PUSH, 2)},
			Result: 2,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "InstanceOfSuperclass",
			Prog:   []I{P(spec.NEW, 3), P(spec.INSTANCEOF, 0)},
			Result: 1,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "InstanceOfFalse",
			Prog:   []I{P(spec.PUSH, 7), P(spec.NEW, 0), P(spec.INSTANCEOF, 3), P(spec.ADD, 0)},
			Result: 7,
			Halt:   svm.HaltEnd,
		},
		{
			Name:   "InstanceOfNull",
			Prog:   []I{P(spec.PUSH, 7), P(spec.ACONST_NULL, 0), P(spec.INSTANCEOF, 0), P(spec.ADD, 0)},
			Result: 7,
			Halt:   svm.HaltEnd,
		},
		{
			Name: "Monitor",
			Prog: []I{
				P(spec.NEW, 0),
				P(spec.STORE, 0),
				P(spec.LOAD, 0),
				P(spec.MONITORENTER, 0),
				P(spec.LOAD, 0),
				P(spec.MONITORENTER, 0),
				P(spec.LOAD, 0),
				P(spec.MONITOREXIT, 0),
			},
			Halt: svm.HaltEnd,
			Check: func(t testing.TB, e *env, _ svm.Word, locals []svm.Word) {
				require.Equal(t, 1, e.host.Monitors(svm.Ref(locals[0])))
			},
		},
		{
			Name:      "MonitorExitNotOwned",
			Prog:      []I{P(spec.NEW, 0), P(spec.MONITOREXIT, 0)},
			Halt:      svm.HaltHost,
			Exception: hostsim.IllegalMonitorStateException,
		},
		{
			Name:      "Athrow",
			Prog:      []I{P(spec.NEW, 4), P(spec.ATHROW, 0), P(spec.PUSH, 1)},
			Halt:      svm.HaltHost,
			Exception: "java/lang/RuntimeException",
		},
		{
			Name: "AthrowInTry",
			Prog: []I{
				P(spec.TRY_START, 1),
				P(spec.NEW, 4),
				P(spec.ATHROW, 0),
				P(spec.EXCEPTION_CHECK, 5),
				P(spec.HALT, 0),
				P(spec.INSTANCEOF, 4),
			},
			Result: 1,
			Halt:   svm.HaltEnd,
		},
		{
			Name:      "UnknownClass",
			Prog:      []I{P(spec.NEW, 5)},
			Halt:      svm.HaltHost,
			Exception: svm.NoClassDefFoundError,
		},
		{
			Name: "MissingTableEntry",
			Prog: []I{P(spec.PUSH, 1), P(spec.NEW, 99)},
			Result: 1,
			Halt: svm.HaltInvalid,
		},
	}
	for i, tc := range tcs {
		tc := tc
		seed := uint64(i)*0x9e37 + 1
		t.Run(tc.Name, func(t *testing.T) {
			t.Parallel()
			e := newDemoEnv(t)
			locals := make([]svm.Word, 2)
			res := e.run(t, seed, tc.Prog, locals, demoTables())
			if tc.Check == nil || tc.Result != 0 {
				require.Equal(t, tc.Result, res)
			}
			require.Equal(t, tc.Halt, e.m.LastHalt())
			if tc.Exception == "" {
				require.False(t, e.host.ExceptionCheck())
			} else {
				require.True(t, e.host.ExceptionCheck())
				require.Equal(t, tc.Exception, e.host.ClassOf(e.host.PendingException()).Name)
			}
			if tc.Check != nil {
				tc.Check(t, e, res, locals)
			}
		})
	}
}

func TestReentrantInvoke(t *testing.T) {
	e := newDemoEnv(t)
	inner := []I{P(spec.LOAD, 0), P(spec.PUSH, 2), P(spec.MUL, 0)}
	c := e.host.DefineClass("demo/Reenter", hostsim.ObjectClass)
	c.DefineMethod(e.host, "twice", "(J)J", true, func(h *hostsim.Host, _ svm.Ref, args []svm.Value) svm.Value {
		prog := e.encode(t, 77, inner)
		res := e.m.Execute(e.ctx, prog, []svm.Word{args[0].Long()}, 77, nil)
		// replace the secret state while the outer call is suspended
		e.m.Scramble().Init(12345)
		return svm.LongValue(res)
	})
	tabs := &svm.Tables{Methods: []svm.MethodRef{{Class: "demo/Reenter", Name: "twice", Desc: "(J)J"}}}
	outer := []I{
		P(spec.PUSH, 20),
		P(spec.INVOKESTATIC, 0),
		P(spec.PUSH, 1),
		P(spec.ADD, 0),
		P(spec.HALT, 0),
	}
	require.Equal(t, svm.Word(41), e.run(t, 5, outer, nil, tabs))
	require.Equal(t, svm.HaltOp, e.m.LastHalt())
	require.Equal(t, uint64(2), e.m.Stats().Calls)
}

func TestPinsReleasedOnHalt(t *testing.T) {
	e := newDemoEnv(t)
	prog := []I{
		P(spec.PUSH, 2),
		P(spec.NEWARRAY, 10),
		P(spec.STORE, 0),
		P(spec.LOAD, 0),
		P(spec.PUSH, 0),
		P(spec.PUSH, 5),
		P(spec.IASTORE, 0),
		P(spec.LOAD, 0),
		P(spec.PUSH, 0),
		P(spec.PUSH, 6),
		P(spec.IASTORE, 0),
		P(spec.LOAD, 0),
		P(spec.PUSH, 9),
		P(spec.IALOAD, 0),
	}
	locals := make([]svm.Word, 1)
	e.run(t, 3, prog, locals, nil)
	require.Equal(t, svm.HaltHost, e.m.LastHalt())
	require.Equal(t, uint64(1), e.host.Stats().Pins)
	require.Equal(t, uint64(1), e.host.Stats().Releases)
	require.Equal(t, int32(6), e.host.Elements(svm.Ref(locals[0]))[0].Int())
}

func TestPinsReleasedBeforeInvoke(t *testing.T) {
	e := newDemoEnv(t)
	c := e.host.DefineClass("demo/Reader", hostsim.ObjectClass)
	c.DefineMethod(e.host, "first", "([I)I", true, func(h *hostsim.Host, _ svm.Ref, args []svm.Value) svm.Value {
		return h.Elements(args[0].Ref())[0]
	})
	tabs := &svm.Tables{Methods: []svm.MethodRef{{Class: "demo/Reader", Name: "first", Desc: "([I)I"}}}
	prog := []I{
		P(spec.PUSH, 1),
		P(spec.NEWARRAY, 10),
		P(spec.STORE, 0),
		P(spec.LOAD, 0),
		P(spec.PUSH, 0),
		P(spec.PUSH, 5),
		P(spec.IASTORE, 0),
		P(spec.LOAD, 0),
		P(spec.PUSH, 0),
		P(spec.PUSH, 8),
		P(spec.IASTORE, 0),
		P(spec.LOAD, 0),
		P(spec.INVOKESTATIC, 0),
	}
	require.Equal(t, svm.Word(8), e.run(t, 3, prog, make([]svm.Word, 1), tabs))
}
