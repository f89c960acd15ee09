package svm

import (
	"math"

	"shroudvm.org/shroud/spec"
)

func f32(w Word) float32 { return math.Float32frombits(uint32(w)) }
func f32w(x float32) Word { return Word(int32(math.Float32bits(x))) }
func f64(w Word) float64 { return math.Float64frombits(uint64(w)) }
func f64w(x float64) Word { return Word(math.Float64bits(x)) }

// toInt32 converts x with saturation. NaN converts to 0.
func toInt32(x float64) int32 {
	switch {
	case x != x:
		return 0
	case x >= math.MaxInt32:
		return math.MaxInt32
	case x <= math.MinInt32:
		return math.MinInt32
	default:
		return int32(x)
	}
}

// toInt64 converts x with saturation. NaN converts to 0.
func toInt64(x float64) int64 {
	switch {
	case x != x:
		return 0
	case x >= math.MaxInt64:
		return math.MaxInt64
	case x <= math.MinInt64:
		return math.MinInt64
	default:
		return int64(x)
	}
}

func cmp3[T int64 | float64](a, b T, nan Word) Word {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	case a == b:
		return 0
	default:
		return nan
	}
}

func i32(w Word) Word { return Word(int32(w)) }

// binaryFns holds the two operand instructions which cannot fail.
var binaryFns = [spec.OpCount]func(a, b Word) Word{
	spec.ADD:  func(a, b Word) Word { return a + b },
	spec.LADD: func(a, b Word) Word { return a + b },
	spec.SUB:  func(a, b Word) Word { return a - b },
	spec.LSUB: func(a, b Word) Word { return a - b },
	spec.MUL:  func(a, b Word) Word { return a * b },
	spec.LMUL: func(a, b Word) Word { return a * b },

	spec.IADD: func(a, b Word) Word { return Word(int32(a) + int32(b)) },
	spec.ISUB: func(a, b Word) Word { return Word(int32(a) - int32(b)) },
	spec.IMUL: func(a, b Word) Word { return Word(int32(a) * int32(b)) },

	spec.AND:  func(a, b Word) Word { return a & b },
	spec.LAND: func(a, b Word) Word { return a & b },
	spec.OR:   func(a, b Word) Word { return a | b },
	spec.LOR:  func(a, b Word) Word { return a | b },
	spec.XOR:  func(a, b Word) Word { return a ^ b },
	spec.LXOR: func(a, b Word) Word { return a ^ b },

	spec.SHL:   func(a, b Word) Word { return a << (uint64(b) & 63) },
	spec.LSHL:  func(a, b Word) Word { return a << (uint64(b) & 63) },
	spec.SHR:   func(a, b Word) Word { return a >> (uint64(b) & 63) },
	spec.LSHR:  func(a, b Word) Word { return a >> (uint64(b) & 63) },
	spec.USHR:  func(a, b Word) Word { return Word(uint64(a) >> (uint64(b) & 63)) },
	spec.LUSHR: func(a, b Word) Word { return Word(uint64(a) >> (uint64(b) & 63)) },
	spec.ISHL:  func(a, b Word) Word { return Word(int32(a) << (uint32(b) & 31)) },
	spec.ISHR:  func(a, b Word) Word { return Word(int32(a) >> (uint32(b) & 31)) },
	spec.IUSHR: func(a, b Word) Word { return Word(int32(uint32(a) >> (uint32(b) & 31))) },

	spec.FADD: func(a, b Word) Word { return f32w(f32(a) + f32(b)) },
	spec.FSUB: func(a, b Word) Word { return f32w(f32(a) - f32(b)) },
	spec.FMUL: func(a, b Word) Word { return f32w(f32(a) * f32(b)) },
	spec.FDIV: func(a, b Word) Word { return f32w(f32(a) / f32(b)) },
	spec.FREM: func(a, b Word) Word { return f32w(float32(math.Mod(float64(f32(a)), float64(f32(b))))) },
	spec.DADD: func(a, b Word) Word { return f64w(f64(a) + f64(b)) },
	spec.DSUB: func(a, b Word) Word { return f64w(f64(a) - f64(b)) },
	spec.DMUL: func(a, b Word) Word { return f64w(f64(a) * f64(b)) },
	spec.DDIV: func(a, b Word) Word { return f64w(f64(a) / f64(b)) },
	spec.DREM: func(a, b Word) Word { return f64w(math.Mod(f64(a), f64(b))) },

	spec.LCMP:  func(a, b Word) Word { return cmp3(a, b, 0) },
	spec.FCMPL: func(a, b Word) Word { return cmp3(float64(f32(a)), float64(f32(b)), -1) },
	spec.FCMPG: func(a, b Word) Word { return cmp3(float64(f32(a)), float64(f32(b)), 1) },
	spec.DCMPL: func(a, b Word) Word { return cmp3(f64(a), f64(b), -1) },
	spec.DCMPG: func(a, b Word) Word { return cmp3(f64(a), f64(b), 1) },
}

var unaryFns = [spec.OpCount]func(a Word) Word{
	spec.NEG:  func(a Word) Word { return -a },
	spec.INEG: func(a Word) Word { return Word(-int32(a)) },
	spec.FNEG: func(a Word) Word { return f32w(-f32(a)) },
	spec.DNEG: func(a Word) Word { return f64w(-f64(a)) },

	spec.I2L: i32,
	spec.L2I: i32,
	spec.I2B: func(a Word) Word { return Word(int8(a)) },
	spec.I2C: func(a Word) Word { return Word(uint16(a)) },
	spec.I2S: func(a Word) Word { return Word(int16(a)) },
	spec.I2F: func(a Word) Word { return f32w(float32(int32(a))) },
	spec.I2D: func(a Word) Word { return f64w(float64(int32(a))) },
	spec.L2F: func(a Word) Word { return f32w(float32(a)) },
	spec.L2D: func(a Word) Word { return f64w(float64(a)) },
	spec.F2I: func(a Word) Word { return Word(toInt32(float64(f32(a)))) },
	spec.F2L: func(a Word) Word { return toInt64(float64(f32(a))) },
	spec.F2D: func(a Word) Word { return f64w(float64(f32(a))) },
	spec.D2I: func(a Word) Word { return Word(toInt32(f64(a))) },
	spec.D2L: func(a Word) Word { return toInt64(f64(a)) },
	spec.D2F: func(a Word) Word { return f32w(float32(f64(a))) },
}

// compareFns holds the branches which pop two operands.
var compareFns = [spec.OpCount]func(a, b Word) bool{
	spec.IF_ICMPEQ: func(a, b Word) bool { return a == b },
	spec.IF_ICMPNE: func(a, b Word) bool { return a != b },
	spec.IF_ICMPLT: func(a, b Word) bool { return a < b },
	spec.IF_ICMPLE: func(a, b Word) bool { return a <= b },
	spec.IF_ICMPGT: func(a, b Word) bool { return a > b },
	spec.IF_ICMPGE: func(a, b Word) bool { return a >= b },

	spec.IF_ICMPEQ_W: func(a, b Word) bool { return a == b },
	spec.IF_ICMPNE_W: func(a, b Word) bool { return a != b },
	spec.IF_ICMPLT_W: func(a, b Word) bool { return a < b },
	spec.IF_ICMPLE_W: func(a, b Word) bool { return a <= b },
	spec.IF_ICMPGT_W: func(a, b Word) bool { return a > b },
	spec.IF_ICMPGE_W: func(a, b Word) bool { return a >= b },

	spec.IF_ACMPEQ:   func(a, b Word) bool { return a == b },
	spec.IF_ACMPNE:   func(a, b Word) bool { return a != b },
	spec.IF_ACMPEQ_W: func(a, b Word) bool { return a == b },
	spec.IF_ACMPNE_W: func(a, b Word) bool { return a != b },
}

// testFns holds the branches which pop one operand.
var testFns = [spec.OpCount]func(a Word) bool{
	spec.IFNULL:      func(a Word) bool { return a == 0 },
	spec.IFNULL_W:    func(a Word) bool { return a == 0 },
	spec.IFNONNULL:   func(a Word) bool { return a != 0 },
	spec.IFNONNULL_W: func(a Word) bool { return a != 0 },

	spec.IFEQ: func(a Word) bool { return int32(a) == 0 },
	spec.IFNE: func(a Word) bool { return int32(a) != 0 },
	spec.IFLT: func(a Word) bool { return int32(a) < 0 },
	spec.IFGE: func(a Word) bool { return int32(a) >= 0 },
	spec.IFGT: func(a Word) bool { return int32(a) > 0 },
	spec.IFLE: func(a Word) bool { return int32(a) <= 0 },
}
