package spec

import "fmt"

// Class groups ops by the part of the machine they touch.
type Class uint8

const (
	ClassInvalid Class = iota
	ClassControl
	ClassDecoy
	ClassConst
	ClassStack
	ClassLocals
	ClassArith
	ClassConvert
	ClassBranch
	// ClassArray ops read or write array elements through the host.
	ClassArray
	// ClassObject ops allocate, type check or lock host objects.
	ClassObject
	ClassField
	ClassInvoke
	ClassException
)

func (c Class) String() string {
	switch c {
	case ClassControl:
		return "control"
	case ClassDecoy:
		return "decoy"
	case ClassConst:
		return "const"
	case ClassStack:
		return "stack"
	case ClassLocals:
		return "locals"
	case ClassArith:
		return "arith"
	case ClassConvert:
		return "convert"
	case ClassBranch:
		return "branch"
	case ClassArray:
		return "array"
	case ClassObject:
		return "object"
	case ClassField:
		return "field"
	case ClassInvoke:
		return "invoke"
	case ClassException:
		return "exception"
	default:
		return "invalid"
	}
}

// OperandKind says how the decoded operand of an op is interpreted.
type OperandKind uint8

const (
	OperandNone OperandKind = iota
	// OperandImm is pushed as is.
	OperandImm
	// OperandLocal is an index into the locals.
	OperandLocal
	// OperandIinc packs a local index (low 32 bits) and an increment (high 32 bits).
	OperandIinc
	// OperandTarget is an absolute instruction index.
	OperandTarget
	// OperandClass indexes the constant pool.
	OperandClass
	// OperandArrayType is a primitive array type code (4..11).
	OperandArrayType
	OperandMultiArray
	OperandField
	OperandMethod
	OperandTableSwitch
	OperandLookupSwitch
)

// Info is information about an Op
type Info struct {
	Name    string
	Class   Class
	Operand OperandKind
}

func (o Op) Info() Info {
	return infos[o]
}

func (o Op) String() string {
	if inf := infos[o]; inf.Name != "" {
		return inf.Name
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Class returns the class of the op. Invalid ops return ClassInvalid.
func (o Op) Class() Class {
	return infos[o].Class
}

// Operand returns the way the operand of o is interpreted.
func (o Op) Operand() OperandKind {
	return infos[o].Operand
}

// IsJITable returns true if the op can be part of a compiled program.
// Ops which resolve members, allocate objects or manage exceptions are always interpreted.
func (o Op) IsJITable() bool {
	switch infos[o].Class {
	case ClassInvalid, ClassObject, ClassField, ClassInvoke, ClassException:
		return false
	}
	return true
}

// IsBranch returns true if the op may overwrite the program counter.
func (o Op) IsBranch() bool {
	return infos[o].Operand == OperandTarget || o == TABLESWITCH || o == LOOKUPSWITCH
}

var infos = func() (ret [1 << OpBits]Info) {
	type entry struct {
		name  string
		class Class
		opnd  OperandKind
	}
	m := map[Op]entry{
		PUSH:  {"PUSH", ClassConst, OperandImm},
		PRINT: {"PRINT", ClassControl, OperandNone},
		HALT:  {"HALT", ClassControl, OperandNone},

		NOP:   {"NOP", ClassDecoy, OperandNone},
		JUNK1: {"JUNK1", ClassDecoy, OperandNone},
		JUNK2: {"JUNK2", ClassDecoy, OperandNone},

		// constants
		LDC:         {"LDC", ClassConst, OperandImm},
		LDC_W:       {"LDC_W", ClassConst, OperandImm},
		LDC2_W:      {"LDC2_W", ClassConst, OperandImm},
		FCONST_0:    {"FCONST_0", ClassConst, OperandNone},
		FCONST_1:    {"FCONST_1", ClassConst, OperandNone},
		FCONST_2:    {"FCONST_2", ClassConst, OperandNone},
		DCONST_0:    {"DCONST_0", ClassConst, OperandNone},
		DCONST_1:    {"DCONST_1", ClassConst, OperandNone},
		LCONST_0:    {"LCONST_0", ClassConst, OperandNone},
		LCONST_1:    {"LCONST_1", ClassConst, OperandNone},
		ACONST_NULL: {"ACONST_NULL", ClassConst, OperandNone},

		// stack
		SWAP:    {"SWAP", ClassStack, OperandNone},
		DUP:     {"DUP", ClassStack, OperandNone},
		POP:     {"POP", ClassStack, OperandNone},
		POP2:    {"POP2", ClassStack, OperandNone},
		DUP_X1:  {"DUP_X1", ClassStack, OperandNone},
		DUP_X2:  {"DUP_X2", ClassStack, OperandNone},
		DUP2:    {"DUP2", ClassStack, OperandNone},
		DUP2_X1: {"DUP2_X1", ClassStack, OperandNone},
		DUP2_X2: {"DUP2_X2", ClassStack, OperandNone},

		// locals
		LOAD:   {"LOAD", ClassLocals, OperandLocal},
		LLOAD:  {"LLOAD", ClassLocals, OperandLocal},
		FLOAD:  {"FLOAD", ClassLocals, OperandLocal},
		DLOAD:  {"DLOAD", ClassLocals, OperandLocal},
		ALOAD:  {"ALOAD", ClassLocals, OperandLocal},
		STORE:  {"STORE", ClassLocals, OperandLocal},
		LSTORE: {"LSTORE", ClassLocals, OperandLocal},
		FSTORE: {"FSTORE", ClassLocals, OperandLocal},
		DSTORE: {"DSTORE", ClassLocals, OperandLocal},
		ASTORE: {"ASTORE", ClassLocals, OperandLocal},
		IINC:   {"IINC", ClassLocals, OperandIinc},

		// arithmetic
		ADD:  {"ADD", ClassArith, OperandNone},
		SUB:  {"SUB", ClassArith, OperandNone},
		MUL:  {"MUL", ClassArith, OperandNone},
		DIV:  {"DIV", ClassArith, OperandNone},
		REM:  {"REM", ClassArith, OperandNone},
		NEG:  {"NEG", ClassArith, OperandNone},
		AND:  {"AND", ClassArith, OperandNone},
		OR:   {"OR", ClassArith, OperandNone},
		XOR:  {"XOR", ClassArith, OperandNone},
		SHL:  {"SHL", ClassArith, OperandNone},
		SHR:  {"SHR", ClassArith, OperandNone},
		USHR: {"USHR", ClassArith, OperandNone},

		IADD:  {"IADD", ClassArith, OperandNone},
		ISUB:  {"ISUB", ClassArith, OperandNone},
		IMUL:  {"IMUL", ClassArith, OperandNone},
		IDIV:  {"IDIV", ClassArith, OperandNone},
		IREM:  {"IREM", ClassArith, OperandNone},
		INEG:  {"INEG", ClassArith, OperandNone},
		ISHL:  {"ISHL", ClassArith, OperandNone},
		ISHR:  {"ISHR", ClassArith, OperandNone},
		IUSHR: {"IUSHR", ClassArith, OperandNone},

		LADD:  {"LADD", ClassArith, OperandNone},
		LSUB:  {"LSUB", ClassArith, OperandNone},
		LMUL:  {"LMUL", ClassArith, OperandNone},
		LDIV:  {"LDIV", ClassArith, OperandNone},
		LREM:  {"LREM", ClassArith, OperandNone},
		LAND:  {"LAND", ClassArith, OperandNone},
		LOR:   {"LOR", ClassArith, OperandNone},
		LXOR:  {"LXOR", ClassArith, OperandNone},
		LSHL:  {"LSHL", ClassArith, OperandNone},
		LSHR:  {"LSHR", ClassArith, OperandNone},
		LUSHR: {"LUSHR", ClassArith, OperandNone},
		LCMP:  {"LCMP", ClassArith, OperandNone},

		FADD:  {"FADD", ClassArith, OperandNone},
		FSUB:  {"FSUB", ClassArith, OperandNone},
		FMUL:  {"FMUL", ClassArith, OperandNone},
		FDIV:  {"FDIV", ClassArith, OperandNone},
		FREM:  {"FREM", ClassArith, OperandNone},
		FNEG:  {"FNEG", ClassArith, OperandNone},
		FCMPL: {"FCMPL", ClassArith, OperandNone},
		FCMPG: {"FCMPG", ClassArith, OperandNone},

		DADD:  {"DADD", ClassArith, OperandNone},
		DSUB:  {"DSUB", ClassArith, OperandNone},
		DMUL:  {"DMUL", ClassArith, OperandNone},
		DDIV:  {"DDIV", ClassArith, OperandNone},
		DREM:  {"DREM", ClassArith, OperandNone},
		DNEG:  {"DNEG", ClassArith, OperandNone},
		DCMPL: {"DCMPL", ClassArith, OperandNone},
		DCMPG: {"DCMPG", ClassArith, OperandNone},

		// conversions
		I2L: {"I2L", ClassConvert, OperandNone},
		I2B: {"I2B", ClassConvert, OperandNone},
		I2C: {"I2C", ClassConvert, OperandNone},
		I2S: {"I2S", ClassConvert, OperandNone},
		I2F: {"I2F", ClassConvert, OperandNone},
		I2D: {"I2D", ClassConvert, OperandNone},
		L2I: {"L2I", ClassConvert, OperandNone},
		L2F: {"L2F", ClassConvert, OperandNone},
		L2D: {"L2D", ClassConvert, OperandNone},
		F2I: {"F2I", ClassConvert, OperandNone},
		F2L: {"F2L", ClassConvert, OperandNone},
		F2D: {"F2D", ClassConvert, OperandNone},
		D2I: {"D2I", ClassConvert, OperandNone},
		D2L: {"D2L", ClassConvert, OperandNone},
		D2F: {"D2F", ClassConvert, OperandNone},

		// control transfer
		GOTO:         {"GOTO", ClassBranch, OperandTarget},
		GOTO_W:       {"GOTO_W", ClassBranch, OperandTarget},
		IF_ICMPEQ:    {"IF_ICMPEQ", ClassBranch, OperandTarget},
		IF_ICMPNE:    {"IF_ICMPNE", ClassBranch, OperandTarget},
		IF_ICMPLT:    {"IF_ICMPLT", ClassBranch, OperandTarget},
		IF_ICMPLE:    {"IF_ICMPLE", ClassBranch, OperandTarget},
		IF_ICMPGT:    {"IF_ICMPGT", ClassBranch, OperandTarget},
		IF_ICMPGE:    {"IF_ICMPGE", ClassBranch, OperandTarget},
		IF_ICMPEQ_W:  {"IF_ICMPEQ_W", ClassBranch, OperandTarget},
		IF_ICMPNE_W:  {"IF_ICMPNE_W", ClassBranch, OperandTarget},
		IF_ICMPLT_W:  {"IF_ICMPLT_W", ClassBranch, OperandTarget},
		IF_ICMPLE_W:  {"IF_ICMPLE_W", ClassBranch, OperandTarget},
		IF_ICMPGT_W:  {"IF_ICMPGT_W", ClassBranch, OperandTarget},
		IF_ICMPGE_W:  {"IF_ICMPGE_W", ClassBranch, OperandTarget},
		IFEQ:         {"IFEQ", ClassBranch, OperandTarget},
		IFNE:         {"IFNE", ClassBranch, OperandTarget},
		IFLT:         {"IFLT", ClassBranch, OperandTarget},
		IFGE:         {"IFGE", ClassBranch, OperandTarget},
		IFGT:         {"IFGT", ClassBranch, OperandTarget},
		IFLE:         {"IFLE", ClassBranch, OperandTarget},
		IFNULL:       {"IFNULL", ClassBranch, OperandTarget},
		IFNONNULL:    {"IFNONNULL", ClassBranch, OperandTarget},
		IFNULL_W:     {"IFNULL_W", ClassBranch, OperandTarget},
		IFNONNULL_W:  {"IFNONNULL_W", ClassBranch, OperandTarget},
		IF_ACMPEQ:    {"IF_ACMPEQ", ClassBranch, OperandTarget},
		IF_ACMPNE:    {"IF_ACMPNE", ClassBranch, OperandTarget},
		IF_ACMPEQ_W:  {"IF_ACMPEQ_W", ClassBranch, OperandTarget},
		IF_ACMPNE_W:  {"IF_ACMPNE_W", ClassBranch, OperandTarget},
		TABLESWITCH:  {"TABLESWITCH", ClassBranch, OperandTableSwitch},
		LOOKUPSWITCH: {"LOOKUPSWITCH", ClassBranch, OperandLookupSwitch},

		// arrays
		ARRAYLENGTH: {"ARRAYLENGTH", ClassArray, OperandNone},
		IALOAD:      {"IALOAD", ClassArray, OperandNone},
		LALOAD:      {"LALOAD", ClassArray, OperandNone},
		FALOAD:      {"FALOAD", ClassArray, OperandNone},
		DALOAD:      {"DALOAD", ClassArray, OperandNone},
		AALOAD:      {"AALOAD", ClassArray, OperandNone},
		BALOAD:      {"BALOAD", ClassArray, OperandNone},
		CALOAD:      {"CALOAD", ClassArray, OperandNone},
		SALOAD:      {"SALOAD", ClassArray, OperandNone},
		IASTORE:     {"IASTORE", ClassArray, OperandNone},
		LASTORE:     {"LASTORE", ClassArray, OperandNone},
		FASTORE:     {"FASTORE", ClassArray, OperandNone},
		DASTORE:     {"DASTORE", ClassArray, OperandNone},
		AASTORE:     {"AASTORE", ClassArray, OperandNone},
		BASTORE:     {"BASTORE", ClassArray, OperandNone},
		CASTORE:     {"CASTORE", ClassArray, OperandNone},
		SASTORE:     {"SASTORE", ClassArray, OperandNone},

		// objects
		NEW:            {"NEW", ClassObject, OperandClass},
		ANEWARRAY:      {"ANEWARRAY", ClassObject, OperandClass},
		NEWARRAY:       {"NEWARRAY", ClassObject, OperandArrayType},
		MULTIANEWARRAY: {"MULTIANEWARRAY", ClassObject, OperandMultiArray},
		CHECKCAST:      {"CHECKCAST", ClassObject, OperandClass},
		INSTANCEOF:     {"INSTANCEOF", ClassObject, OperandClass},
		MONITORENTER:   {"MONITORENTER", ClassObject, OperandNone},
		MONITOREXIT:    {"MONITOREXIT", ClassObject, OperandNone},

		// fields
		GETSTATIC: {"GETSTATIC", ClassField, OperandField},
		PUTSTATIC: {"PUTSTATIC", ClassField, OperandField},
		GETFIELD:  {"GETFIELD", ClassField, OperandField},
		PUTFIELD:  {"PUTFIELD", ClassField, OperandField},

		// methods
		INVOKESTATIC:    {"INVOKESTATIC", ClassInvoke, OperandMethod},
		INVOKEVIRTUAL:   {"INVOKEVIRTUAL", ClassInvoke, OperandMethod},
		INVOKESPECIAL:   {"INVOKESPECIAL", ClassInvoke, OperandMethod},
		INVOKEINTERFACE: {"INVOKEINTERFACE", ClassInvoke, OperandMethod},
		INVOKEDYNAMIC:   {"INVOKEDYNAMIC", ClassInvoke, OperandMethod},

		// exceptions
		ATHROW:          {"ATHROW", ClassException, OperandNone},
		TRY_START:       {"TRY_START", ClassException, OperandTarget},
		CATCH_HANDLER:   {"CATCH_HANDLER", ClassException, OperandTarget},
		FINALLY_HANDLER: {"FINALLY_HANDLER", ClassException, OperandTarget},
		EXCEPTION_CHECK: {"EXCEPTION_CHECK", ClassException, OperandTarget},
		EXCEPTION_CLEAR: {"EXCEPTION_CLEAR", ClassException, OperandNone},
	}
	for k, v := range m {
		ret[k] = Info{Name: v.name, Class: v.class, Operand: v.opnd}
	}
	return ret
}()
