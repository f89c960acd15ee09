// package spec contains the instruction set of the shroud virtual machine
package spec

// OpBits is the number of bits needed to encode an Op
const OpBits = 8

// Op is a plain (unscrambled) instruction kind.
type Op uint8

// The numbering of the first 129 ops is fixed; programs produced by older
// translators depend on it.
const (
	// PUSH pushes the operand.
	PUSH Op = iota
	ADD
	SUB
	MUL
	DIV
	// PRINT pops the top of the stack and writes it to the machine's output.
	PRINT
	// HALT stops execution and returns the top of the stack.
	HALT

	// NOP, JUNK1 and JUNK2 are decoys. They consume a dispatch cycle and nothing else.
	NOP
	JUNK1
	JUNK2

	SWAP
	DUP
	LOAD
	IF_ICMPEQ
	IF_ICMPNE
	GOTO
	STORE
	AND
	OR
	XOR
	SHL
	SHR
	USHR
	IF_ICMPLT
	IF_ICMPLE
	IF_ICMPGT
	IF_ICMPGE
	I2L
	I2B
	I2C
	I2S
	NEG
	ALOAD
	ASTORE
	AALOAD
	AASTORE
	INVOKESTATIC
	LLOAD
	FLOAD
	DLOAD
	LSTORE
	FSTORE
	DSTORE
	LADD
	LSUB
	LMUL
	LDIV
	FADD
	FSUB
	FMUL
	FDIV
	DADD
	DSUB
	DMUL
	DDIV
	LDC
	LDC_W
	LDC2_W
	FCONST_0
	FCONST_1
	FCONST_2
	DCONST_0
	DCONST_1
	LCONST_0
	LCONST_1
	// IINC adds the high 32 bits of the operand to the local indexed by the low 32 bits.
	IINC
	LAND
	LOR
	LXOR
	LSHL
	LSHR
	LUSHR
	I2F
	I2D
	L2I
	L2F
	L2D
	F2I
	F2L
	F2D
	D2I
	D2L
	D2F
	IALOAD
	BALOAD
	CALOAD
	SALOAD
	IASTORE
	BASTORE
	CASTORE
	SASTORE
	NEW
	ANEWARRAY
	NEWARRAY
	MULTIANEWARRAY
	CHECKCAST
	INSTANCEOF
	GETSTATIC
	PUTSTATIC
	GETFIELD
	PUTFIELD
	INVOKEVIRTUAL
	INVOKESPECIAL
	INVOKEINTERFACE
	INVOKEDYNAMIC
	IFNULL
	IFNONNULL
	IF_ACMPEQ
	IF_ACMPNE
	TABLESWITCH
	LOOKUPSWITCH
	GOTO_W
	IFNULL_W
	IFNONNULL_W
	IF_ACMPEQ_W
	IF_ACMPNE_W
	IF_ICMPEQ_W
	IF_ICMPNE_W
	IF_ICMPLT_W
	IF_ICMPLE_W
	IF_ICMPGT_W
	IF_ICMPGE_W
	POP
	POP2
	DUP_X1
	DUP_X2
	DUP2
	DUP2_X1
	DUP2_X2
)

// exception markers
const (
	// ATHROW pops an object and hands it to the host as the pending exception.
	ATHROW Op = DUP2_X2 + 1 + iota
	TRY_START
	CATCH_HANDLER
	FINALLY_HANDLER
	// EXCEPTION_CHECK jumps to the operand with the pending exception on the stack, if there is one.
	EXCEPTION_CHECK
	EXCEPTION_CLEAR
)

// 32-bit integer arithmetic, remainders, comparisons and the rest of the array ops.
const (
	IADD Op = EXCEPTION_CLEAR + 1 + iota
	ISUB
	IMUL
	IDIV
	IREM
	REM
	LREM
	FREM
	DREM
	INEG
	FNEG
	DNEG
	LCMP
	FCMPL
	FCMPG
	DCMPL
	DCMPG
	IFEQ
	IFNE
	IFLT
	IFGE
	IFGT
	IFLE
	ARRAYLENGTH
	LALOAD
	FALOAD
	DALOAD
	LASTORE
	FASTORE
	DASTORE
	MONITORENTER
	MONITOREXIT
	ISHL
	ISHR
	IUSHR
	ACONST_NULL

	// OpCount is the number of valid ops. Every Op >= OpCount is invalid.
	OpCount
)

// IsValid returns true if o names an instruction.
func (o Op) IsValid() bool {
	return o < OpCount
}

// IsDecoy returns true for the ops which exist only as dispatch targets.
func (o Op) IsDecoy() bool {
	return o == NOP || o == JUNK1 || o == JUNK2
}
