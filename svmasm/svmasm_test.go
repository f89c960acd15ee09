package svmasm

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"shroudvm.org/shroud/hostsim"
	"shroudvm.org/shroud/internal/testutil"
	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svm"
	"shroudvm.org/shroud/svmimage"
)

const sumSrc = `
; sum of 1..n
.seed 3
.locals 2
	PUSH 0
	STORE 1
loop:
	LOAD 0
	IFEQ done
	LOAD 1
	LOAD 0
	IADD
	STORE 1
	IINC 0 -1
	GOTO loop
done:
	LOAD 1
	HALT
`

const switchSrc = `
.tableswitch 0 2 other a b c
.lookupswitch other 10:a 20:c
	LOAD 0
	TABLESWITCH 0
a:	PUSH 10
	HALT
b:	PUSH 20
	HALT
c:	PUSH 30
	HALT
other:	PUSH -1
	HALT
`

func run(t testing.TB, img *svmimage.Image, locals ...svm.Word) svm.Word {
	opts := svm.DefaultOptions()
	opts.Scramble = scramble.Config{Secret: []byte(t.Name())}
	m := svm.New(hostsim.New(), opts)
	prog := append([]scramble.Instruction{}, img.Program...)
	require.NoError(t, m.EncodeProgram(prog, img.Seed))
	return m.Execute(testutil.Context(t), prog, locals, img.Seed, &img.Tables)
}

func TestAssemble(t *testing.T) {
	img, err := AssembleString(sumSrc)
	require.NoError(t, err)
	require.Equal(t, uint64(3), img.Seed)
	require.Equal(t, 2, img.Locals)
	require.Len(t, img.Program, 12)
	require.Equal(t, uint8(spec.IFEQ), img.Program[3].Op)
	require.Equal(t, int64(10), img.Program[3].Operand)
	require.Equal(t, int64(2), img.Program[9].Operand)
	require.Equal(t, svm.Word(55), run(t, img, 10, 0))
}

func TestSwitch(t *testing.T) {
	img, err := AssembleString(switchSrc)
	require.NoError(t, err)
	require.Equal(t, svm.TableSwitch{Low: 0, High: 2, Default: 8, Targets: []int{2, 4, 6}}, img.Tables.TableSwitches[0])
	require.Equal(t, []int{2, 6}, img.Tables.LookupSwitches[0].Targets)
	for key, want := range map[svm.Word]svm.Word{0: 10, 1: 20, 2: 30, 3: -1, -5: -1} {
		require.Equal(t, want, run(t, img, key), "key %d", key)
	}
}

func TestRoundTrip(t *testing.T) {
	srcs := []string{
		sumSrc,
		switchSrc,
		`
.seed 0x10
.const java/lang/Object
.const [I
.method java/lang/Math max (II)I
.field demo/Counter n I
.multi [[I 2
	PUSH f:1.5
	PUSH d:-2.25
	PUSH 0xffffffffffffffff
	NOP 99
	NEW 0
	INVOKESTATIC 0
	TRY_START 7
	GOTO 100
`,
	}
	for _, src := range srcs {
		img, err := AssembleString(src)
		require.NoError(t, err)
		plain, err := img.Plain(nil)
		require.NoError(t, err)

		var buf bytes.Buffer
		require.NoError(t, Disassemble(&buf, img, plain))
		img2, err := AssembleString(buf.String())
		require.NoError(t, err, buf.String())
		require.Equal(t, img, img2)
	}
}

func TestDisassembleEncoded(t *testing.T) {
	img, err := AssembleString(sumSrc)
	require.NoError(t, err)
	want, err := img.Plain(nil)
	require.NoError(t, err)

	c := scramble.New(scramble.Config{Secret: []byte("disasm")})
	require.NoError(t, img.Encode(c))
	plain, err := img.Plain(c)
	require.NoError(t, err)
	require.Equal(t, want, plain)

	var buf bytes.Buffer
	require.NoError(t, Disassemble(&buf, img, plain))
	require.Contains(t, buf.String(), "\tGOTO L0\n")
	require.Contains(t, buf.String(), "\tIINC 0 -1\n")
}

func TestSyntaxErrors(t *testing.T) {
	type testCase struct {
		Name string
		Src  string
		Line int
	}
	tcs := []testCase{
		{Name: "UnknownOp", Src: "PUSH 1\nFROB 2", Line: 2},
		{Name: "MissingOperand", Src: "PUSH", Line: 1},
		{Name: "BadOperand", Src: "PUSH x", Line: 1},
		{Name: "UndefinedLabel", Src: "PUSH 1\n\nGOTO nowhere", Line: 3},
		{Name: "DuplicateLabel", Src: "a: NOP\na: NOP", Line: 2},
		{Name: "UnknownDirective", Src: ".frob 1\nHALT", Line: 1},
		{Name: "SwitchArity", Src: ".tableswitch 0 2 d a b\nd: HALT", Line: 1},
		{Name: "LookupOrder", Src: ".lookupswitch d 2:d 1:d\nd: HALT", Line: 1},
		{Name: "IincArity", Src: "IINC 1", Line: 1},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := AssembleString(tc.Src)
			var se ErrSyntax
			require.ErrorAs(t, err, &se)
			require.Equal(t, tc.Line, se.Line)
		})
	}
	_, err := AssembleString("; nothing\n")
	require.Error(t, err)
}

func TestIinc(t *testing.T) {
	for _, inc := range []int32{0, 1, -1, 1 << 30, -(1 << 31)} {
		idx, got := UnpackIinc(PackIinc(7, inc))
		require.Equal(t, uint32(7), idx)
		require.Equal(t, inc, got)
	}
}
