package spec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllNamed(t *testing.T) {
	all := All()
	require.Len(t, all, int(OpCount))
	seen := map[string]Op{}
	for _, o := range all {
		name := o.String()
		require.NotContains(t, name, "Op(", "op %d has no name", uint8(o))
		require.NotEqual(t, ClassInvalid, o.Class(), name)
		_, dup := seen[name]
		require.False(t, dup, name)
		seen[name] = o
	}
}

func TestFixedNumbering(t *testing.T) {
	require.Equal(t, Op(0), PUSH)
	require.Equal(t, Op(6), HALT)
	require.Equal(t, Op(36), INVOKESTATIC)
	require.Equal(t, Op(109), TABLESWITCH)
	require.Equal(t, Op(128), DUP2_X2)
	require.Equal(t, Op(129), ATHROW)
	require.Equal(t, Op(134), EXCEPTION_CLEAR)
	require.Less(t, int(OpCount), 1<<OpBits)
}

func TestParse(t *testing.T) {
	for _, o := range All() {
		p, err := Parse(o.String())
		require.NoError(t, err)
		require.Equal(t, o, p)
	}
	o, err := Parse("if_icmpeq")
	require.NoError(t, err)
	require.Equal(t, IF_ICMPEQ, o)
	_, err = Parse("FROB")
	require.Error(t, err)
}

func TestJITable(t *testing.T) {
	require.True(t, ADD.IsJITable())
	require.True(t, IALOAD.IsJITable())
	require.True(t, NOP.IsJITable())
	require.False(t, INVOKEVIRTUAL.IsJITable())
	require.False(t, GETFIELD.IsJITable())
	require.False(t, NEW.IsJITable())
	require.False(t, EXCEPTION_CHECK.IsJITable())
	require.False(t, OpCount.IsJITable())
	require.NotEmpty(t, AllJITable())
	require.Less(t, len(AllJITable()), len(All()))
}

func TestOpCountInvalid(t *testing.T) {
	require.False(t, OpCount.IsValid())
	require.Equal(t, "Op(171)", OpCount.String())
	require.True(t, NOP.IsDecoy())
	require.False(t, PUSH.IsDecoy())
}
