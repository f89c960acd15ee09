package cadata

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/state"
)

func TestIDString(t *testing.T) {
	ids := []ID{{}, Hash([]byte("a")), Hash([]byte("b")), Hash(nil), {0xff, 0xff}}
	for _, id := range ids {
		id2, err := ParseID(id.String())
		require.NoError(t, err)
		require.Equal(t, id, id2)
	}
	// the encoding keeps the byte order
	strs := make([]string, len(ids))
	for i := range ids {
		strs[i] = ids[i].String()
	}
	slices.SortFunc(ids, ID.Compare)
	slices.Sort(strs)
	for i := range ids {
		require.Equal(t, ids[i].String(), strs[i])
	}

	_, err := ParseID("abc")
	require.Error(t, err)
}

func TestSuccessor(t *testing.T) {
	require.Equal(t, ID{31: 1}, ID{}.Successor())
	require.Equal(t, ID{30: 1}, ID{31: 0xff}.Successor())
	id := Hash([]byte("x"))
	require.Equal(t, 1, id.Successor().Compare(id))
}

func TestCheck(t *testing.T) {
	data := []byte("program")
	id := Hash(data)
	require.NoError(t, Check(&id, data))
	require.ErrorAs(t, Check(&id, []byte("other")), &ErrBadData{})
}

func TestBeginFromSpan(t *testing.T) {
	require.Equal(t, ID{}, BeginFromSpan(state.TotalSpan[ID]()))
}

func TestScan(t *testing.T) {
	id := Hash([]byte("x"))
	v, err := id.Value()
	require.NoError(t, err)
	var id2 ID
	require.NoError(t, id2.Scan(v))
	require.Equal(t, id, id2)
	require.Error(t, id2.Scan([]byte{1, 2}))
	require.Error(t, id2.Scan("nope"))
}
