package ringbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPushPop(t *testing.T) {
	rb := New[int](4)
	for i := 0; i < 3; i++ {
		rb.PushBack(i)
	}
	require.Equal(t, 3, rb.Len())
	require.Equal(t, 0, rb.PopFront())
	require.Equal(t, []int{1, 2}, rb.AppendTo(nil))
}

func TestOverwrite(t *testing.T) {
	rb := New[int](3)
	for i := 0; i < 10; i++ {
		rb.PushBack(i)
	}
	require.Equal(t, 3, rb.Len())
	require.Equal(t, []int{7, 8, 9}, rb.AppendTo(nil))
	rb.Clear()
	require.Equal(t, 0, rb.Len())
	require.Panics(t, func() { rb.At(0) })
}

func TestZeroCapacity(t *testing.T) {
	rb := New[int](0)
	rb.PushBack(1)
	require.Equal(t, 0, rb.Len())
}
