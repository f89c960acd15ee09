package progstore

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.brendoncarroll.net/state"

	"shroudvm.org/shroud/internal/cadata"
	"shroudvm.org/shroud/internal/stores"
	"shroudvm.org/shroud/internal/testutil"
)

func TestBlobStore(t *testing.T) {
	type testCase struct {
		Name string
		Make func(t testing.TB) cadata.Store
	}
	tcs := []testCase{
		{
			Name: "Mem",
			Make: func(t testing.TB) cadata.Store { return stores.NewMem(MaxImageSize) },
		},
		{
			Name: "SQL",
			Make: func(t testing.TB) cadata.Store {
				ctx := testutil.Context(t)
				db := testutil.NewTestDB(t)
				require.NoError(t, Setup(ctx, db))
				return NewBlobStore(db, MaxImageSize)
			},
		},
	}
	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			ctx := testutil.Context(t)
			s := tc.Make(t)

			id, err := s.Post(ctx, []byte("hello"))
			require.NoError(t, err)
			require.Equal(t, cadata.Hash([]byte("hello")), id)
			id2, err := s.Post(ctx, []byte("hello"))
			require.NoError(t, err)
			require.Equal(t, id, id2)

			data, err := cadata.GetBytes(ctx, s, &id)
			require.NoError(t, err)
			require.Equal(t, "hello", string(data))

			ok, err := s.Exists(ctx, &id)
			require.NoError(t, err)
			require.True(t, ok)

			_, err = s.Post(ctx, make([]byte, MaxImageSize+1))
			require.ErrorIs(t, err, cadata.ErrTooLarge)

			_, err = s.Post(ctx, []byte("world"))
			require.NoError(t, err)
			var n int
			require.NoError(t, cadata.ForEach(ctx, s, state.TotalSpan[cadata.ID](), func(cadata.ID) error {
				n++
				return nil
			}))
			require.Equal(t, 2, n)

			require.NoError(t, s.Delete(ctx, &id))
			ok, err = s.Exists(ctx, &id)
			require.NoError(t, err)
			require.False(t, ok)
			_, err = cadata.GetBytes(ctx, s, &id)
			require.ErrorAs(t, err, &cadata.ErrNotFound{})
		})
	}
}

func newTestCatalog(t testing.TB) (*Catalog, *BlobStore) {
	ctx := testutil.Context(t)
	db := testutil.NewTestDB(t)
	require.NoError(t, Setup(ctx, db))
	blobs := NewBlobStore(db, MaxImageSize)
	return New(db, blobs), blobs
}

func TestCatalog(t *testing.T) {
	ctx := testutil.Context(t)
	c, blobs := newTestCatalog(t)

	id, err := c.Put(ctx, "sum", []byte("image-1"), false)
	require.NoError(t, err)
	data, ent, err := c.Get(ctx, "sum")
	require.NoError(t, err)
	require.Equal(t, "image-1", string(data))
	require.Equal(t, id, ent.ID)
	require.False(t, ent.Sealed)
	require.NotZero(t, ent.CreatedAt)

	_, err = c.Put(ctx, "other", []byte("image-1"), true)
	require.NoError(t, err)
	ents, err := c.List(ctx)
	require.NoError(t, err)
	require.Len(t, ents, 2)
	require.Equal(t, "other", ents[0].Name)
	require.True(t, ents[0].Sealed)
	require.Equal(t, "sum", ents[1].Name)

	// replacing sum keeps image-1, which other still refers to
	id2, err := c.Put(ctx, "sum", []byte("image-2"), false)
	require.NoError(t, err)
	ok, err := blobs.Exists(ctx, &id)
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, c.Drop(ctx, "other"))
	ok, err = blobs.Exists(ctx, &id)
	require.NoError(t, err)
	require.False(t, ok)
	ok, err = blobs.Exists(ctx, &id2)
	require.NoError(t, err)
	require.True(t, ok)

	_, _, err = c.Get(ctx, "other")
	require.ErrorAs(t, err, &ErrNotFound{})
	require.ErrorIs(t, c.Drop(ctx, "other"), ErrNotFound{Name: "other"})
}

func TestCatalogRejectsEmptyName(t *testing.T) {
	ctx := testutil.Context(t)
	c, _ := newTestCatalog(t)
	_, err := c.Put(ctx, "", []byte("x"), false)
	require.Error(t, err)
}
