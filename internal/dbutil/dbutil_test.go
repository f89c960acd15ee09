package dbutil_test

import (
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"shroudvm.org/shroud/internal/dbutil"
	"shroudvm.org/shroud/internal/testutil"
)

func TestDoTx(t *testing.T) {
	ctx := testutil.Context(t)
	db := testutil.NewTestDB(t)
	_, err := db.Exec(`CREATE TABLE t (x INTEGER)`)
	require.NoError(t, err)

	require.NoError(t, dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		_, err := tx.Exec(`INSERT INTO t (x) VALUES (1)`)
		return err
	}))
	errStop := errors.New("stop")
	err = dbutil.DoTx(ctx, db, func(tx *sqlx.Tx) error {
		if _, err := tx.Exec(`INSERT INTO t (x) VALUES (2)`); err != nil {
			return err
		}
		return errStop
	})
	require.ErrorIs(t, err, errStop)

	n, err := dbutil.DoTx1(ctx, db, func(tx *sqlx.Tx) (int, error) {
		var n int
		err := tx.Get(&n, `SELECT count(*) FROM t`)
		return n, err
	})
	require.NoError(t, err)
	require.Equal(t, 1, n)
}
