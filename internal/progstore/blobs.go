package progstore

import (
	"context"
	"database/sql"
	"errors"
	"io"

	"github.com/jmoiron/sqlx"

	"shroudvm.org/shroud/internal/cadata"
	"shroudvm.org/shroud/internal/migrations"
)

// BlobMigration adds the table used by BlobStore.
func BlobMigration(x *migrations.State) *migrations.State {
	return x.ApplyStmt(`CREATE TABLE blobs (
		id BLOB NOT NULL,
		data BLOB NOT NULL,

		PRIMARY KEY(id)
	) WITHOUT ROWID, STRICT;`)
}

var _ cadata.Store = &BlobStore{}

// BlobStore is a cadata.Store in a sqlite table.
type BlobStore struct {
	db      *sqlx.DB
	maxSize int
}

func NewBlobStore(db *sqlx.DB, maxSize int) *BlobStore {
	return &BlobStore{db: db, maxSize: maxSize}
}

func (s *BlobStore) Post(ctx context.Context, data []byte) (cadata.ID, error) {
	if len(data) > s.MaxSize() {
		return cadata.ID{}, cadata.ErrTooLarge
	}
	id := cadata.Hash(data)
	if _, err := s.db.ExecContext(ctx, `INSERT INTO blobs (id, data)
		VALUES (?, ?) ON CONFLICT DO NOTHING`, id[:], data); err != nil {
		return cadata.ID{}, err
	}
	return id, nil
}

func (s *BlobStore) Get(ctx context.Context, id *cadata.ID, buf []byte) (int, error) {
	var data []byte
	if err := s.db.GetContext(ctx, &data, `SELECT data FROM blobs WHERE id = ?`, id[:]); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = cadata.ErrNotFound{Key: id}
		}
		return 0, err
	}
	if len(data) > len(buf) {
		return 0, io.ErrShortBuffer
	}
	return copy(buf, data), nil
}

func (s *BlobStore) Exists(ctx context.Context, id *cadata.ID) (bool, error) {
	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM blobs WHERE id = ?)`, id[:]); err != nil {
		return false, err
	}
	return exists, nil
}

func (s *BlobStore) Delete(ctx context.Context, id *cadata.ID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM blobs WHERE id = ?`, id[:])
	return err
}

func (s *BlobStore) List(ctx context.Context, span cadata.Span, ids []cadata.ID) (int, error) {
	begin := cadata.BeginFromSpan(span)
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM blobs
		WHERE id >= ?
		ORDER BY id
		LIMIT ?
	`, begin[:], len(ids))
	if err != nil {
		return 0, err
	}
	defer rows.Close()
	var n int
	for rows.Next() && n < len(ids) {
		var buf []byte
		if err := rows.Scan(&buf); err != nil {
			return 0, err
		}
		ids[n] = cadata.IDFromBytes(buf)
		n++
	}
	if err := rows.Err(); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *BlobStore) MaxSize() int {
	return s.maxSize
}
