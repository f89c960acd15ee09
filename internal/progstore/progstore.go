// package progstore keeps a catalog of named program images in sqlite.
// Image bytes live in a cadata.Store, the catalog maps names to content IDs.
package progstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/stdctx/logctx"
	"go.uber.org/zap"

	"shroudvm.org/shroud/internal/cadata"
	"shroudvm.org/shroud/internal/dbutil"
	"shroudvm.org/shroud/internal/migrations"
)

// MaxImageSize is the largest image the catalog accepts.
const MaxImageSize = 1 << 22

// Schema is the database schema used by the catalog and BlobStore.
var Schema = func() *migrations.State {
	x := migrations.InitialState()
	x = BlobMigration(x)
	x = x.ApplyStmt(`CREATE TABLE programs (
		name TEXT NOT NULL,
		blob_id BLOB NOT NULL,
		sealed INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL,

		PRIMARY KEY(name)
	)`)
	return x
}()

// Setup migrates db to Schema.
func Setup(ctx context.Context, db *sqlx.DB) error {
	return migrations.Migrate(ctx, db, Schema)
}

type ErrNotFound struct {
	Name string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("program %q not found", e.Name)
}

// Entry describes one program in the catalog.
// CreatedAt is the unix time of the last Put.
type Entry struct {
	Name      string    `db:"name"`
	ID        cadata.ID `db:"blob_id"`
	Sealed    bool      `db:"sealed"`
	CreatedAt int64     `db:"created_at"`
}

type Catalog struct {
	db    *sqlx.DB
	blobs cadata.Store
}

// New returns a Catalog with its names in db and its images in blobs.
// db must have been Setup.
func New(db *sqlx.DB, blobs cadata.Store) *Catalog {
	return &Catalog{db: db, blobs: blobs}
}

// Put stores an image under name, replacing any previous image with that name.
func (c *Catalog) Put(ctx context.Context, name string, data []byte, sealed bool) (cadata.ID, error) {
	if name == "" {
		return cadata.ID{}, errors.New("progstore: empty name")
	}
	id, err := c.blobs.Post(ctx, data)
	if err != nil {
		return cadata.ID{}, fmt.Errorf("progstore: storing image: %w", err)
	}
	prev, err := dbutil.DoTx1(ctx, c.db, func(tx *sqlx.Tx) (*cadata.ID, error) {
		var prev cadata.ID
		err := tx.GetContext(ctx, &prev, `SELECT blob_id FROM programs WHERE name = ?`, name)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return nil, err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO programs (name, blob_id, sealed, created_at) VALUES (?, ?, ?, ?)
			ON CONFLICT (name) DO UPDATE SET blob_id = excluded.blob_id, sealed = excluded.sealed, created_at = excluded.created_at`,
			name, id, sealed, time.Now().Unix()); err != nil {
			return nil, err
		}
		if prev.IsZero() || prev == id {
			return nil, nil
		}
		return &prev, nil
	})
	if err != nil {
		return cadata.ID{}, err
	}
	if prev != nil {
		if err := c.collect(ctx, prev); err != nil {
			return cadata.ID{}, err
		}
	}
	logctx.Debug(ctx, "stored program", zap.String("name", name), zap.Stringer("id", id), zap.Int("size", len(data)))
	return id, nil
}

// Get returns the image stored under name.
func (c *Catalog) Get(ctx context.Context, name string) ([]byte, *Entry, error) {
	ent, err := c.Stat(ctx, name)
	if err != nil {
		return nil, nil, err
	}
	data, err := cadata.GetBytes(ctx, c.blobs, &ent.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := cadata.Check(&ent.ID, data); err != nil {
		return nil, nil, err
	}
	return data, ent, nil
}

// Stat returns the catalog entry for name.
func (c *Catalog) Stat(ctx context.Context, name string) (*Entry, error) {
	var ent Entry
	if err := c.db.GetContext(ctx, &ent, `SELECT name, blob_id, sealed, created_at FROM programs WHERE name = ?`, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound{Name: name}
		}
		return nil, err
	}
	return &ent, nil
}

// List returns every entry ordered by name.
func (c *Catalog) List(ctx context.Context) ([]Entry, error) {
	var ents []Entry
	if err := c.db.SelectContext(ctx, &ents, `SELECT name, blob_id, sealed, created_at FROM programs ORDER BY name`); err != nil {
		return nil, err
	}
	return ents, nil
}

// Drop removes name from the catalog, and its image if no other name refers to it.
func (c *Catalog) Drop(ctx context.Context, name string) error {
	ent, err := c.Stat(ctx, name)
	if err != nil {
		return err
	}
	if _, err := c.db.ExecContext(ctx, `DELETE FROM programs WHERE name = ?`, name); err != nil {
		return err
	}
	return c.collect(ctx, &ent.ID)
}

// collect deletes the image with id if no name refers to it.
func (c *Catalog) collect(ctx context.Context, id *cadata.ID) error {
	var refs int
	if err := c.db.GetContext(ctx, &refs, `SELECT count(*) FROM programs WHERE blob_id = ?`, *id); err != nil {
		return err
	}
	if refs > 0 {
		return nil
	}
	return c.blobs.Delete(ctx, id)
}
