package svmcmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.brendoncarroll.net/star"

	"shroudvm.org/shroud/internal/dbutil"
	"shroudvm.org/shroud/internal/progstore"
	"shroudvm.org/shroud/svmconfig"
	"shroudvm.org/shroud/svmimage"
)

var storeCmd = star.NewDir(star.Metadata{
	Short: "manage the image catalog",
}, map[star.Symbol]star.Command{
	"put":  storePutCmd,
	"get":  storeGetCmd,
	"list": storeListCmd,
	"drop": storeDropCmd,
	"run":  storeRunCmd,
})

var storePutCmd = star.Command{
	Metadata: star.Metadata{
		Short: "add an image to the catalog",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{ConfigParam, DBParam, nameParam},
	Pos:   []star.IParam{fileParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg, DBParam.Load(c))
		if err != nil {
			return err
		}
		defer cat.Close()
		f := fileParam.Load(c)
		defer f.Close()
		img, err := readImage(f)
		if err != nil {
			return err
		}
		id, err := cat.Put(ctx, nameParam.Load(c), img)
		if err != nil {
			return err
		}
		c.Printf("%v\n", id)
		return nil
	},
}

var storeGetCmd = star.Command{
	Metadata: star.Metadata{
		Short: "write an image from the catalog to a file",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{ConfigParam, DBParam, nameParam},
	Pos:   []star.IParam{outputFileParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg, DBParam.Load(c))
		if err != nil {
			return err
		}
		defer cat.Close()
		img, err := cat.Get(ctx, nameParam.Load(c))
		if err != nil {
			return err
		}
		data, err := svmimage.Marshal(img)
		if err != nil {
			return err
		}
		out := outputFileParam.Load(c)
		if _, err := out.Write(data); err != nil {
			return err
		}
		return out.Close()
	},
}

var storeListCmd = star.Command{
	Metadata: star.Metadata{
		Short: "list the images in the catalog",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{ConfigParam, DBParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg, DBParam.Load(c))
		if err != nil {
			return err
		}
		defer cat.Close()
		ents, err := cat.List(ctx)
		if err != nil {
			return err
		}
		c.Printf("NAME\tSEALED\tID\n")
		for _, ent := range ents {
			c.Printf("%s\t%v\t%v\n", ent.Name, ent.Sealed, ent.ID)
		}
		return nil
	},
}

var storeDropCmd = star.Command{
	Metadata: star.Metadata{
		Short: "remove an image from the catalog",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{ConfigParam, DBParam, nameParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg, DBParam.Load(c))
		if err != nil {
			return err
		}
		defer cat.Close()
		return cat.Drop(ctx, nameParam.Load(c))
	},
}

var storeRunCmd = star.Command{
	Metadata: star.Metadata{
		Short: "run an image from the catalog",
		Tags:  []string{"store"},
	},
	Flags: []star.IParam{ConfigParam, DBParam, nameParam, jitParam, callsParam, localsParam},
	F: func(c star.Context) error {
		ctx, cfg, err := setup(c)
		if err != nil {
			return err
		}
		cat, err := openCatalog(ctx, cfg, DBParam.Load(c))
		if err != nil {
			return err
		}
		defer cat.Close()
		img, err := cat.Get(ctx, nameParam.Load(c))
		if err != nil {
			return err
		}
		res, err := runImage(ctx, cfg, img, runArgs{
			Locals: localsParam.LoadAll(c),
			Calls:  callsParam.Load(c),
			JIT:    jitParam.Load(c),
			Out:    c.StdOut,
		})
		if err != nil {
			return err
		}
		printResult(c.StdOut, res)
		return nil
	},
}

// catalog stores images in a progstore.Catalog, sealing them when a seal secret is configured.
type catalog struct {
	db  *sqlx.DB
	cat *progstore.Catalog
	key *[32]byte
}

// openCatalog opens the database at p, or the configured database if p is empty.
func openCatalog(ctx context.Context, cfg *svmconfig.Config, p string) (*catalog, error) {
	if p == "" {
		p = cfg.Store.DB
	}
	db, err := dbutil.Open(p)
	if err != nil {
		return nil, err
	}
	if err := progstore.Setup(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	c := &catalog{
		db:  db,
		cat: progstore.New(db, progstore.NewBlobStore(db, progstore.MaxImageSize)),
	}
	if cfg.Store.SealSecret != "" {
		c.key = svmimage.DeriveKey([]byte(cfg.Store.SealSecret))
	}
	return c, nil
}

func (c *catalog) Put(ctx context.Context, name string, img *svmimage.Image) (string, error) {
	data, err := svmimage.Marshal(img)
	if err != nil {
		return "", err
	}
	if c.key != nil {
		data = svmimage.Seal(c.key, data)
	}
	id, err := c.cat.Put(ctx, name, data, c.key != nil)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (c *catalog) Get(ctx context.Context, name string) (*svmimage.Image, error) {
	data, ent, err := c.cat.Get(ctx, name)
	if err != nil {
		return nil, err
	}
	if ent.Sealed {
		if c.key == nil {
			return nil, fmt.Errorf("image %q is sealed and store.seal_secret is not set", name)
		}
		if data, err = svmimage.Open(c.key, data); err != nil {
			return nil, err
		}
	}
	return svmimage.Unmarshal(data)
}

func (c *catalog) List(ctx context.Context) ([]progstore.Entry, error) {
	return c.cat.List(ctx)
}

func (c *catalog) Drop(ctx context.Context, name string) error {
	err := c.cat.Drop(ctx, name)
	if errors.As(err, &progstore.ErrNotFound{}) {
		return fmt.Errorf("no image named %q", name)
	}
	return err
}

func (c *catalog) Close() error {
	return c.db.Close()
}
