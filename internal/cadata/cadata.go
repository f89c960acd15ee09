// package cadata provides interfaces for content addressed storage of program images.
//
// It is based on the package in go.brendoncarroll.net/state/cadata
package cadata

import (
	"bytes"
	"context"
	"crypto/subtle"
	"database/sql/driver"
	"encoding/base64"
	"errors"
	"fmt"

	"go.brendoncarroll.net/state"
	"go.brendoncarroll.net/state/kv"
	"lukechampine.com/blake3"
)

var _ driver.Valuer = ID{}

const (
	IDSize = 32
	// Base64Alphabet is used when encoding IDs as base64 strings.
	// It is a URL and filepath safe encoding, which maintains ordering.
	Base64Alphabet = "-0123456789" + "ABCDEFGHIJKLMNOPQRSTUVWXYZ" + "_" + "abcdefghijklmnopqrstuvwxyz"
)

// ID identifies a particular piece of data
type ID [IDSize]byte

// Hash is the content hash used for IDs.
func Hash(x []byte) ID {
	return blake3.Sum256(x)
}

func IDFromBytes(x []byte) ID {
	id := ID{}
	copy(id[:], x)
	return id
}

var enc = base64.NewEncoding(Base64Alphabet).WithPadding(base64.NoPadding)

func (id ID) String() string {
	return enc.EncodeToString(id[:])
}

// ParseID decodes an ID encoded with String.
func ParseID(s string) (ID, error) {
	var id ID
	n, err := enc.Decode(id[:], []byte(s))
	if err != nil {
		return ID{}, err
	}
	if n != IDSize {
		return ID{}, errors.New("base64 string is too short")
	}
	return id, nil
}

func (a ID) Compare(b ID) int {
	return bytes.Compare(a[:], b[:])
}

func (id ID) IsZero() bool {
	return id == (ID{})
}

func (id *ID) Scan(x interface{}) error {
	switch x := x.(type) {
	case []byte:
		if len(x) != IDSize {
			return fmt.Errorf("wrong length for cadata.ID HAVE: %d WANT: %d", len(x), IDSize)
		}
		*id = IDFromBytes(x)
		return nil
	default:
		return fmt.Errorf("cannot scan type %T", x)
	}
}

func (id ID) Value() (driver.Value, error) {
	return id[:], nil
}

// Successor returns the ID immediately after this ID
func (id ID) Successor() ID {
	for i := len(id) - 1; i >= 0; i-- {
		id[i]++
		if id[i] != 0 {
			break
		}
	}
	return id
}

type Span = state.Span[ID]

// Store holds blobs by their Hash.
type Store interface {
	Post(ctx context.Context, data []byte) (ID, error)
	// Get copies the blob into buf and returns its length.
	Get(ctx context.Context, id *ID, buf []byte) (int, error)
	Exists(ctx context.Context, id *ID) (bool, error)
	Delete(ctx context.Context, id *ID) error
	List(ctx context.Context, span Span, ids []ID) (int, error)
	MaxSize() int
}

func ForEach(ctx context.Context, s Store, span Span, fn func(ID) error) error {
	return kv.ForEach[ID](ctx, s, span, fn)
}

// GetBytes reads a whole blob.
func GetBytes(ctx context.Context, s Store, id *ID) ([]byte, error) {
	buf := make([]byte, s.MaxSize())
	n, err := s.Get(ctx, id, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

var (
	ErrTooLarge = errors.New("data is too large for store")
)

type ErrNotFound struct {
	Key *ID
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("no data found for %v in store", e.Key)
}

type ErrBadData struct {
	Have ID
	Want ID
}

func (e ErrBadData) Error() string {
	return fmt.Sprintf("bad data. HAVE: %v WANT: %v", e.Have, e.Want)
}

// Check returns ErrBadData if data does not hash to expectedID.
func Check(expectedID *ID, data []byte) error {
	actualID := Hash(data)
	if subtle.ConstantTimeCompare(actualID[:], expectedID[:]) != 1 {
		return ErrBadData{Have: actualID, Want: *expectedID}
	}
	return nil
}

func BeginFromSpan(x Span) ID {
	lb, ok := x.LowerBound()
	if !ok {
		return ID{}
	}
	if !x.IncludesLower() {
		lb = lb.Successor()
	}
	return lb
}
