// package svmimage packages a program, its seed and its reference tables into a
// canonical CBOR image which can be content addressed, and optionally sealed at rest.
package svmimage

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/chacha20poly1305"
	"lukechampine.com/blake3"

	"shroudvm.org/shroud/internal/cadata"
	"shroudvm.org/shroud/scramble"
	"shroudvm.org/shroud/spec"
	"shroudvm.org/shroud/svm"
)

const (
	// Version is written into every image.
	Version = 1
	// NonceSize is the length of the nonce at the front of a sealed image.
	NonceSize = chacha20poly1305.NonceSizeX
)

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("svmimage: creating CBOR enc mode: %v", err))
	}
	encMode = em
}

// Image is a program ready to run.
// Locals is the number of local variable slots the program expects.
// Encoded is set when Program has been scrambled, Fingerprint then identifies the encoding context.
type Image struct {
	Version     int                    `cbor:"v"`
	Seed        uint64                 `cbor:"seed"`
	Locals      int                    `cbor:"locals,omitempty"`
	Encoded     bool                   `cbor:"enc,omitempty"`
	Fingerprint uint64                 `cbor:"fp,omitempty"`
	Program     []scramble.Instruction `cbor:"prog"`
	Tables      svm.Tables             `cbor:"tabs"`
}

// New returns an unencoded image.
func New(prog []scramble.Instruction, seed uint64, tabs *svm.Tables) *Image {
	img := &Image{
		Version: Version,
		Seed:    seed,
		Program: append([]scramble.Instruction{}, prog...),
	}
	if tabs != nil {
		img.Tables = *tabs
	}
	return img
}

// Validate checks the image without decoding its program.
func (img *Image) Validate() error {
	if img.Version != Version {
		return fmt.Errorf("svmimage: unsupported version %d", img.Version)
	}
	if len(img.Program) == 0 {
		return errors.New("svmimage: empty program")
	}
	if img.Locals < 0 {
		return fmt.Errorf("svmimage: negative locals %d", img.Locals)
	}
	if img.Encoded {
		if img.Fingerprint == 0 {
			return errors.New("svmimage: encoded image without fingerprint")
		}
		return nil
	}
	for i, in := range img.Program {
		if !spec.Op(in.Op).IsValid() {
			return fmt.Errorf("svmimage: invalid op %d at %d", in.Op, i)
		}
		if in.Nonce != 0 {
			return fmt.Errorf("svmimage: plain image has a scrambled instruction at %d", i)
		}
	}
	return nil
}

// Encode scrambles the program under c and records c's fingerprint.
func (img *Image) Encode(c *scramble.Context) error {
	if img.Encoded {
		return errors.New("svmimage: image is already encoded")
	}
	prog := append([]scramble.Instruction{}, img.Program...)
	if err := c.EncodeProgram(prog, img.Seed); err != nil {
		return err
	}
	img.Program = prog
	img.Encoded = true
	img.Fingerprint = c.Fingerprint()
	return nil
}

// Check returns ErrWrongContext if the image was encoded by a context other than c.
func (img *Image) Check(c *scramble.Context) error {
	if !img.Encoded {
		return nil
	}
	c.EnsureInit(img.Seed)
	if fp := c.Fingerprint(); fp != img.Fingerprint {
		return ErrWrongContext{Have: fp, Want: img.Fingerprint}
	}
	return nil
}

// Plain returns the program with the scrambling removed.
func (img *Image) Plain(c *scramble.Context) ([]scramble.Decoded, error) {
	if !img.Encoded {
		out := make([]scramble.Decoded, len(img.Program))
		for i, in := range img.Program {
			out[i] = scramble.Decoded{Op: spec.Op(in.Op), Operand: in.Operand}
		}
		return out, nil
	}
	if err := img.Check(c); err != nil {
		return nil, err
	}
	return c.DecodeProgram(img.Program, img.Seed), nil
}

// Marshal returns the canonical encoding of img.
// Equal images always marshal to equal bytes.
func Marshal(img *Image) ([]byte, error) {
	return encMode.Marshal(img)
}

func Unmarshal(data []byte) (*Image, error) {
	var img Image
	if err := cbor.Unmarshal(data, &img); err != nil {
		return nil, fmt.Errorf("svmimage: unmarshal: %w", err)
	}
	if err := img.Validate(); err != nil {
		return nil, err
	}
	return &img, nil
}

// ID returns the content ID of a marshaled image.
func ID(data []byte) cadata.ID {
	return cadata.Hash(data)
}

// ErrWrongContext is returned when an encoded image is used with a different encoding context.
type ErrWrongContext struct {
	Have, Want uint64
}

func (e ErrWrongContext) Error() string {
	return fmt.Sprintf("svmimage: image encoded by context %016x, have %016x", e.Want, e.Have)
}

// ErrKeyMismatch is returned by Open when the key does not authenticate the sealed image.
var ErrKeyMismatch = errors.New("svmimage: sealed image does not open with this key")

// DeriveKey derives a sealing key from an arbitrary secret.
func DeriveKey(secret []byte) *[32]byte {
	h := blake3.New(32, nil)
	h.Write([]byte("shroud/image-seal"))
	h.Write(secret)
	key := new([32]byte)
	h.Sum(key[:0])
	return key
}

// Seal encrypts a marshaled image. The result is the nonce followed by the ciphertext.
func Seal(key *[32]byte, data []byte) []byte {
	nonce := randomNonce()
	out := make([]byte, 0, NonceSize+len(data)+chacha20poly1305.Overhead)
	return seal(key, nonce, out, data)
}

// Open reverses Seal.
func Open(key *[32]byte, sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+chacha20poly1305.Overhead {
		return nil, fmt.Errorf("svmimage: sealed image too short (%d bytes)", len(sealed))
	}
	nonce := (*[NonceSize]byte)(sealed[:NonceSize])
	data, err := open(key, nonce, nil, sealed[NonceSize:])
	if err != nil {
		return nil, ErrKeyMismatch
	}
	return data, nil
}

func seal(key *[32]byte, nonce *[NonceSize]byte, out, ptext []byte) []byte {
	ciph, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		panic(err)
	}
	out = append(out, nonce[:]...)
	return ciph.Seal(out, nonce[:], ptext, nil)
}

func open(key *[32]byte, nonce *[NonceSize]byte, out, ctext []byte) ([]byte, error) {
	ciph, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		panic(err)
	}
	return ciph.Open(out, nonce[:], ctext, nil)
}

func randomNonce() *[NonceSize]byte {
	nonce := new([NonceSize]byte)
	if _, err := rand.Read(nonce[:]); err != nil {
		panic(err)
	}
	return nonce
}
