// Package hash provides the hash constructors used for object
// addressing. SHA1 is served by a collision-detecting implementation.
package hash

import (
	"crypto"
	"crypto/sha256"
	"errors"
	"hash"

	"github.com/pjbgf/sha1cd"
)

const (
	// SHA1Size is the size, in bytes, of a SHA1 sum.
	SHA1Size = 20
	// SHA1HexSize is the size, in chars, of a SHA1 sum in hexadecimal form.
	SHA1HexSize = SHA1Size * 2
	// SHA256Size is the size, in bytes, of a SHA256 sum.
	SHA256Size = 32
	// SHA256HexSize is the size, in chars, of a SHA256 sum in hexadecimal form.
	SHA256HexSize = SHA256Size * 2
)

// ErrUnsupportedHashFunction is returned when a hash function that is
// not supported for object addressing is requested.
var ErrUnsupportedHashFunction = errors.New("unsupported hash function")

// New returns a new hash.Hash for the given crypto.Hash.
// It panics if the hash function is not registered for object
// addressing, use RegisteredSize to check upfront.
func New(t crypto.Hash) hash.Hash {
	switch t {
	case crypto.SHA1:
		return sha1cd.New()
	case crypto.SHA256:
		return sha256.New()
	default:
		panic("unsupported hash function: " + t.String())
	}
}

// RegisteredSize returns the sum size for the given crypto.Hash, or
// ErrUnsupportedHashFunction if it cannot be used for object addressing.
func RegisteredSize(t crypto.Hash) (int, error) {
	switch t {
	case crypto.SHA1:
		return SHA1Size, nil
	case crypto.SHA256:
		return SHA256Size, nil
	default:
		return 0, ErrUnsupportedHashFunction
	}
}
