package plumbing

import (
	"crypto"
	"errors"

	"github.com/quarry-scm/quarry/plumbing/hash"
)

// ErrInvalidObjectFormat is returned when an object format that is not
// supported is requested.
var ErrInvalidObjectFormat = errors.New("invalid object format")

// ObjectFormat defines the object addressing format used by a
// repository: the hash function behind ObjectIDs.
type ObjectFormat int8

const (
	// SHA1 is the object format based on SHA1 hashes.
	SHA1 ObjectFormat = iota
	// SHA256 is the object format based on SHA256 hashes.
	SHA256
)

func (f ObjectFormat) String() string {
	switch f {
	case SHA1:
		return "sha1"
	case SHA256:
		return "sha256"
	default:
		return "invalid"
	}
}

// Size returns the size, in bytes, of the hashes yielded by this
// object format.
func (f ObjectFormat) Size() int {
	if f == SHA256 {
		return hash.SHA256Size
	}
	return hash.SHA1Size
}

// CryptoHash returns the crypto.Hash behind this object format.
func (f ObjectFormat) CryptoHash() crypto.Hash {
	if f == SHA256 {
		return crypto.SHA256
	}
	return crypto.SHA1
}

// Valid returns true if f is a supported object format.
func (f ObjectFormat) Valid() bool {
	return f == SHA1 || f == SHA256
}

// ParseObjectFormat parses the string representation of an object
// format. It returns ErrInvalidObjectFormat on parse failure.
func ParseObjectFormat(value string) (ObjectFormat, error) {
	switch value {
	case "", "sha1":
		return SHA1, nil
	case "sha256":
		return SHA256, nil
	default:
		return SHA1, ErrInvalidObjectFormat
	}
}
