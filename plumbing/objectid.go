package plumbing

import (
	"bytes"
	"encoding/hex"
	"io"

	"github.com/quarry-scm/quarry/plumbing/hash"
)

var zeroSum = make([]byte, hash.SHA256Size)

// ObjectID identifies the content of an object: the hash of its
// canonical serialized form. Equal content yields an equal ObjectID.
//
// The zero value is the SHA1 zero id.
type ObjectID struct {
	sum    [hash.SHA256Size]byte
	format ObjectFormat
}

// ZeroID is the (SHA1) zero ObjectID.
var ZeroID = ObjectID{}

// NewObjectID builds an ObjectID of the given format from a raw sum.
// Input longer than the format's size is truncated.
func NewObjectID(f ObjectFormat, sum []byte) ObjectID {
	id := ObjectID{format: f}
	copy(id.sum[:f.Size()], sum)
	return id
}

// FromHex parses a hexadecimal string and returns an ObjectID and a
// boolean confirming whether the operation was successful. The object
// format is inferred from the length of the input.
func FromHex(in string) (ObjectID, bool) {
	var id ObjectID

	switch len(in) {
	case hash.SHA1HexSize:
		id.format = SHA1
	case hash.SHA256HexSize:
		id.format = SHA256
	default:
		return id, false
	}

	out, err := hex.DecodeString(in)
	if err != nil {
		return id, false
	}

	copy(id.sum[:], out)
	return id, true
}

// MustFromHex is like FromHex, but panics on invalid input. For use in
// tests and package level variables.
func MustFromHex(in string) ObjectID {
	id, ok := FromHex(in)
	if !ok {
		panic("cannot create object id from " + in)
	}
	return id
}

// FromBytes creates an ObjectID based off raw bytes. The object format
// is inferred from the length of the input.
func FromBytes(in []byte) (ObjectID, bool) {
	var id ObjectID

	switch len(in) {
	case hash.SHA1Size:
		id.format = SHA1
	case hash.SHA256Size:
		id.format = SHA256
	default:
		return id, false
	}

	copy(id.sum[:], in)
	return id, true
}

// Format returns the object format of the id.
func (s ObjectID) Format() ObjectFormat {
	return s.format
}

// Size returns the length of the resulting hash.
func (s ObjectID) Size() int {
	return s.format.Size()
}

// HexSize returns the length of the hash in hexadecimal form.
func (s ObjectID) HexSize() int {
	return s.Size() * 2
}

// Bytes returns the slice of bytes containing the hash.
func (s ObjectID) Bytes() []byte {
	return s.sum[:s.Size()]
}

// Compare compares the hash's sum with a slice of bytes.
func (s ObjectID) Compare(b []byte) int {
	return bytes.Compare(s.sum[:s.Size()], b)
}

// Equal returns true when both ids hold the same sum.
func (s ObjectID) Equal(in ObjectID) bool {
	return s.sum == in.sum
}

// HasPrefix returns true when the sum starts with prefix.
func (s ObjectID) HasPrefix(prefix []byte) bool {
	return bytes.HasPrefix(s.sum[:s.Size()], prefix)
}

// IsZero returns true if the hash is zero.
func (s ObjectID) IsZero() bool {
	return bytes.Equal(s.sum[:], zeroSum)
}

// String returns the hexadecimal representation of the ObjectID.
func (s ObjectID) String() string {
	return hex.EncodeToString(s.sum[:s.Size()])
}

// ReadFrom loads the ObjectID from r, reading exactly Size bytes.
func (s *ObjectID) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.ReadFull(r, s.sum[:s.Size()])
	return int64(n), err
}

// WriteTo writes the raw sum into w.
func (s *ObjectID) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(s.sum[:s.Size()])
	return int64(n), err
}
