package plumbing

import (
	"hash"
	"strconv"
	"sync"

	qhash "github.com/quarry-scm/quarry/plumbing/hash"
)

// Hasher computes ObjectIDs from the canonical serialized form of an
// object: the type header ("<type> <size>\x00") followed by the
// payload. It can be used in streaming mode (Reset, Write, Sum) or as
// a one-shot via Compute.
//
// Hasher is not thread-safe, see SyncedHasher.
type Hasher struct {
	h      hash.Hash
	format ObjectFormat
}

// NewHasher returns a Hasher for the given object format.
func NewHasher(f ObjectFormat) *Hasher {
	return &Hasher{h: qhash.New(f.CryptoHash()), format: f}
}

// Format returns the object format the hasher yields ids for.
func (h *Hasher) Format() ObjectFormat {
	return h.format
}

// Reset prepares the hasher for a new object of the given type and
// payload size, writing the canonical header.
func (h *Hasher) Reset(t ObjectType, size int64) {
	h.h.Reset()
	writeHeader(h.h, t, size)
}

func (h *Hasher) Write(p []byte) (int, error) {
	return h.h.Write(p)
}

// Sum returns the ObjectID for the object written so far.
func (h *Hasher) Sum() ObjectID {
	id := ObjectID{format: h.format}
	copy(id.sum[:], h.h.Sum(nil))
	return id
}

// Compute calculates the id of a whole object payload at once.
func (h *Hasher) Compute(t ObjectType, payload []byte) (ObjectID, error) {
	h.Reset(t, int64(len(payload)))
	if _, err := h.Write(payload); err != nil {
		return ObjectID{format: h.format}, err
	}
	return h.Sum(), nil
}

// SyncedHasher wraps a Hasher with a mutex so that it can be shared
// across sessions.
type SyncedHasher struct {
	h Hasher
	m sync.Mutex
}

// NewSyncedHasher returns a thread-safe hasher for the given format.
func NewSyncedHasher(f ObjectFormat) *SyncedHasher {
	return &SyncedHasher{h: Hasher{h: qhash.New(f.CryptoHash()), format: f}}
}

// Compute calculates the id of a whole object payload at once.
func (s *SyncedHasher) Compute(t ObjectType, payload []byte) (ObjectID, error) {
	s.m.Lock()
	defer s.m.Unlock()
	return s.h.Compute(t, payload)
}

func writeHeader(h hash.Hash, t ObjectType, size int64) {
	h.Write(t.Bytes())
	h.Write([]byte(" "))
	h.Write([]byte(strconv.FormatInt(size, 10)))
	h.Write([]byte{0})
}
