// Package storage implements the content-addressable object store: a
// two-tier persistence layer that keeps small objects inline in a
// relational row store and large objects in a blob backend, selected
// by a size threshold.
package storage

import (
	"context"

	"github.com/quarry-scm/quarry/plumbing"
)

// Row is the persisted form of an inline object: a record keyed by
// object id. For blob-tier objects the payload is empty and Location
// points into the blob backend instead.
type Row struct {
	ID       plumbing.ObjectID
	Type     plumbing.ObjectType
	Size     int64
	Payload  []byte
	Location string
}

// RowStore is the relational persistence collaborator for the inline
// tier. Implementations are expected to make Save transactional with
// the owning repository's metadata store.
type RowStore interface {
	// Save persists the row. Saving an id that already exists is an
	// error, callers deduplicate beforehand.
	Save(ctx context.Context, row *Row) error
	// Find returns the row for the given id, or
	// plumbing.ErrObjectNotFound when absent.
	Find(ctx context.Context, id plumbing.ObjectID) (*Row, error)
}

// BlobStore is the large-object backend: a flat keyed byte store,
// satisfiable by a local filesystem or remote object storage.
type BlobStore interface {
	// Put writes data under key and returns the location an eventual
	// Get must use. Writing the same key twice with identical content
	// is permitted, keys are content-addressed.
	Put(ctx context.Context, key string, data []byte) (location string, err error)
	// Get returns the bytes stored at location.
	Get(ctx context.Context, location string) ([]byte, error)
}

// Placement tags where an object's payload lives. It is decided once,
// at first write, and is immutable thereafter.
type Placement int8

const (
	// Inline places the payload in the row store.
	Inline Placement = iota
	// Blob places the payload in the blob backend, with only a
	// reference recorded inline.
	Blob
)

func (p Placement) String() string {
	if p == Blob {
		return "blob"
	}
	return "inline"
}

// StoredObject describes a persisted object and its placement.
type StoredObject struct {
	ID        plumbing.ObjectID
	Type      plumbing.ObjectType
	Size      int64
	Placement Placement
	// Location is the blob backend location, empty for inline rows.
	Location string
}

// PlacementFor decides the tier for a payload of the given size:
// size ≥ threshold places the payload in the blob tier, anything
// smaller stays inline. It is a pure function of its inputs so the
// boundary can be tested precisely.
func PlacementFor(threshold, size int64) Placement {
	if threshold > 0 && size >= threshold {
		return Blob
	}
	return Inline
}
