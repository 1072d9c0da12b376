// Package cache implements the decode cache: a memory-bounded cache of
// fully decoded objects keyed by id, used to short-circuit repeated
// base lookups within and across pack-processing sessions.
package cache

import "github.com/quarry-scm/quarry/plumbing"

const (
	Byte FileSize = 1 << (iota * 10)
	KiByte
	MiByte
	GiByte
)

// DefaultMaxSize is the default memory budget for a decode cache.
const DefaultMaxSize FileSize = 96 * MiByte

// FileSize is an amount of bytes.
type FileSize int64

// Object is a cache of decoded objects keyed by their id.
type Object interface {
	// Put caches o. The aggregate resident size never exceeds the
	// cache's budget: least-recently-used entries are evicted to make
	// room, and an object bigger than the whole budget is not cached
	// at all.
	Put(o plumbing.EncodedObject)
	// Get returns the cached object with the given id, if present.
	Get(k plumbing.ObjectID) (plumbing.EncodedObject, bool)
	// Clear drops every entry from the cache.
	Clear()
}

// Loader produces an object that is not in the cache, typically by
// reading it from the object store.
type Loader func() (plumbing.EncodedObject, error)
