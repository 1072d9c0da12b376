package cache

import (
	"sync"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"golang.org/x/sync/singleflight"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/utils/trace"
)

// ObjectLRU implements an object cache with fixed memory budget and
// LRU eviction policy. The zero value is not usable, see NewObjectLRU.
//
// All mutation is serialized per cache while loads collapse per id:
// concurrent GetOr calls for the same id trigger exactly one load.
type ObjectLRU struct {
	// MaxSize is the memory budget, in bytes. The sum of the sizes of
	// the resident entries never exceeds it.
	MaxSize FileSize

	actualSize FileSize
	ll         *linkedhashmap.Map
	mut        sync.Mutex

	loading singleflight.Group
	spill   *spill
}

// NewObjectLRU creates a new ObjectLRU with the given memory budget.
func NewObjectLRU(maxSize FileSize, opts ...Option) *ObjectLRU {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}

	c := &ObjectLRU{
		MaxSize: maxSize,
		ll:      linkedhashmap.New(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Put puts an object into the cache. If the object is already in the
// cache, it will be marked as used. Otherwise, it will be inserted.
// Entries are evicted, oldest first, until the new object fits the
// budget. A single object bigger than the budget is not cached.
func (c *ObjectLRU) Put(obj plumbing.EncodedObject) {
	c.mut.Lock()
	defer c.mut.Unlock()

	key := obj.Hash().String()
	if _, ok := c.ll.Get(key); ok {
		// Refresh recency and swap the value.
		c.ll.Remove(key)
		c.ll.Put(key, obj)
		return
	}

	objSize := FileSize(obj.Size())
	if objSize > c.MaxSize {
		trace.Cache.Printf("cache: object %s (%d bytes) exceeds the budget, bypassing", obj.Hash(), objSize)
		return
	}

	for c.actualSize+objSize > c.MaxSize {
		if !c.evictOldest() {
			break
		}
	}

	c.ll.Put(key, obj)
	c.actualSize += objSize
}

// Get returns an object by its hash. It marks the object as used.
func (c *ObjectLRU) Get(k plumbing.ObjectID) (plumbing.EncodedObject, bool) {
	c.mut.Lock()
	defer c.mut.Unlock()

	return c.get(k)
}

func (c *ObjectLRU) get(k plumbing.ObjectID) (plumbing.EncodedObject, bool) {
	key := k.String()
	v, ok := c.ll.Get(key)
	if !ok {
		return nil, false
	}

	obj := v.(plumbing.EncodedObject)
	c.ll.Remove(key)
	c.ll.Put(key, obj)

	return obj, true
}

// GetOr returns the object with the given id, loading it at most once
// when absent. Concurrent calls for the same id wait for and reuse the
// first caller's in-flight result. Unrelated ids do not contend.
//
// When a spill directory is configured, it is consulted before the
// loader. Loaded objects are inserted into the cache.
func (c *ObjectLRU) GetOr(k plumbing.ObjectID, load Loader) (plumbing.EncodedObject, error) {
	if obj, ok := c.Get(k); ok {
		return obj, nil
	}

	v, err, _ := c.loading.Do(k.String(), func() (interface{}, error) {
		// The object may have landed while this caller was waiting
		// for the flight token.
		c.mut.Lock()
		if obj, ok := c.get(k); ok {
			c.mut.Unlock()
			return obj, nil
		}
		c.mut.Unlock()

		if c.spill != nil {
			if obj, err := c.spill.read(k); err == nil {
				trace.Cache.Printf("cache: spill hit for %s", k)
				c.Put(obj)
				return obj, nil
			}
		}

		obj, err := load()
		if err != nil {
			return nil, err
		}

		c.Put(obj)
		return obj, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(plumbing.EncodedObject), nil
}

// evictOldest drops the least-recently-used entry, writing it to the
// spill directory when one is configured. Returns false when the cache
// is empty.
func (c *ObjectLRU) evictOldest() bool {
	it := c.ll.Iterator()
	if !it.Next() {
		return false
	}

	key := it.Key().(string)
	obj := it.Value().(plumbing.EncodedObject)

	c.ll.Remove(key)
	c.actualSize -= FileSize(obj.Size())

	if c.spill != nil {
		if err := c.spill.write(obj); err != nil {
			trace.Cache.Printf("cache: spill write for %s failed: %v", key, err)
		}
	}

	trace.Cache.Printf("cache: evicted %s (%d bytes)", key, obj.Size())
	return true
}

// Clear the content of this object cache.
func (c *ObjectLRU) Clear() {
	c.mut.Lock()
	defer c.mut.Unlock()

	c.ll.Clear()
	c.actualSize = 0
}

// PurgeSpill removes every entry from the spill directory. It is a
// no-op when no spill directory is configured.
func (c *ObjectLRU) PurgeSpill() error {
	if c.spill == nil {
		return nil
	}
	return c.spill.purge()
}
