package cache

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"

	"github.com/quarry-scm/quarry/plumbing"

	. "gopkg.in/check.v1"
)

func Test(t *testing.T) { TestingT(t) }

type ObjectSuite struct {
	c       *ObjectLRU
	aObject plumbing.EncodedObject
	bObject plumbing.EncodedObject
	cObject plumbing.EncodedObject
	dObject plumbing.EncodedObject
	eObject plumbing.EncodedObject
}

var _ = Suite(&ObjectSuite{})

func (s *ObjectSuite) SetUpTest(c *C) {
	s.aObject = newObject("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa", 1*Byte)
	s.bObject = newObject("bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb", 3*Byte)
	s.cObject = newObject("cccccccccccccccccccccccccccccccccccccccc", 1*Byte)
	s.dObject = newObject("dddddddddddddddddddddddddddddddddddddddd", 1*Byte)
	s.eObject = newObject("eeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee", 2*Byte)

	s.c = NewObjectLRU(2 * Byte)
}

func newObject(hash string, size FileSize) plumbing.EncodedObject {
	o := &plumbing.MemoryObject{}
	o.SetType(plumbing.BlobObject)
	o.SetHash(plumbing.MustFromHex(hash))
	o.SetSize(int64(size))
	return o
}

func (s *ObjectSuite) TestPutSameObject(c *C) {
	s.c.Put(s.aObject)
	c.Assert(s.c.actualSize, Equals, 1*Byte)
	s.c.Put(s.aObject)
	c.Assert(s.c.actualSize, Equals, 1*Byte)

	_, ok := s.c.Get(s.aObject.Hash())
	c.Assert(ok, Equals, true)
}

func (s *ObjectSuite) TestPutBigObject(c *C) {
	s.c.Put(s.bObject)
	c.Assert(s.c.actualSize, Equals, 0*Byte)
	c.Assert(s.c.ll.Size(), Equals, 0)

	_, ok := s.c.Get(s.bObject.Hash())
	c.Assert(ok, Equals, false)
}

func (s *ObjectSuite) TestPutCacheOverflow(c *C) {
	s.c.Put(s.aObject)
	c.Assert(s.c.actualSize, Equals, 1*Byte)
	s.c.Put(s.cObject)
	c.Assert(s.c.ll.Size(), Equals, 2)
	s.c.Put(s.dObject)
	c.Assert(s.c.ll.Size(), Equals, 2)

	// The oldest entry is the one evicted.
	_, ok := s.c.Get(s.aObject.Hash())
	c.Assert(ok, Equals, false)
	_, ok = s.c.Get(s.cObject.Hash())
	c.Assert(ok, Equals, true)
	_, ok = s.c.Get(s.dObject.Hash())
	c.Assert(ok, Equals, true)
}

func (s *ObjectSuite) TestEvictMultipleObjects(c *C) {
	s.c.Put(s.cObject)
	s.c.Put(s.dObject)

	// Both resident entries must go to make room for a 2-byte object.
	s.c.Put(s.eObject)
	c.Assert(s.c.actualSize, Equals, 2*Byte)
	c.Assert(s.c.ll.Size(), Equals, 1)

	_, ok := s.c.Get(s.eObject.Hash())
	c.Assert(ok, Equals, true)
}

func (s *ObjectSuite) TestGetRefreshesRecency(c *C) {
	s.c.Put(s.aObject)
	s.c.Put(s.cObject)

	// Touch a, making c the oldest.
	_, ok := s.c.Get(s.aObject.Hash())
	c.Assert(ok, Equals, true)

	s.c.Put(s.dObject)
	_, ok = s.c.Get(s.aObject.Hash())
	c.Assert(ok, Equals, true)
	_, ok = s.c.Get(s.cObject.Hash())
	c.Assert(ok, Equals, false)
}

func (s *ObjectSuite) TestClear(c *C) {
	s.c.Put(s.aObject)
	s.c.Clear()
	c.Assert(s.c.actualSize, Equals, 0*Byte)

	_, ok := s.c.Get(s.aObject.Hash())
	c.Assert(ok, Equals, false)
}

func (s *ObjectSuite) TestGetOrLoadsOnce(c *C) {
	var loads int
	load := func() (plumbing.EncodedObject, error) {
		loads++
		return s.aObject, nil
	}

	obj, err := s.c.GetOr(s.aObject.Hash(), load)
	c.Assert(err, IsNil)
	c.Assert(obj.Hash(), Equals, s.aObject.Hash())
	c.Assert(loads, Equals, 1)

	// The loaded object is now resident.
	_, err = s.c.GetOr(s.aObject.Hash(), load)
	c.Assert(err, IsNil)
	c.Assert(loads, Equals, 1)
}

func (s *ObjectSuite) TestGetOrLoadError(c *C) {
	boom := errors.New("boom")
	_, err := s.c.GetOr(s.aObject.Hash(), func() (plumbing.EncodedObject, error) {
		return nil, boom
	})
	c.Assert(errors.Is(err, boom), Equals, true)
}

func (s *ObjectSuite) TestGetOrConcurrent(c *C) {
	var mu sync.Mutex
	loads := 0

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			obj, err := s.c.GetOr(s.aObject.Hash(), func() (plumbing.EncodedObject, error) {
				mu.Lock()
				loads++
				mu.Unlock()
				return s.aObject, nil
			})
			c.Check(err, IsNil)
			c.Check(obj, NotNil)
		}()
	}
	wg.Wait()

	// Concurrent lookups of the same id collapse; the load may run a
	// small number of times across flights but never once per caller.
	c.Check(loads < 16, Equals, true)
}

func (s *ObjectSuite) TestConcurrentAccess(c *C) {
	var wg sync.WaitGroup
	for i := 0; i < 1000; i++ {
		wg.Add(3)
		go func(i int) {
			s.c.Put(newObject(fmt.Sprintf("%040d", i), FileSize(i%30)))
			wg.Done()
		}(i)

		go func(i int) {
			s.c.GetOr(plumbing.MustFromHex(fmt.Sprintf("%040d", i)), func() (plumbing.EncodedObject, error) {
				return newObject(fmt.Sprintf("%040d", i), FileSize(i%30)), nil
			})
			wg.Done()
		}(i)

		go func(i int) {
			s.c.Get(plumbing.MustFromHex(fmt.Sprintf("%040d", i)))
			wg.Done()
		}(i)
	}

	wg.Wait()
}

func (s *ObjectSuite) TestDefaultMaxSize(c *C) {
	cache := NewObjectLRU(0)
	c.Assert(cache.MaxSize, Equals, DefaultMaxSize)
}

type SpillSuite struct{}

var _ = Suite(&SpillSuite{})

func blobObject(content string) plumbing.EncodedObject {
	o := &plumbing.MemoryObject{}
	o.SetType(plumbing.BlobObject)
	o.Write([]byte(content))
	o.Hash()
	return o
}

func (s *SpillSuite) TestEvictedObjectSpillsToDisk(c *C) {
	fs := memfs.New()
	cache := NewObjectLRU(10*Byte, WithSpill(fs))

	a := blobObject("aaaaaaaaaa")
	b := blobObject("bbbbbbbbbb")

	cache.Put(a)
	cache.Put(b) // evicts a

	_, ok := cache.Get(a.Hash())
	c.Assert(ok, Equals, false)

	// The spilled copy is found by GetOr without invoking the loader.
	obj, err := cache.GetOr(a.Hash(), func() (plumbing.EncodedObject, error) {
		return nil, errors.New("loader must not run")
	})
	c.Assert(err, IsNil)
	c.Assert(obj.Hash(), Equals, a.Hash())
	c.Assert(obj.Type(), Equals, plumbing.BlobObject)
	c.Assert(obj.Size(), Equals, int64(10))
}

func (s *SpillSuite) TestPurgeSpill(c *C) {
	fs := memfs.New()
	cache := NewObjectLRU(10*Byte, WithSpill(fs))

	cache.Put(blobObject("aaaaaaaaaa"))
	a := blobObject("aaaaaaaaaa")
	cache.Put(blobObject("bbbbbbbbbb")) // spills a

	c.Assert(cache.PurgeSpill(), IsNil)

	loaded := false
	_, err := cache.GetOr(a.Hash(), func() (plumbing.EncodedObject, error) {
		loaded = true
		return a, nil
	})
	c.Assert(err, IsNil)
	c.Assert(loaded, Equals, true)
}

func (s *SpillSuite) TestPurgeSpillWithoutSpill(c *C) {
	cache := NewObjectLRU(10 * Byte)
	c.Assert(cache.PurgeSpill(), IsNil)
}
