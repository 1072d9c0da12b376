package plumbing

import (
	"bytes"
	"io"
)

// MemoryObject on memory object storage
type MemoryObject struct {
	t    ObjectType
	h    ObjectID
	cont []byte
	sz   int64
}

// Hash returns the object id, computing it from the content if it has
// not been set. The id is only computed once, the first time it is
// called, and is computed in the SHA1 format unless SetHash was used.
func (o *MemoryObject) Hash() ObjectID {
	if o.h.IsZero() && int64(len(o.cont)) == o.sz {
		id, err := NewHasher(o.h.format).Compute(o.t, o.cont)
		if err != nil {
			return ZeroID
		}
		o.h = id
	}

	return o.h
}

// SetHash sets the id of the object, avoiding it being recomputed from
// the content. Callers own the consistency between id and content.
func (o *MemoryObject) SetHash(h ObjectID) {
	o.h = h
}

// Type returns the ObjectType
func (o *MemoryObject) Type() ObjectType { return o.t }

// SetType sets the ObjectType
func (o *MemoryObject) SetType(t ObjectType) { o.t = t }

// Size returns the size of the object
func (o *MemoryObject) Size() int64 { return o.sz }

// SetSize set the object size, a content of the given size should be
// written afterwards
func (o *MemoryObject) SetSize(s int64) { o.sz = s }

// Contents returns the contents of the object
func (o *MemoryObject) Contents() []byte {
	return o.cont
}

// Reader returns an io.ReadCloser used to read the object's content.
//
// For a MemoryObject, this reader is seekable.
func (o *MemoryObject) Reader() (io.ReadCloser, error) {
	return nopCloser{bytes.NewReader(o.cont)}, nil
}

// Writer returns an io.WriteCloser used to write the object's content.
func (o *MemoryObject) Writer() (io.WriteCloser, error) {
	return o, nil
}

func (o *MemoryObject) Write(p []byte) (n int, err error) {
	o.cont = append(o.cont, p...)
	o.sz = int64(len(o.cont))

	return len(p), nil
}

// Close releases any resources consumed by the object when it is acting as a
// io.Writer.
func (o *MemoryObject) Close() error { return nil }

type nopCloser struct {
	io.ReadSeeker
}

// Close does nothing.
func (nc nopCloser) Close() error { return nil }
