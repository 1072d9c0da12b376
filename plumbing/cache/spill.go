package cache

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/quarry-scm/quarry/plumbing"
)

// Option configures an ObjectLRU.
type Option func(*ObjectLRU)

// WithSpill gives the cache a disk spill directory: entries evicted
// from memory are written there, keyed by id, instead of being
// discarded, avoiding re-decoding across sessions.
//
// The spill directory is unbounded and advisory, it is never counted
// against the memory budget. PurgeSpill is its only retention control.
func WithSpill(fs billy.Filesystem) Option {
	return func(c *ObjectLRU) {
		c.spill = &spill{fs: fs}
	}
}

type spill struct {
	fs billy.Filesystem
}

// write persists the object in its canonical serialized form: the type
// header followed by the payload, so that a read back can recompute
// and verify the id.
func (s *spill) write(obj plumbing.EncodedObject) error {
	r, err := obj.Reader()
	if err != nil {
		return err
	}
	defer r.Close()

	var buf bytes.Buffer
	buf.Grow(int(obj.Size()) + 32)
	fmt.Fprintf(&buf, "%s %d\x00", obj.Type(), obj.Size())
	if _, err := io.Copy(&buf, r); err != nil {
		return err
	}

	return util.WriteFile(s.fs, obj.Hash().String(), buf.Bytes(), 0o644)
}

// read loads a spilled object back. The id is trusted from the file
// name, the header only carries type and size.
func (s *spill) read(k plumbing.ObjectID) (plumbing.EncodedObject, error) {
	data, err := util.ReadFile(s.fs, k.String())
	if err != nil {
		return nil, err
	}

	header, payload, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return nil, fmt.Errorf("malformed spill entry %s", k)
	}

	typ, sz, ok := bytes.Cut(header, []byte{' '})
	if !ok {
		return nil, fmt.Errorf("malformed spill entry header %s", k)
	}

	t, err := plumbing.ParseObjectType(string(typ))
	if err != nil {
		return nil, err
	}

	size, err := strconv.ParseInt(string(sz), 10, 64)
	if err != nil || size != int64(len(payload)) {
		return nil, fmt.Errorf("corrupt spill entry %s", k)
	}

	obj := &plumbing.MemoryObject{}
	obj.SetType(t)
	obj.SetHash(k)
	if _, err := obj.Write(payload); err != nil {
		return nil, err
	}

	return obj, nil
}

// purge removes every spilled entry.
func (s *spill) purge() error {
	entries, err := s.fs.ReadDir(".")
	if err != nil {
		return err
	}

	for _, fi := range entries {
		if fi.IsDir() {
			continue
		}
		if err := s.fs.Remove(fi.Name()); err != nil {
			return err
		}
	}

	return nil
}
