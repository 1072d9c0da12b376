package packfile

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/plumbing/cache"
)

type fakeSource struct {
	objects map[plumbing.ObjectID]plumbing.EncodedObject
	gets    int
}

func (s *fakeSource) Get(_ context.Context, id plumbing.ObjectID) (plumbing.EncodedObject, error) {
	s.gets++
	obj, ok := s.objects[id]
	if !ok {
		return nil, plumbing.ErrObjectNotFound
	}
	return obj, nil
}

func newBlobObject(t *testing.T, content []byte) plumbing.EncodedObject {
	t.Helper()

	obj := &plumbing.MemoryObject{}
	obj.SetType(plumbing.BlobObject)
	_, err := obj.Write(content)
	require.NoError(t, err)
	return obj
}

// scanEntries runs a built pack through the scanner, tracking every
// entry on the resolver as a session would.
func scanEntries(t *testing.T, r *Resolver, pack []byte) []Entry {
	t.Helper()

	s := NewScanner(bytes.NewReader(pack))
	_, entries, _ := scanAll(t, s)
	for i := range entries {
		r.Track(&entries[i])
	}
	return entries
}

func TestResolveLiteral(t *testing.T) {
	t.Parallel()

	base := []byte("0123456789")
	pack := buildPack(t, testEntry{typ: plumbing.BlobObject, payload: base})

	r := NewResolver(plumbing.SHA1, cache.NewObjectLRU(0), nil)
	entries := scanEntries(t, r, pack)

	obj, err := r.Resolve(context.Background(), &entries[0])
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, obj.Type())
	assert.True(t, entries[0].Hash.Equal(obj.Hash()))
}

func TestResolveOfsDelta(t *testing.T) {
	t.Parallel()

	base := []byte("0123456789")
	pack := buildPack(t,
		testEntry{typ: plumbing.BlobObject, payload: base},
		testEntry{typ: plumbing.OFSDeltaObject, payload: deltaPayload(len(base), true, []byte("ab")), baseIndex: 0},
	)

	lru := cache.NewObjectLRU(0)
	r := NewResolver(plumbing.SHA1, lru, nil)
	entries := scanEntries(t, r, pack)

	obj, err := r.Resolve(context.Background(), &entries[1])
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, obj.Type())
	assert.Equal(t, int64(12), obj.Size())

	data, err := objectBytes(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789ab"), data)

	want, err := plumbing.NewHasher(plumbing.SHA1).Compute(plumbing.BlobObject, data)
	require.NoError(t, err)
	assert.True(t, want.Equal(obj.Hash()))

	// The resolved object lands in the decode cache.
	_, ok := lru.Get(obj.Hash())
	assert.True(t, ok)
}

func TestResolveDeltaChain(t *testing.T) {
	t.Parallel()

	base := []byte("0123456789")
	pack := buildPack(t,
		testEntry{typ: plumbing.BlobObject, payload: base},
		testEntry{typ: plumbing.OFSDeltaObject, payload: deltaPayload(len(base), true, []byte("ab")), baseIndex: 0},
		testEntry{typ: plumbing.OFSDeltaObject, payload: deltaPayload(len(base)+2, true, []byte("cd")), baseIndex: 1},
	)

	r := NewResolver(plumbing.SHA1, cache.NewObjectLRU(0), nil)
	entries := scanEntries(t, r, pack)

	obj, err := r.Resolve(context.Background(), &entries[2])
	require.NoError(t, err)

	data, err := objectBytes(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789abcd"), data)
}

func TestResolveRefDeltaFromStore(t *testing.T) {
	t.Parallel()

	base := newBlobObject(t, []byte("0123456789"))
	src := &fakeSource{objects: map[plumbing.ObjectID]plumbing.EncodedObject{
		base.Hash(): base,
	}}

	pack := buildPack(t,
		testEntry{typ: plumbing.REFDeltaObject, payload: deltaPayload(10, true, []byte("ab")), baseRef: base.Hash()},
	)

	lru := cache.NewObjectLRU(0)
	r := NewResolver(plumbing.SHA1, lru, src)
	entries := scanEntries(t, r, pack)

	obj, err := r.Resolve(context.Background(), &entries[0])
	require.NoError(t, err)

	data, err := objectBytes(obj)
	require.NoError(t, err)
	assert.Equal(t, []byte("0123456789ab"), data)
	assert.Equal(t, 1, src.gets)

	// A second ref-delta against the same base hits the cache instead.
	pack2 := buildPack(t,
		testEntry{typ: plumbing.REFDeltaObject, payload: deltaPayload(10, true, []byte("cd")), baseRef: base.Hash()},
	)
	entries2 := scanEntries(t, r, pack2)

	_, err = r.Resolve(context.Background(), &entries2[0])
	require.NoError(t, err)
	assert.Equal(t, 1, src.gets, "cached base must not be re-fetched")
}

func TestResolveRefDeltaMissingBase(t *testing.T) {
	t.Parallel()

	ref := plumbing.MustFromHex("8ab686eafeb1f44702738c8b0f24f2567c36da6d")
	pack := buildPack(t,
		testEntry{typ: plumbing.REFDeltaObject, payload: deltaPayload(10, true, nil), baseRef: ref},
	)

	r := NewResolver(plumbing.SHA1, cache.NewObjectLRU(0), &fakeSource{})
	entries := scanEntries(t, r, pack)

	_, err := r.Resolve(context.Background(), &entries[0])
	require.Error(t, err)

	var mbe *plumbing.MissingBaseError
	require.True(t, errors.As(err, &mbe))
	assert.True(t, ref.Equal(mbe.Base))
}

func TestResolveUnknownBaseOffset(t *testing.T) {
	t.Parallel()

	r := NewResolver(plumbing.SHA1, cache.NewObjectLRU(0), nil)

	e := &Entry{
		Offset:     100,
		Type:       plumbing.OFSDeltaObject,
		BaseOffset: 50,
		Payload:    deltaPayload(10, true, nil),
	}
	r.Track(e)

	_, err := r.Resolve(context.Background(), e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownBaseOffset))

	var fe *plumbing.FormatError
	assert.True(t, errors.As(err, &fe))
}

func TestResolveForwardBaseReference(t *testing.T) {
	t.Parallel()

	r := NewResolver(plumbing.SHA1, cache.NewObjectLRU(0), nil)

	e := &Entry{
		Offset:     12,
		Type:       plumbing.OFSDeltaObject,
		BaseOffset: 40,
		Payload:    deltaPayload(10, true, nil),
	}
	r.Track(e)

	_, err := r.Resolve(context.Background(), e)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrForwardBaseReference))
}

func TestResolveCyclicBaseReference(t *testing.T) {
	t.Parallel()

	r := NewResolver(plumbing.SHA1, cache.NewObjectLRU(0), nil)

	a := &Entry{Offset: 40, Type: plumbing.OFSDeltaObject, BaseOffset: 12, Payload: deltaPayload(10, true, nil)}
	b := &Entry{Offset: 12, Type: plumbing.OFSDeltaObject, BaseOffset: 40, Payload: deltaPayload(10, true, nil)}
	r.Track(a)
	r.Track(b)

	_, err := r.Resolve(context.Background(), a)
	require.Error(t, err)

	// The cycle trips either the forward or the visited check,
	// depending on traversal order; both are format errors.
	var fe *plumbing.FormatError
	assert.True(t, errors.As(err, &fe))
}
