package packfile

import (
	"context"
	"errors"
	"io"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/plumbing/cache"
	"github.com/quarry-scm/quarry/utils/trace"
)

// Resolver errors.
var (
	// ErrForwardBaseReference is returned when an ofs-delta references
	// an offset at or after its own position.
	ErrForwardBaseReference = NewError("forward base reference")
	// ErrCyclicBaseReference is returned when following ofs-delta
	// bases revisits an offset.
	ErrCyclicBaseReference = NewError("cyclic base reference")
	// ErrUnknownBaseOffset is returned when an ofs-delta base offset
	// does not match the start of any previous entry.
	ErrUnknownBaseOffset = NewError("no entry starts at base offset")
)

// ObjectSource looks decoded objects up by id. It is implemented by
// the object store.
type ObjectSource interface {
	Get(ctx context.Context, id plumbing.ObjectID) (plumbing.EncodedObject, error)
}

// BaseCache is the decode cache contract the resolver needs: plain
// lookups for in-pack bases plus single-flight loading for bases that
// live in the object store.
type BaseCache interface {
	cache.Object
	GetOr(k plumbing.ObjectID, load cache.Loader) (plumbing.EncodedObject, error)
}

// Resolver reconstructs full objects from delta entries, locating
// bases in the same pack (by offset), in the decode cache, or in the
// object store (by id).
//
// Delta chains are walked with an explicit worklist keyed by pack
// offset, rather than call recursion, so that pathological chains
// cannot exhaust the stack and cycles are detected directly.
//
// Resolver is scoped to a single pack decode session and is not
// thread-safe.
type Resolver struct {
	format plumbing.ObjectFormat
	hasher *plumbing.Hasher

	byOffset   map[int64]*Entry
	idByOffset map[int64]plumbing.ObjectID

	cache BaseCache
	store ObjectSource
}

// NewResolver returns a Resolver for one pack decode session. store
// may be nil, in which case every ref-delta whose base is not cached
// fails with a MissingBaseError.
func NewResolver(f plumbing.ObjectFormat, c BaseCache, store ObjectSource) *Resolver {
	return &Resolver{
		format:     f,
		hasher:     plumbing.NewHasher(f),
		byOffset:   make(map[int64]*Entry),
		idByOffset: make(map[int64]plumbing.ObjectID),
		cache:      c,
		store:      store,
	}
}

// Track registers a scanned entry so later ofs-deltas can locate it.
// Entries must be tracked in stream order.
func (r *Resolver) Track(e *Entry) {
	r.byOffset[e.Offset] = e
	if !e.IsDelta() {
		r.idByOffset[e.Offset] = e.Hash
	}
}

// Resolve returns the full object for e, reconstructing delta entries
// against their base. Resolved objects are pushed into the decode
// cache immediately so sibling deltas in the same chain reuse them.
func (r *Resolver) Resolve(ctx context.Context, e *Entry) (plumbing.EncodedObject, error) {
	if !e.IsDelta() {
		return r.literal(e)
	}

	base, chain, err := r.walkBases(ctx, e)
	if err != nil {
		return nil, err
	}

	// Unwind the chain, deepest base first.
	for i := len(chain) - 1; i >= 0; i-- {
		d := chain[i]

		srcBytes, err := objectBytes(base)
		if err != nil {
			return nil, err
		}

		out, err := PatchDelta(srcBytes, d.Payload)
		if err != nil {
			return nil, err
		}

		obj := &plumbing.MemoryObject{}
		obj.SetType(base.Type())
		if _, err := obj.Write(out); err != nil {
			return nil, err
		}

		id, err := r.hasher.Compute(obj.Type(), out)
		if err != nil {
			return nil, err
		}
		obj.SetHash(id)

		r.idByOffset[d.Offset] = id
		r.cache.Put(obj)

		trace.Pack.Printf("packfile: resolved %s delta at offset %d into %s",
			d.Type, d.Offset, id)

		base = obj
	}

	return base, nil
}

// walkBases follows the base references of e until it reaches a
// non-delta entry or an object available from the cache or store. It
// returns the base object and the delta entries to apply, outermost
// first.
func (r *Resolver) walkBases(ctx context.Context, e *Entry) (plumbing.EncodedObject, []*Entry, error) {
	var chain []*Entry
	visited := make(map[int64]bool)

	cur := e
	for {
		if visited[cur.Offset] {
			return nil, nil, plumbing.NewFormatError(
				ErrCyclicBaseReference.AddDetails("offset %d", cur.Offset))
		}
		visited[cur.Offset] = true
		chain = append(chain, cur)

		switch cur.Type {
		case plumbing.OFSDeltaObject:
			if cur.BaseOffset >= cur.Offset {
				return nil, nil, plumbing.NewFormatError(
					ErrForwardBaseReference.AddDetails("offset %d references %d", cur.Offset, cur.BaseOffset))
			}

			be, ok := r.byOffset[cur.BaseOffset]
			if !ok {
				return nil, nil, plumbing.NewFormatError(
					ErrUnknownBaseOffset.AddDetails("offset %d", cur.BaseOffset))
			}

			// A previously resolved base may still be cached, saving
			// the re-application of its own chain.
			if id, ok := r.idByOffset[be.Offset]; ok && be.IsDelta() {
				if obj, hit := r.cache.Get(id); hit {
					return obj, chain, nil
				}
			}

			if !be.IsDelta() {
				base, err := r.literal(be)
				if err != nil {
					return nil, nil, err
				}
				return base, chain, nil
			}

			cur = be

		case plumbing.REFDeltaObject:
			base, err := r.cache.GetOr(cur.BaseRef, func() (plumbing.EncodedObject, error) {
				if r.store == nil {
					return nil, plumbing.ErrObjectNotFound
				}
				return r.store.Get(ctx, cur.BaseRef)
			})
			if err != nil {
				if errors.Is(err, plumbing.ErrObjectNotFound) {
					return nil, nil, &plumbing.MissingBaseError{Base: cur.BaseRef}
				}
				return nil, nil, err
			}
			return base, chain, nil

		default:
			// Track only accepts entries out of the scanner, which
			// validates types, so this is unreachable in practice.
			return nil, nil, plumbing.NewFormatError(
				ErrMalformedPackfile.AddDetails("entry at offset %d is not a delta", cur.Offset))
		}
	}
}

// literal builds the object for a non-delta entry.
func (r *Resolver) literal(e *Entry) (plumbing.EncodedObject, error) {
	obj := &plumbing.MemoryObject{}
	obj.SetType(e.Type)
	if _, err := obj.Write(e.Payload); err != nil {
		return nil, err
	}
	obj.SetHash(e.Hash)

	r.cache.Put(obj)
	return obj, nil
}

func objectBytes(obj plumbing.EncodedObject) ([]byte, error) {
	if mo, ok := obj.(*plumbing.MemoryObject); ok {
		return mo.Contents(), nil
	}

	rd, err := obj.Reader()
	if err != nil {
		return nil, err
	}
	defer rd.Close()

	return io.ReadAll(rd)
}
