package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"golang.org/x/sync/singleflight"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/utils/trace"
)

// ErrObjectCorrupted is returned when an object id maps to content
// with a different type or size than the one being written: a hash
// collision, treated as store corruption and never overwritten.
var ErrObjectCorrupted = errors.New("stored object does not match content")

// DefaultThreshold is the default inline/blob placement threshold.
// Payloads of this size and above go to the blob tier, mirroring the
// usual large-file cut-off.
const DefaultThreshold int64 = 512 * 1024

// Store is the content-addressable object store. Writes are
// deduplicated by id and linearizable per id: concurrent puts of the
// same object collapse into one write.
type Store struct {
	rows   RowStore
	blobs  BlobStore
	format plumbing.ObjectFormat

	// threshold is the payload size, in bytes, at which placement
	// switches to the blob tier.
	threshold int64

	hasher  *plumbing.SyncedHasher
	writing singleflight.Group
}

// Options configures a Store.
type Options struct {
	// Threshold is the inline/blob boundary in bytes. Zero means
	// DefaultThreshold; a negative value disables the blob tier.
	Threshold int64
	// Format is the object addressing format, defaults to SHA1.
	Format plumbing.ObjectFormat
}

// NewStore returns a Store over the given tiers. blobs may be nil only
// when the threshold is negative.
func NewStore(rows RowStore, blobs BlobStore, opts Options) *Store {
	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if threshold < 0 {
		threshold = 0
	}

	return &Store{
		rows:      rows,
		blobs:     blobs,
		format:    opts.Format,
		threshold: threshold,
		hasher:    plumbing.NewSyncedHasher(opts.Format),
	}
}

type putResult struct {
	stored *StoredObject
	dedup  bool
}

// Put persists obj, returning its stored form and whether an identical
// object was already present (a dedup hit). Repeated puts of identical
// content never write twice.
//
// The object id is recomputed from the canonical serialized form; an
// object carrying a mismatched id fails with an IntegrityError.
func (s *Store) Put(ctx context.Context, obj plumbing.EncodedObject) (*StoredObject, bool, error) {
	payload, err := objectBytes(obj)
	if err != nil {
		return nil, false, plumbing.NewStorageError(err)
	}

	id, err := s.hasher.Compute(obj.Type(), payload)
	if err != nil {
		return nil, false, plumbing.NewStorageError(err)
	}

	if declared := obj.Hash(); !declared.IsZero() && !declared.Equal(id) {
		return nil, false, plumbing.NewIntegrityError(
			fmt.Errorf("declared id %s does not match content id %s", declared, id))
	}

	v, err, shared := s.writing.Do(id.String(), func() (interface{}, error) {
		return s.put(ctx, id, obj.Type(), payload)
	})
	if err != nil {
		return nil, false, err
	}

	res := v.(putResult)
	return res.stored, res.dedup || shared, nil
}

// put runs at most once per id at a time, via the single-flight group.
func (s *Store) put(ctx context.Context, id plumbing.ObjectID, t plumbing.ObjectType, payload []byte) (putResult, error) {
	size := int64(len(payload))

	existing, err := s.rows.Find(ctx, id)
	if err != nil && !errors.Is(err, plumbing.ErrObjectNotFound) {
		return putResult{}, plumbing.NewStorageError(err)
	}
	if existing != nil {
		if existing.Type != t || existing.Size != size {
			return putResult{}, plumbing.NewIntegrityError(
				fmt.Errorf("%w: id %s held as %s/%d, incoming %s/%d",
					ErrObjectCorrupted, id, existing.Type, existing.Size, t, size))
		}

		trace.Storage.Printf("storage: dedup hit for %s", id)
		return putResult{stored: storedFromRow(existing), dedup: true}, nil
	}

	row := &Row{ID: id, Type: t, Size: size}
	placement := PlacementFor(s.threshold, size)

	// Blob first, row reference second: a failure in between leaves an
	// orphan blob, never a dangling reference. Orphans are reclaimed by
	// an external reconciliation sweep.
	if placement == Blob {
		location, err := s.blobs.Put(ctx, id.String(), payload)
		if err != nil {
			return putResult{}, plumbing.NewStorageError(fmt.Errorf("blob write for %s: %w", id, err))
		}
		row.Location = location
	} else {
		row.Payload = payload
	}

	if err := s.rows.Save(ctx, row); err != nil {
		return putResult{}, plumbing.NewStorageError(fmt.Errorf("row write for %s: %w", id, err))
	}

	trace.Storage.Printf("storage: stored %s as %s (%d bytes, %s)", id, t, size, placement)
	return putResult{stored: storedFromRow(row)}, nil
}

// Get returns the object with the given id, resolving its placement
// transparently. plumbing.ErrObjectNotFound is returned when the id is
// not stored.
func (s *Store) Get(ctx context.Context, id plumbing.ObjectID) (plumbing.EncodedObject, error) {
	row, err := s.rows.Find(ctx, id)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, err
		}
		return nil, plumbing.NewStorageError(err)
	}

	payload := row.Payload
	if row.Location != "" {
		payload, err = s.blobs.Get(ctx, row.Location)
		if err != nil {
			return nil, plumbing.NewStorageError(fmt.Errorf("blob read for %s: %w", id, err))
		}
	}

	obj := &plumbing.MemoryObject{}
	obj.SetType(row.Type)
	if _, err := obj.Write(payload); err != nil {
		return nil, plumbing.NewStorageError(err)
	}
	obj.SetHash(row.ID)

	return obj, nil
}

// Has returns true when an object with the given id is stored.
func (s *Store) Has(ctx context.Context, id plumbing.ObjectID) (bool, error) {
	_, err := s.rows.Find(ctx, id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, plumbing.ErrObjectNotFound) {
		return false, nil
	}
	return false, plumbing.NewStorageError(err)
}

// Stored returns the placement record for the given id without loading
// the payload.
func (s *Store) Stored(ctx context.Context, id plumbing.ObjectID) (*StoredObject, error) {
	row, err := s.rows.Find(ctx, id)
	if err != nil {
		if errors.Is(err, plumbing.ErrObjectNotFound) {
			return nil, err
		}
		return nil, plumbing.NewStorageError(err)
	}
	return storedFromRow(row), nil
}

func storedFromRow(row *Row) *StoredObject {
	placement := Inline
	if row.Location != "" {
		placement = Blob
	}
	return &StoredObject{
		ID:        row.ID,
		Type:      row.Type,
		Size:      row.Size,
		Placement: placement,
		Location:  row.Location,
	}
}

func objectBytes(obj plumbing.EncodedObject) ([]byte, error) {
	if mo, ok := obj.(*plumbing.MemoryObject); ok {
		return mo.Contents(), nil
	}

	r, err := obj.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	return io.ReadAll(r)
}
