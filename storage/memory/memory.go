// Package memory provides in-memory row and blob backends, used by
// tests and as the reference implementation of the storage contracts.
package memory

import (
	"context"
	"sync"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/storage"
)

// RowStore is an in-memory storage.RowStore.
type RowStore struct {
	mut  sync.RWMutex
	rows map[plumbing.ObjectID]*storage.Row
}

// NewRowStore returns an empty in-memory row store.
func NewRowStore() *RowStore {
	return &RowStore{rows: make(map[plumbing.ObjectID]*storage.Row)}
}

// Save persists the row.
func (s *RowStore) Save(_ context.Context, row *Row) error {
	s.mut.Lock()
	defer s.mut.Unlock()

	s.rows[row.ID] = row
	return nil
}

// Find returns the row for the given id, or plumbing.ErrObjectNotFound.
func (s *RowStore) Find(_ context.Context, id plumbing.ObjectID) (*storage.Row, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	row, ok := s.rows[id]
	if !ok {
		return nil, plumbing.ErrObjectNotFound
	}
	return row, nil
}

// Len returns the quantity of stored rows.
func (s *RowStore) Len() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return len(s.rows)
}

// Row is re-exported for the Save signature.
type Row = storage.Row

// BlobStore is an in-memory storage.BlobStore. Locations are the keys
// themselves.
type BlobStore struct {
	mut   sync.RWMutex
	blobs map[string][]byte
}

// NewBlobStore returns an empty in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string][]byte)}
}

// Put stores data under key.
func (s *BlobStore) Put(_ context.Context, key string, data []byte) (string, error) {
	s.mut.Lock()
	defer s.mut.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	return key, nil
}

// Get returns the bytes stored at location.
func (s *BlobStore) Get(_ context.Context, location string) ([]byte, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	data, ok := s.blobs[location]
	if !ok {
		return nil, plumbing.ErrObjectNotFound
	}
	return data, nil
}

// Len returns the quantity of stored blobs.
func (s *BlobStore) Len() int {
	s.mut.RLock()
	defer s.mut.RUnlock()
	return len(s.blobs)
}
