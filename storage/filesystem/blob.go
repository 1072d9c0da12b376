// Package filesystem provides billy-backed storage backends: a
// content-addressed blob store and a file-per-row store, for
// deployments that keep everything on local disk.
package filesystem

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/quarry-scm/quarry/plumbing"
)

// BlobStore is a storage.BlobStore over a billy filesystem. Blobs are
// fanned out by the first two characters of their key, the way loose
// objects are laid out.
type BlobStore struct {
	fs billy.Filesystem
}

// NewBlobStore returns a BlobStore rooted at fs.
func NewBlobStore(fs billy.Filesystem) *BlobStore {
	return &BlobStore{fs: fs}
}

// Put writes data under the content-addressed path for key and returns
// that path as the location. An existing file under the same path is
// already the same content, so it is left untouched.
func (s *BlobStore) Put(_ context.Context, key string, data []byte) (string, error) {
	location := blobPath(key)

	if _, err := s.fs.Stat(location); err == nil {
		return location, nil
	}

	if err := util.WriteFile(s.fs, location, data, 0o644); err != nil {
		return "", err
	}

	return location, nil
}

// Get returns the bytes stored at location.
func (s *BlobStore) Get(_ context.Context, location string) ([]byte, error) {
	data, err := util.ReadFile(s.fs, location)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

func blobPath(key string) string {
	if len(key) < 3 {
		return key
	}
	return filepath.Join(key[:2], key[2:])
}
