package filesystem

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/storage"
)

// RowStore is a storage.RowStore that keeps one file per row. It
// stands in for the relational collaborator on deployments without a
// database; it makes no transactional guarantees beyond the atomicity
// of a single file write.
type RowStore struct {
	fs billy.Filesystem
}

// NewRowStore returns a RowStore rooted at fs.
func NewRowStore(fs billy.Filesystem) *RowStore {
	return &RowStore{fs: fs}
}

// Save persists the row under its id. The record is a textual header
// (type, size, location) followed by the inline payload, if any.
func (s *RowStore) Save(_ context.Context, row *storage.Row) error {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s %d %s\x00", row.Type, row.Size, row.Location)
	buf.Write(row.Payload)

	return util.WriteFile(s.fs, rowPath(row.ID), buf.Bytes(), 0o644)
}

// Find returns the row for the given id, or plumbing.ErrObjectNotFound.
func (s *RowStore) Find(_ context.Context, id plumbing.ObjectID) (*storage.Row, error) {
	data, err := util.ReadFile(s.fs, rowPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, plumbing.ErrObjectNotFound
		}
		return nil, err
	}

	header, payload, ok := bytes.Cut(data, []byte{0})
	if !ok {
		return nil, fmt.Errorf("malformed row record for %s", id)
	}

	fields := bytes.SplitN(header, []byte{' '}, 3)
	if len(fields) != 3 {
		return nil, fmt.Errorf("malformed row header for %s", id)
	}

	t, err := plumbing.ParseObjectType(string(fields[0]))
	if err != nil {
		return nil, err
	}

	size, err := strconv.ParseInt(string(fields[1]), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed row size for %s: %w", id, err)
	}

	row := &storage.Row{
		ID:       id,
		Type:     t,
		Size:     size,
		Location: string(fields[2]),
	}
	if row.Location == "" {
		row.Payload = payload
	}

	return row, nil
}

func rowPath(id plumbing.ObjectID) string {
	return blobPath(id.String())
}
