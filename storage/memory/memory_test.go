package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarry-scm/quarry/plumbing"
	"github.com/quarry-scm/quarry/storage"
)

func TestRowStore(t *testing.T) {
	t.Parallel()

	s := NewRowStore()
	ctx := context.Background()

	id := plumbing.MustFromHex("8ab686eafeb1f44702738c8b0f24f2567c36da6d")
	require.NoError(t, s.Save(ctx, &storage.Row{
		ID:      id,
		Type:    plumbing.BlobObject,
		Size:    3,
		Payload: []byte("abc"),
	}))
	assert.Equal(t, 1, s.Len())

	row, err := s.Find(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, plumbing.BlobObject, row.Type)
	assert.Equal(t, []byte("abc"), row.Payload)

	_, err = s.Find(ctx, plumbing.MustFromHex("0000000000000000000000000000000000000001"))
	assert.True(t, errors.Is(err, plumbing.ErrObjectNotFound))
}

func TestBlobStore(t *testing.T) {
	t.Parallel()

	s := NewBlobStore()
	ctx := context.Background()

	location, err := s.Put(ctx, "some-key", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, "some-key", location)
	assert.Equal(t, 1, s.Len())

	data, err := s.Get(ctx, location)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, plumbing.ErrObjectNotFound))
}
