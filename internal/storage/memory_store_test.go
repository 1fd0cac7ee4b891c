package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUploadOpenDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore("http://files.local/")

	res, err := s.Upload(ctx, "/data-sources/1/a.csv", strings.NewReader("id\n1\n"), 5, "text/csv", UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "data-sources/1/a.csv", res.Path)
	assert.Equal(t, "http://files.local/data-sources/1/a.csv", res.PublicURL)

	path, ok := s.PathFromURL(res.PublicURL)
	require.True(t, ok)

	rc, err := s.Open(ctx, path)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "id\n1\n", string(body))

	_, err = s.Upload(ctx, path, strings.NewReader("x"), 1, "", UploadOptions{})
	assert.ErrorIs(t, err, ErrObjectExists)

	_, err = s.Upload(ctx, path, strings.NewReader("x"), 1, "", UploadOptions{Overwrite: true})
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, path))
	_, err = s.Open(ctx, path)
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestPathFromForeignURL(t *testing.T) {
	s := NewMemoryStore("http://files.local")
	_, ok := s.PathFromURL("https://example.com/a.csv")
	assert.False(t, ok)
}
