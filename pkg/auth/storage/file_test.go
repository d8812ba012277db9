package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_PersistsNothing(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "credentials")
	store := NewFileStore(path)

	require.NoError(t, store.Store(ctx, "h", "x"))

	_, found, err := store.Get(ctx, "h")
	require.NoError(t, err)
	assert.False(t, found)

	assert.NoError(t, store.Delete(ctx, "h"))

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "file store must not write anything")
}

func TestFileStore_DefaultPath(t *testing.T) {
	store := NewFileStore("")
	assert.True(t, strings.HasSuffix(store.Path(), filepath.Join("bb", "credentials")), store.Path())
}
