package bbolt

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jmcleod/storefront/tokenstore"
)

func TestBoltStore(t *testing.T) {
	tempDir, err := os.MkdirTemp("", "storefront-test-")
	require.NoError(t, err)
	defer os.RemoveAll(tempDir)

	dbPath := filepath.Join(tempDir, "session.db")

	store, err := NewStoreFromFile(dbPath, nil)
	require.NoError(t, err)
	require.NotNil(t, store)

	// Empty slot
	_, err = store.Load()
	require.ErrorIs(t, err, tokenstore.ErrNotFound)

	// Save and load
	require.NoError(t, store.Save("tok-1"))
	token, err := store.Load()
	require.NoError(t, err)
	require.Equal(t, "tok-1", token)

	// Replacing
	require.NoError(t, store.Save("tok-2"))
	token, err = store.Load()
	require.NoError(t, err)
	require.Equal(t, "tok-2", token)

	// Persistence across reopen
	require.NoError(t, store.Close())
	store2, err := NewStoreFromFile(dbPath, nil)
	require.NoError(t, err)
	token, err = store2.Load()
	require.NoError(t, err)
	require.Equal(t, "tok-2", token)

	// Clear empties the slot; clearing twice is fine
	require.NoError(t, store2.Clear())
	_, err = store2.Load()
	require.ErrorIs(t, err, tokenstore.ErrNotFound)
	require.NoError(t, store2.Clear())

	require.NoError(t, store2.Close())
}
