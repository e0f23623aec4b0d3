package codestore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	hash := store.Put("code/alpha", []byte("alpha body"))
	assert.Equal(t, HashBytes([]byte("alpha body")), hash)

	body, got, err := store.Resolve(context.Background(), "code/alpha", "strategy.v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha body"), body)
	assert.Equal(t, hash, got)

	store.Replace("code/alpha", []byte("swapped body"))
	_, got, err = store.Resolve(context.Background(), "code/alpha", "strategy.v1")
	require.NoError(t, err)
	assert.NotEqual(t, hash, got)

	_, _, err = store.Resolve(context.Background(), "code/missing", "strategy.v1")
	assert.Error(t, err)
}

func TestDirStore(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alpha.wasm"), []byte("alpha body"), 0o644))

	store := NewDirStore(dir)
	body, hash, err := store.Resolve(context.Background(), "alpha.wasm", "strategy.v1")
	require.NoError(t, err)
	assert.Equal(t, []byte("alpha body"), body)
	assert.Equal(t, HashBytes([]byte("alpha body")), hash)

	_, _, err = store.Resolve(context.Background(), "missing.wasm", "strategy.v1")
	assert.Error(t, err)
}
