package kv

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCachedStorageBackendRoundTrip(t *testing.T) {
	store, err := OpenMem()
	require.NoError(t, err)
	defer store.Close()

	backend := NewCachedStorageBackend(store, 16, time.Minute, false)

	id, err := backend.ProposeWrite("chal-1", "k", []byte("v"))
	require.NoError(t, err)
	require.NotZero(t, id)

	v, ok, err := backend.Get("chal-1", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("v"), v)

	require.NoError(t, backend.Delete("chal-1", "k"))
	_, ok, err = backend.Get("chal-1", "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCachedStorageBackendNamespacesByChallenge(t *testing.T) {
	store, err := OpenMem()
	require.NoError(t, err)
	defer store.Close()

	backend := NewCachedStorageBackend(store, 16, time.Minute, true)

	_, err = backend.ProposeWrite("chal-1", "k", []byte("one"))
	require.NoError(t, err)
	_, err = backend.ProposeWrite("chal-2", "k", []byte("two"))
	require.NoError(t, err)

	v1, ok, err := backend.Get("chal-1", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("one"), v1)

	v2, ok, err := backend.Get("chal-2", "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("two"), v2)
}
