package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGetExpiredTreatedAsAbsentWithoutRemoval(t *testing.T) {
	c := New(16, 10*time.Millisecond)
	c.Insert("k", []byte("v"))

	time.Sleep(20 * time.Millisecond)
	_, ok := c.Get("k")
	require.False(t, ok)

	// cleanup should still find and remove it explicitly.
	removed := c.Cleanup()
	require.Equal(t, 1, removed)
}

func TestStatsHitRate(t *testing.T) {
	c := New(16, 0)
	c.Insert("k", []byte("v"))
	_, _ = c.Get("k")
	_, _ = c.Get("missing")

	hits, misses, writes, rate := c.Stats().Snapshot()
	require.Equal(t, int64(1), hits)
	require.Equal(t, int64(1), misses)
	require.Equal(t, int64(1), writes)
	require.InDelta(t, 0.5, rate, 1e-9)
}

type memBackend struct{ data map[string][]byte }

func (b *memBackend) Get(key string) ([]byte, bool, error) { v, ok := b.data[key]; return v, ok, nil }
func (b *memBackend) Put(key string, value []byte) error   { b.data[key] = value; return nil }
func (b *memBackend) Delete(key string) error               { delete(b.data, key); return nil }

func TestReadThroughPopulatesOnMiss(t *testing.T) {
	backend := &memBackend{data: map[string][]byte{"k": []byte("from-backend")}}
	rt := NewReadThrough(backend, 16, 0, false)

	v, ok, err := rt.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("from-backend"), v)

	hits, misses, _, _ := rt.Stats().Snapshot()
	require.Equal(t, int64(0), hits)
	require.Equal(t, int64(1), misses)

	v2, ok, err := rt.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, v, v2)
}

func TestReadThroughCompression(t *testing.T) {
	backend := &memBackend{data: map[string][]byte{}}
	rt := NewReadThrough(backend, 16, 0, true)

	require.NoError(t, rt.Insert("k", []byte("hello world")))
	require.NotEqual(t, []byte("hello world"), backend.data["k"])

	v, ok, err := rt.Get("k")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("hello world"), v)
}
