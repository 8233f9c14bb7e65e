package kv

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetPutDelete(t *testing.T) {
	s, err := OpenMem()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("a", []byte("1")))
	v, ok, err := s.Get("a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), v)

	require.NoError(t, s.Delete("a"))
	_, ok, err = s.Get("a")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPrefixScanEarlyTermination(t *testing.T) {
	s, err := OpenMem()
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Put("p/1", []byte("a")))
	require.NoError(t, s.Put("p/2", []byte("b")))
	require.NoError(t, s.Put("q/1", []byte("c")))

	var seen []string
	err = s.PrefixScan("p/", func(k string, _ []byte) bool {
		seen = append(seen, k)
		return false // stop after first
	})
	require.NoError(t, err)
	require.Len(t, seen, 1)

	count, err := s.PrefixCount("p/")
	require.NoError(t, err)
	require.Equal(t, 2, count)
}

func TestBatchedWriterAtomicFlush(t *testing.T) {
	s, err := OpenMem()
	require.NoError(t, err)
	defer s.Close()

	w := NewBatchedWriter(s, 3)
	require.NoError(t, w.Write("a", []byte("1")))
	require.NoError(t, w.Write("b", []byte("2")))
	require.Equal(t, 2, w.Pending())

	require.NoError(t, w.Write("c", []byte("3"))) // triggers auto-flush at 3
	require.Equal(t, 0, w.Pending())
	require.Equal(t, 3, w.Committed())

	_, ok, err := s.Get("b")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBatchedWriterDrop(t *testing.T) {
	s, err := OpenMem()
	require.NoError(t, err)
	defer s.Close()

	w := NewBatchedWriter(s, 10)
	require.NoError(t, w.Write("a", []byte("1")))
	w.Drop()
	require.Equal(t, 0, w.Pending())

	_, ok, err := s.Get("a")
	require.NoError(t, err)
	require.False(t, ok)
}
