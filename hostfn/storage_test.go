package hostfn

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/policy"
)

func TestStorageConsensusRequired(t *testing.T) {
	backend := NewInMemoryStorageBackend()
	host := NewStorageHost(policy.StoragePolicy{
		MaxKeySize: 64, MaxValueSize: 1024,
		RequireConsensus: true, AllowDirectWrites: false,
	}, backend, "chal-1")

	st := host.Set([]byte("k"), []byte("v"))
	require.Equal(t, StatusStorageConsensusRequired, st)

	id, st := host.ProposeWrite([]byte("k"), []byte("v"))
	require.Equal(t, StatusStorageSuccess, st)

	v, st := host.GetResult(id)
	require.Equal(t, StatusStorageSuccess, st)
	require.Equal(t, []byte("v"), v)
}

func TestStorageKeyTooLarge(t *testing.T) {
	backend := NewInMemoryStorageBackend()
	host := NewStorageHost(policy.StoragePolicy{MaxKeySize: 2}, backend, "chal-1")
	st := host.Set([]byte("toolong"), []byte("v"))
	require.Equal(t, StatusStorageKeyTooLarge, st)
}

func TestStorageGetNotFound(t *testing.T) {
	backend := NewInMemoryStorageBackend()
	host := NewStorageHost(policy.StoragePolicy{MaxKeySize: 64}, backend, "chal-1")
	_, st := host.Get([]byte("missing"))
	require.Equal(t, StatusStorageNotFound, st)
}

func TestPackUnpackResult(t *testing.T) {
	packed := PackResult(StatusStorageSuccess, 42)
	status, value := UnpackResult(packed)
	require.Equal(t, StatusStorageSuccess, status)
	require.Equal(t, int32(42), value)

	packed = PackResult(StatusStorageNotFound, 0)
	status, value = UnpackResult(packed)
	require.Equal(t, StatusStorageNotFound, status)
	require.Equal(t, int32(0), value)
}
