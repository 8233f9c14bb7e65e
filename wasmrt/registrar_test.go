package wasmrt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/hostfn"
)

// fakeMemory is a bounds-checked in-memory MemoryAccessor stand-in for a
// wazero-backed guest memory, used to exercise the registrar helpers'
// ptr/len marshaling without instantiating a real WASM module.
type fakeMemory struct {
	buf map[uint32][]byte
}

func newFakeMemory() *fakeMemory { return &fakeMemory{buf: map[uint32][]byte{}} }

func (f *fakeMemory) Read(ptr, length uint32) ([]byte, error) {
	data, ok := f.buf[ptr]
	if !ok || uint32(len(data)) < length {
		return nil, errors.New("out of bounds guest read")
	}
	return data[:length], nil
}

func (f *fakeMemory) Write(ptr uint32, data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	f.buf[ptr] = cp
	return nil
}

func TestReadGuestZeroLengthIsEmptyNotError(t *testing.T) {
	mem := newFakeMemory()
	data, status := readGuest(mem, 0, 0)
	require.Nil(t, data)
	require.Equal(t, hostfn.StatusSuccess, status)
}

func TestReadGuestOutOfBounds(t *testing.T) {
	mem := newFakeMemory()
	_, status := readGuest(mem, 100, 4)
	require.Equal(t, hostfn.StatusInternalError, status)
}

func TestReadGuestRoundTrip(t *testing.T) {
	mem := newFakeMemory()
	require.NoError(t, mem.Write(8, []byte("payload")))
	data, status := readGuest(mem, 8, 7)
	require.Equal(t, hostfn.StatusSuccess, status)
	require.Equal(t, []byte("payload"), data)
}

func TestWriteBoundedTooSmall(t *testing.T) {
	mem := newFakeMemory()
	packed := writeBounded(mem, 0, 2, []byte("abc"))
	status, value := hostfn.UnpackResult(packed)
	require.Equal(t, hostfn.StatusBufferTooSmall, status)
	require.Equal(t, int32(0), value)
}

func TestWriteBoundedFitsExactly(t *testing.T) {
	mem := newFakeMemory()
	packed := writeBounded(mem, 10, 3, []byte("abc"))
	status, value := hostfn.UnpackResult(packed)
	require.Equal(t, hostfn.StatusSuccess, status)
	require.Equal(t, int32(3), value)

	written, err := mem.Read(10, 3)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), written)
}

func TestWriteBoundedEmptyValue(t *testing.T) {
	mem := newFakeMemory()
	packed := writeBounded(mem, 0, 0, nil)
	status, value := hostfn.UnpackResult(packed)
	require.Equal(t, hostfn.StatusSuccess, status)
	require.Equal(t, int32(0), value)
}

func TestWriteJSONRoundTrips(t *testing.T) {
	mem := newFakeMemory()
	type payload struct{ A int }
	packed := writeJSON(mem, 0, 64, payload{A: 7})
	status, n := hostfn.UnpackResult(packed)
	require.Equal(t, hostfn.StatusSuccess, status)
	raw, err := mem.Read(0, uint32(n))
	require.NoError(t, err)
	require.Contains(t, string(raw), `"A":7`)
}

func TestWriteJSONTooSmallPropagatesBufferTooSmall(t *testing.T) {
	mem := newFakeMemory()
	type payload struct{ A string }
	packed := writeJSON(mem, 0, 1, payload{A: "way too long for one byte"})
	status, _ := hostfn.UnpackResult(packed)
	require.Equal(t, hostfn.StatusBufferTooSmall, status)
}
