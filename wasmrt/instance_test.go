package wasmrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFrameRequestPrependsLittleEndianLength(t *testing.T) {
	framed := frameRequest([]byte("hello"))
	require.Len(t, framed, 4+5)
	require.Equal(t, []byte{5, 0, 0, 0}, framed[:4])
	require.Equal(t, []byte("hello"), framed[4:])
}

func TestFrameRequestEmptyPayload(t *testing.T) {
	framed := frameRequest(nil)
	require.Equal(t, []byte{0, 0, 0, 0}, framed)
}

func TestDeferredMemoryRejectsAccessBeforeBinding(t *testing.T) {
	d := &deferredMemory{}
	_, err := d.Read(0, 4)
	require.Error(t, err)
	require.Error(t, d.Write(0, []byte("x")))
}
