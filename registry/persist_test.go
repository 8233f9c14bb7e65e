package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/identity"
	"github.com/platform-net/validator-core/store/metadata"
)

func TestSetMetadataStorePersistsOnRegisterAndUpdate(t *testing.T) {
	meta, err := metadata.Open(":memory:")
	require.NoError(t, err)
	defer meta.Close()

	r := New()
	r.SetMetadataStore(meta)

	entry := newEntry("persisted")
	entry.WasmModule.ModuleHash = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	require.NoError(t, r.Register(entry))

	row, ok, err := meta.Get(entry.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "wasm", row.StorageFormat)

	require.NoError(t, r.UpdateState(entry.ID, Starting))
	row, ok, err = meta.Get(entry.ID)
	require.NoError(t, err)
	require.True(t, ok)
	require.NotZero(t, row.UpdatedAt)
}

func TestNilMetadataStoreDisablesPersistenceByDefault(t *testing.T) {
	r := New()
	entry := newEntry("unpersisted")
	require.NoError(t, r.Register(entry))
	// no metadata store attached: persist() is a no-op, nothing to assert
	// beyond Register succeeding without a panic or error.
	_, ok := r.Get(entry.ID)
	require.True(t, ok)
	_ = identity.ChallengeID{}
}
