package registry

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/identity"
)

func newEntry(name string) ChallengeEntry {
	return ChallengeEntry{
		ID:         identity.NewChallengeID(),
		Name:       name,
		Version:    Version{Major: 1},
		WasmModule: &WasmModuleMetadata{ModuleHash: "deadbeef"},
	}
}

func TestRegisterDuplicateNameFails(t *testing.T) {
	r := New()
	e1 := newEntry("dup")
	require.NoError(t, r.Register(e1))

	e2 := newEntry("dup")
	err := r.Register(e2)
	require.Error(t, err)
}

func TestNilModuleFailsInvalidConfig(t *testing.T) {
	r := New()
	err := r.Register(ChallengeEntry{ID: identity.NewChallengeID(), Name: "x"})
	require.Error(t, err)
}

func TestGetByNameConsistentWithIndex(t *testing.T) {
	r := New()
	e := newEntry("consistent")
	require.NoError(t, r.Register(e))

	got, ok := r.GetByName("consistent")
	require.True(t, ok)
	require.Equal(t, e.ID, got.ID)
}

func TestRegisterUnregisterRoundTrip(t *testing.T) {
	r := New()
	e := newEntry("roundtrip")
	require.NoError(t, r.Register(e))
	require.Equal(t, 1, r.Count())

	require.NoError(t, r.Unregister(e.ID))
	require.Equal(t, 0, r.Count())

	_, ok := r.Get(e.ID)
	require.False(t, ok)
}

func TestUpdateRestartConfigIdempotentEventCount(t *testing.T) {
	r := New()
	e := newEntry("restartable")
	require.NoError(t, r.Register(e))

	events := make(chan Event, 16)
	sub := r.Subscribe(events)
	defer sub.Unsubscribe()

	rid := "r1"
	require.NoError(t, r.UpdateRestartConfig(e.ID, &rid, 1))
	require.NoError(t, r.UpdateRestartConfig(e.ID, &rid, 1))

	restarts := 0
	close(events)
	for ev := range events {
		if ev.Kind == EventRestarted {
			restarts++
		}
	}
	require.Equal(t, 1, restarts)
}

func TestLifecycleTransitions(t *testing.T) {
	r := New()
	e := newEntry("lifecycle")
	require.NoError(t, r.Register(e))

	require.NoError(t, r.UpdateState(e.ID, Starting))
	require.NoError(t, r.UpdateState(e.ID, Running))
	require.Error(t, r.UpdateState(e.ID, Registered))
	require.NoError(t, r.UpdateState(e.ID, Failed))
}

func TestListActiveRequiresRunningAndHealthy(t *testing.T) {
	r := New()
	e := newEntry("active")
	require.NoError(t, r.Register(e))
	require.NoError(t, r.UpdateState(e.ID, Starting))
	require.NoError(t, r.UpdateState(e.ID, Running))
	require.NoError(t, r.UpdateHealth(e.ID, Healthy))

	active := r.ListActive()
	require.Len(t, active, 1)
}
