package metadata

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/identity"
)

func TestUpsertRecomputesGlobalRoot(t *testing.T) {
	r, err := Open(":memory:")
	require.NoError(t, err)
	defer r.Close()

	before, err := r.GlobalRoot()
	require.NoError(t, err)

	id := identity.NewChallengeID()
	require.NoError(t, r.Upsert(ChallengeMetadata{
		ChallengeID:   id,
		SchemaVersion: 1,
		StorageFormat: "v1",
		MerkleRoot:    [32]byte{1, 2, 3},
		ConfigJSON:    "{}",
	}))

	after, err := r.GlobalRoot()
	require.NoError(t, err)
	require.NotEqual(t, before, after)

	got, ok, err := r.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), got.SchemaVersion)
}

func TestMigrationRunnerMonotonic(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	runner, err := NewRunner(db)
	require.NoError(t, err)

	ran := 0
	migrations := []Migration{
		{Version: 1, Name: "init", Up: func(tx *sql.Tx) ([]Change, error) {
			ran++
			return []Change{{Old: nil, New: "init"}}, nil
		}},
		{Version: 2, Name: "add-column", Up: func(tx *sql.Tx) ([]Change, error) {
			ran++
			return []Change{{Old: nil, New: "add-column"}}, nil
		}},
	}

	require.NoError(t, runner.Up(migrations, 100))
	require.Equal(t, 2, ran)

	v, err := runner.CurrentVersion()
	require.NoError(t, err)
	require.Equal(t, uint32(2), v)

	// running again is a no-op (monotonic).
	require.NoError(t, runner.Up(migrations, 200))
	require.Equal(t, 2, ran)
}

func TestMigrationDownRequiresReversibility(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	defer db.Close()

	runner, err := NewRunner(db)
	require.NoError(t, err)

	migrations := []Migration{
		{Version: 1, Name: "irreversible", Up: func(tx *sql.Tx) ([]Change, error) {
			return nil, nil
		}},
	}
	require.NoError(t, runner.Up(migrations, 0))

	err = runner.Down(migrations, 0)
	require.Error(t, err)
}
