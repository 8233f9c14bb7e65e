package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCreateLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 10)
	require.NoError(t, err)

	body := Body{
		Epoch: 5,
		PendingEvaluations: []PendingEvaluationState{
			{SubmissionID: "sub1", Scores: map[string]float64{}, Finalizing: false},
		},
		Metadata: map[string]string{},
	}

	seq, err := m.CreateCheckpoint(body)
	require.NoError(t, err)
	require.Equal(t, uint64(1), seq)
	require.Equal(t, uint64(1), m.CurrentSequence())

	header, loaded, err := m.LoadLatest()
	require.NoError(t, err)
	require.Equal(t, Magic, header.Magic)
	require.Equal(t, uint64(5), loaded.Epoch)
	require.Len(t, loaded.PendingEvaluations, 1)
	require.Equal(t, "sub1", loaded.PendingEvaluations[0].SubmissionID)
}

func TestLatestScanOnReopen(t *testing.T) {
	dir := t.TempDir()
	m1, err := NewManager(dir, 10)
	require.NoError(t, err)
	_, err = m1.CreateCheckpoint(Body{Epoch: 1})
	require.NoError(t, err)
	_, err = m1.CreateCheckpoint(Body{Epoch: 2})
	require.NoError(t, err)

	m2, err := NewManager(dir, 10)
	require.NoError(t, err)
	require.Equal(t, uint64(2), m2.CurrentSequence())
}

func TestBodyHashMismatchIsFatal(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 10)
	require.NoError(t, err)
	seq, err := m.CreateCheckpoint(Body{Epoch: 1})
	require.NoError(t, err)

	// corrupt the file's last byte (part of the body).
	path := filepath.Join(dir, checkpointFilename(seq))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	data[len(data)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(path, data, 0o644))

	_, _, err = m.LoadCheckpoint(seq)
	require.Error(t, err)
}

func TestCleanupKeepsNewestByMaxCheckpoints(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 2)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, err := m.CreateCheckpoint(Body{Epoch: uint64(i)})
		require.NoError(t, err)
	}

	seqs, err := m.ListCheckpoints()
	require.NoError(t, err)
	require.Len(t, seqs, 2)
	require.Equal(t, []uint64{4, 5}, seqs)
}

func TestRestoreValidatesEpochRange(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 10)
	require.NoError(t, err)
	_, err = m.CreateCheckpoint(Body{Epoch: maxSaneEpoch + 1})
	require.NoError(t, err)

	_, _, err = m.RestoreLatest(RestoreOptions{ValidateState: true})
	require.Error(t, err)
}

func TestRestoreWarnsOnNetuidZero(t *testing.T) {
	dir := t.TempDir()
	m, err := NewManager(dir, 10)
	require.NoError(t, err)
	_, err = m.CreateCheckpoint(Body{Epoch: 1, Netuid: 0})
	require.NoError(t, err)

	result, _, err := m.RestoreLatest(RestoreOptions{ValidateState: true})
	require.NoError(t, err)
	require.Contains(t, result.Warnings, "netuid is 0")
}
