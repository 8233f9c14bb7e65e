package worker

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeTask(t *testing.T, dir, id, instruction string) {
	t.Helper()
	taskDir := filepath.Join(dir, id)
	require.NoError(t, os.MkdirAll(taskDir, 0o755))
	manifest := "instruction: \"" + instruction + "\"\ntest_script: check.sh\ntimeout_secs: 60\n"
	require.NoError(t, os.WriteFile(filepath.Join(taskDir, "task.yaml"), []byte(manifest), 0o644))
}

func TestDirTaskRegistryLoadsSortedByName(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "b-task", "do b")
	writeTask(t, dir, "a-task", "do a")

	reg, err := NewDirTaskRegistry(dir)
	require.NoError(t, err)
	require.Equal(t, 2, reg.Count())

	tasks, err := reg.Tasks(10)
	require.NoError(t, err)
	require.Equal(t, "a-task", tasks[0].ID)
	require.Equal(t, "do a", tasks[0].Instruction)
	require.Equal(t, "b-task", tasks[1].ID)
}

func TestDirTaskRegistryRespectsLimit(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "task1", "x")
	writeTask(t, dir, "task2", "y")
	writeTask(t, dir, "task3", "z")

	reg, err := NewDirTaskRegistry(dir)
	require.NoError(t, err)

	tasks, err := reg.Tasks(2)
	require.NoError(t, err)
	require.Len(t, tasks, 2)
}

func TestDirTaskRegistryLoadsTestFiles(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "task1", "x")
	testFilesDir := filepath.Join(dir, "task1", "test_files")
	require.NoError(t, os.MkdirAll(testFilesDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(testFilesDir, "fixture.txt"), []byte("data"), 0o644))

	reg, err := NewDirTaskRegistry(dir)
	require.NoError(t, err)

	tasks, err := reg.Tasks(1)
	require.NoError(t, err)
	require.Equal(t, []byte("data"), tasks[0].TestFiles["fixture.txt"])
}
