package worker

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// taskManifest is the on-disk shape of one terminal-bench@2.0 task
// directory's task.yaml, grounded on original_source/src/validator_worker.rs's
// "load tasks from terminal-bench@2.0 registry (first 30 tasks)" comment;
// the upstream task.rs that defines the dataset's exact schema was not
// part of the retrieved source, so this mirrors the task fields worker.Task
// already carries.
type taskManifest struct {
	Instruction string `yaml:"instruction"`
	SetupScript string `yaml:"setup_script"`
	TestScript  string `yaml:"test_script"`
	TimeoutSecs uint64 `yaml:"timeout_secs"`
}

// DirTaskRegistry is a TaskRegistry backed by a directory of task
// subdirectories, each holding a task.yaml manifest and an optional
// test_files/ directory of fixtures copied into the sandbox.
type DirTaskRegistry struct {
	tasks []Task
}

// NewDirTaskRegistry scans dir for task subdirectories (sorted by name for
// determinism, matching the registry's "first N tasks" selection) and
// loads their manifests eagerly.
func NewDirTaskRegistry(dir string) (*DirTaskRegistry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read task registry dir %s", dir)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	tasks := make([]Task, 0, len(names))
	for _, name := range names {
		task, err := loadTask(filepath.Join(dir, name), name)
		if err != nil {
			return nil, errors.Wrapf(err, "load task %s", name)
		}
		tasks = append(tasks, task)
	}

	return &DirTaskRegistry{tasks: tasks}, nil
}

func loadTask(dir, id string) (Task, error) {
	manifestPath := filepath.Join(dir, "task.yaml")
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return Task{}, errors.Wrapf(err, "read %s", manifestPath)
	}

	var manifest taskManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return Task{}, errors.Wrapf(err, "parse %s", manifestPath)
	}

	testFiles, err := loadTestFiles(filepath.Join(dir, "test_files"))
	if err != nil {
		return Task{}, err
	}

	return Task{
		ID:          id,
		Instruction: manifest.Instruction,
		SetupScript: manifest.SetupScript,
		TestScript:  manifest.TestScript,
		TestFiles:   testFiles,
		TimeoutSecs: manifest.TimeoutSecs,
	}, nil
}

func loadTestFiles(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read test files dir %s", dir)
	}

	files := make(map[string][]byte, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, errors.Wrapf(err, "read test file %s", e.Name())
		}
		files[e.Name()] = data
	}
	return files, nil
}

// Tasks returns up to limit tasks in registry order.
func (r *DirTaskRegistry) Tasks(limit int) ([]Task, error) {
	if limit <= 0 || limit >= len(r.tasks) {
		return r.tasks, nil
	}
	return r.tasks[:limit], nil
}

// Count returns the total number of loaded tasks.
func (r *DirTaskRegistry) Count() int { return len(r.tasks) }
