package worker

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/platform-net/validator-core/hostfn"
	"github.com/platform-net/validator-core/platformclient"
)

type fakeClient struct {
	jobs      []platformclient.Job
	binary    []byte
	submitted []platformclient.EvalResult
}

func (f *fakeClient) MyJobs(ctx context.Context) ([]platformclient.Job, error) { return f.jobs, nil }
func (f *fakeClient) DownloadBinary(ctx context.Context, agentHash string) ([]byte, error) {
	return f.binary, nil
}
func (f *fakeClient) SubmitResult(ctx context.Context, agentHash string, result platformclient.EvalResult) error {
	f.submitted = append(f.submitted, result)
	return nil
}

type fakeTaskRegistry struct {
	tasks []Task
}

func (f *fakeTaskRegistry) Tasks(limit int) ([]Task, error) {
	if limit < len(f.tasks) {
		return f.tasks[:limit], nil
	}
	return f.tasks, nil
}

// fakeAgent always signals done=true on the first step.
type fakeAgent struct{}

func (fakeAgent) Step(ctx context.Context, input AgentStepInput) ([]byte, error) {
	out, _ := json.Marshal(AgentStepOutput{Done: true})
	return out, nil
}
func (fakeAgent) Close() error { return nil }

type fakeLoader struct{}

func (fakeLoader) Load(ctx context.Context, binary []byte, agentHash string) (AgentBinary, error) {
	return fakeAgent{}, nil
}

type fakeSandbox struct{}

func (fakeSandbox) Exec(ctx context.Context, command string) (hostfn.ExecResult, error) {
	return hostfn.ExecResult{ExitCode: 0, Stdout: []byte("PASS")}, nil
}
func (fakeSandbox) Close() error { return nil }

type fakeSandboxFactory struct{}

func (fakeSandboxFactory) NewSandbox(ctx context.Context, task Task) (Sandbox, error) {
	return fakeSandbox{}, nil
}

func TestEvaluateAgentHappyPath(t *testing.T) {
	client := &fakeClient{binary: []byte("class MyAgent(Agent):\n    pass\n")}
	tasks := &fakeTaskRegistry{tasks: []Task{
		{ID: "t1", Instruction: "do the thing", TestScript: "check.sh"},
		{ID: "t2", Instruction: "do another thing", TestScript: "check.sh"},
	}}
	stream := NewTaskStreamCache(time.Minute, 4096)

	w := NewValidatorWorker(client, "validator1", tasks, fakeLoader{}, fakeSandboxFactory{}, stream)

	result, err := w.EvaluateAgent(context.Background(), "agent-hash-1")
	require.NoError(t, err)
	require.Equal(t, 2, result.TasksTotal)
	require.Equal(t, 2, result.TasksPassed)
	require.InDelta(t, 1.0, result.Score, 1e-9)
	require.Len(t, client.submitted, 1)
}

func TestEvaluateAgentRefusesForbiddenSource(t *testing.T) {
	client := &fakeClient{binary: []byte("import subprocess\nsubprocess.run(['ls'])\n")}
	tasks := &fakeTaskRegistry{tasks: []Task{{ID: "t1", Instruction: "x"}}}
	stream := NewTaskStreamCache(time.Minute, 4096)

	w := NewValidatorWorker(client, "validator1", tasks, fakeLoader{}, fakeSandboxFactory{}, stream)

	_, err := w.EvaluateAgent(context.Background(), "agent-hash-2")
	require.Error(t, err)
	require.Empty(t, client.submitted)
}

func TestHandleBinaryReadySkipsDuplicateInProgress(t *testing.T) {
	client := &fakeClient{binary: []byte("class MyAgent(Agent):\n    pass\n")}
	tasks := &fakeTaskRegistry{tasks: []Task{{ID: "t1", Instruction: "x", TestScript: "check.sh"}}}
	stream := NewTaskStreamCache(time.Minute, 4096)

	w := NewValidatorWorker(client, "validator1", tasks, fakeLoader{}, fakeSandboxFactory{}, stream)

	w.mu.Lock()
	w.inProgress["agent-hash-3"] = true
	w.mu.Unlock()

	w.HandleBinaryReady(context.Background(), "agent-hash-3")
	require.Empty(t, client.submitted)
}

func TestTaskStreamCacheTrimsFromFront(t *testing.T) {
	cache := NewTaskStreamCache(time.Minute, 10)
	key := StreamKey{AgentHash: "a", ValidatorHotkey: "v", TaskID: "t"}
	cache.Start(key)

	cache.PushUpdate(key, 1, []byte("0123456789\n"), nil)
	cache.PushUpdate(key, 2, []byte("abcde\n"), nil)

	entry, ok := cache.Get(key)
	require.True(t, ok)
	require.LessOrEqual(t, len(entry.Stdout), 11)
}

func TestTaskStreamCacheCleanupExpired(t *testing.T) {
	cache := NewTaskStreamCache(0, 4096)
	key := StreamKey{AgentHash: "a", ValidatorHotkey: "v", TaskID: "t"}
	cache.Start(key)
	time.Sleep(2 * time.Millisecond)

	removed := cache.CleanupExpired()
	require.Equal(t, 1, removed)
	require.Equal(t, 0, cache.Len())
}
