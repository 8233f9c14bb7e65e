package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/inconshreveable/log15"

	"github.com/platform-net/validator-core/codescan"
	"github.com/platform-net/validator-core/hostfn"
	"github.com/platform-net/validator-core/platformclient"
)

// pollInterval is the fallback polling cadence, per spec.md §4.9.
const pollInterval = 60 * time.Second

// tasksPerEvaluation is the fixed number of tasks (the first N from the
// dataset) run against every agent, per spec.md §4.9.
const tasksPerEvaluation = 30

// maxAgentSteps bounds the interactive loop per task, per spec.md §4.9.1.
const maxAgentSteps = 50

// agentStepTimeout is the per-step budget for invoking the agent binary.
const agentStepTimeout = 30 * time.Second

// Event is one item on the worker's event channel, per spec.md §4.9.
type Event struct {
	Kind      EventKind
	AgentHash string
}

// EventKind discriminates Event payloads.
type EventKind int

const (
	EventBinaryReady EventKind = iota
	EventNewSubmissionAssigned
	EventReconnected
)

// Task is one benchmark task the agent is evaluated against.
type Task struct {
	ID          string
	Instruction string
	SetupScript string
	TestScript  string
	TestFiles   map[string][]byte
	TimeoutSecs uint64
}

// TaskRegistry supplies the fixed evaluation task set. A real
// implementation loads terminal-bench@2.0; tests supply a fake.
type TaskRegistry interface {
	Tasks(limit int) ([]Task, error)
}

// AgentBinary is a downloaded, not-yet-executed agent program. Running it
// happens one interactive step at a time via Step.
type AgentBinary interface {
	// Step feeds one agent-step input and returns the agent's raw
	// stdout line, per spec.md §4.9.1's JSON line protocol.
	Step(ctx context.Context, input AgentStepInput) ([]byte, error)
	// Close releases any resources (temp file, wasm instance) held by
	// the binary.
	Close() error
}

// AgentStepInput is fed to the agent on stdin as a single JSON line.
type AgentStepInput struct {
	Instruction string `json:"instruction"`
	Step        int    `json:"step"`
	Output      string `json:"output"`
	ExitCode    int    `json:"exit_code"`
	Cwd         string `json:"cwd"`
}

// AgentStepOutput is the agent's single JSON-line stdout response.
type AgentStepOutput struct {
	Done    bool   `json:"done"`
	Command string `json:"command"`
}

// BinaryLoader turns raw downloaded bytes into a runnable AgentBinary.
type BinaryLoader interface {
	Load(ctx context.Context, binary []byte, agentHash string) (AgentBinary, error)
}

// Sandbox is a per-task isolated command executor — the "container" of
// spec.md §4.9, backed in production by hostfn.ExecHost under a
// policy-checked exec capability.
type Sandbox interface {
	Exec(ctx context.Context, command string) (hostfn.ExecResult, error)
	Close() error
}

// SandboxFactory opens a fresh Sandbox for one task run.
type SandboxFactory interface {
	NewSandbox(ctx context.Context, task Task) (Sandbox, error)
}

// EvalResult is the outcome of one full agent evaluation.
type EvalResult struct {
	Score        float64
	TasksPassed  int
	TasksTotal   int
	TasksFailed  int
	TotalCostUSD float64
}

// ValidatorWorker pulls assignments, downloads binaries, runs them
// against the fixed task suite, streams live progress, and submits
// results, per spec.md §4.9.
type ValidatorWorker struct {
	client          platformclient.ChallengeClient
	validatorHotkey string
	tasks           TaskRegistry
	loader          BinaryLoader
	sandboxes       SandboxFactory
	stream          *TaskStreamCache
	log             log15.Logger

	mu         sync.Mutex
	inProgress map[string]bool
}

// NewValidatorWorker wires the collaborators a worker needs; tasks,
// loader, and sandboxes are pluggable so tests can substitute fakes.
func NewValidatorWorker(client platformclient.ChallengeClient, validatorHotkey string, tasks TaskRegistry, loader BinaryLoader, sandboxes SandboxFactory, stream *TaskStreamCache) *ValidatorWorker {
	return &ValidatorWorker{
		client:          client,
		validatorHotkey: validatorHotkey,
		tasks:           tasks,
		loader:          loader,
		sandboxes:       sandboxes,
		stream:          stream,
		log:             log15.New("module", "worker"),
		inProgress:      make(map[string]bool),
	}
}

// Run is the main entry point: recovers pending assignments, starts the
// polling loop, and drains events until ctx is cancelled.
func (w *ValidatorWorker) Run(ctx context.Context, events <-chan Event) {
	w.log.Info("validator worker starting")
	w.RecoverPendingAssignments(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		w.pollLoop(gctx)
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			_ = g.Wait()
			return
		case ev, ok := <-events:
			if !ok {
				_ = g.Wait()
				return
			}
			w.handleEvent(ctx, ev)
		}
	}
}

func (w *ValidatorWorker) handleEvent(ctx context.Context, ev Event) {
	switch ev.Kind {
	case EventBinaryReady:
		go w.HandleBinaryReady(ctx, ev.AgentHash)
	case EventNewSubmissionAssigned:
		w.log.Info("noted assignment, waiting for binary", "agent_hash", shortHash(ev.AgentHash))
	case EventReconnected:
		w.log.Info("websocket reconnected, recovering pending assignments")
		w.RecoverPendingAssignments(ctx)
	}
}

func (w *ValidatorWorker) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollOnce(ctx)
		}
	}
}

func (w *ValidatorWorker) pollOnce(ctx context.Context) {
	jobs, err := w.client.MyJobs(ctx)
	if err != nil {
		w.log.Warn("poll failed", "err", err)
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, job := range jobs {
		if job.BinaryReady && !w.inProgress[job.AgentHash] {
			go w.HandleBinaryReady(ctx, job.AgentHash)
			break // one at a time to avoid overload
		}
	}
}

// RecoverPendingAssignments fetches outstanding jobs and spawns
// evaluation for every one whose binary is already compiled, per
// spec.md §4.9. Called on startup and after a reconnect.
func (w *ValidatorWorker) RecoverPendingAssignments(ctx context.Context) {
	w.log.Info("recovering pending assignments")
	jobs, err := w.client.MyJobs(ctx)
	if err != nil {
		w.log.Error("failed to fetch pending jobs", "err", err)
		return
	}
	readyCount := 0
	for _, job := range jobs {
		if job.BinaryReady {
			readyCount++
		}
	}
	w.log.Info("found pending jobs", "total", len(jobs), "ready", readyCount)
	for _, job := range jobs {
		if job.BinaryReady {
			go w.HandleBinaryReady(ctx, job.AgentHash)
		}
	}
}

// HandleBinaryReady runs a full evaluation for agentHash, guarding
// against duplicate concurrent runs via in_progress.
func (w *ValidatorWorker) HandleBinaryReady(ctx context.Context, agentHash string) {
	w.mu.Lock()
	if w.inProgress[agentHash] {
		w.mu.Unlock()
		w.log.Debug("agent already in progress, skipping", "agent_hash", shortHash(agentHash))
		return
	}
	w.inProgress[agentHash] = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		delete(w.inProgress, agentHash)
		w.mu.Unlock()
	}()

	w.log.Info("starting evaluation", "agent_hash", shortHash(agentHash))
	if _, err := w.EvaluateAgent(ctx, agentHash); err != nil {
		w.log.Error("evaluation failed", "agent_hash", shortHash(agentHash), "err", err)
		return
	}
	w.log.Info("evaluation completed", "agent_hash", shortHash(agentHash))
}

// EvaluateAgent downloads the binary, runs it against the fixed task
// set, and submits the result, per spec.md §4.9.
func (w *ValidatorWorker) EvaluateAgent(ctx context.Context, agentHash string) (EvalResult, error) {
	binaryBytes, err := w.client.DownloadBinary(ctx, agentHash)
	if err != nil {
		return EvalResult{}, err
	}

	if scan := codescan.ScanSource(string(binaryBytes)); scan.Refused() {
		return EvalResult{}, errForbiddenPattern(scan)
	}

	agent, err := w.loader.Load(ctx, binaryBytes, agentHash)
	if err != nil {
		return EvalResult{}, err
	}
	defer agent.Close()

	tasks, err := w.tasks.Tasks(tasksPerEvaluation)
	if err != nil {
		return EvalResult{}, err
	}

	var passed, failed int
	for _, task := range tasks {
		ok, err := w.runTask(ctx, agent, agentHash, task)
		if err != nil {
			w.log.Warn("task errored", "task_id", task.ID, "err", err)
			failed++
			continue
		}
		if ok {
			passed++
		} else {
			failed++
		}
	}

	total := len(tasks)
	var score float64
	if total > 0 {
		score = float64(passed) / float64(total)
	}

	result := EvalResult{Score: score, TasksPassed: passed, TasksTotal: total, TasksFailed: failed}
	if err := w.client.SubmitResult(ctx, agentHash, platformclient.EvalResult{
		Score: result.Score, TasksPassed: result.TasksPassed, TasksTotal: result.TasksTotal,
		TasksFailed: result.TasksFailed, TotalCostUSD: result.TotalCostUSD,
	}); err != nil {
		return result, err
	}
	return result, nil
}

func (w *ValidatorWorker) runTask(ctx context.Context, agent AgentBinary, agentHash string, task Task) (bool, error) {
	sandbox, err := w.sandboxes.NewSandbox(ctx, task)
	if err != nil {
		return false, err
	}
	defer sandbox.Close()

	if task.SetupScript != "" {
		_, _ = sandbox.Exec(ctx, task.SetupScript)
	}

	key := StreamKey{AgentHash: agentHash, ValidatorHotkey: w.validatorHotkey, TaskID: task.ID}
	w.stream.Start(key)
	defer w.stream.Remove(key)

	passed, err := w.runAgentLoop(ctx, agent, sandbox, task, key)
	if err != nil || !passed {
		w.stream.Finish(key, TaskFailed)
		return false, err
	}

	testPassed := w.runTestScript(ctx, sandbox, task.TestScript)
	if testPassed {
		w.stream.Finish(key, TaskPassed)
	} else {
		w.stream.Finish(key, TaskFailed)
	}
	return testPassed, nil
}

// runAgentLoop drives the agent step protocol of spec.md §4.9.1.
func (w *ValidatorWorker) runAgentLoop(ctx context.Context, agent AgentBinary, sandbox Sandbox, task Task, key StreamKey) (bool, error) {
	var lastOutput string
	var lastExitCode int

	for step := 1; step <= maxAgentSteps; step++ {
		input := AgentStepInput{
			Instruction: task.Instruction,
			Step:        step,
			Output:      lastOutput,
			ExitCode:    lastExitCode,
			Cwd:         "/app",
		}

		stepCtx, cancel := context.WithTimeout(ctx, agentStepTimeout)
		raw, err := agent.Step(stepCtx, input)
		cancel()
		if err != nil {
			return false, err
		}

		output, ok := parseLastJSONLine(raw)
		if !ok {
			w.stream.PushUpdate(key, step, raw, nil)
			continue
		}
		w.stream.PushUpdate(key, step, raw, nil)

		if output.Done {
			return true, nil
		}
		if output.Command == "" {
			continue
		}

		result, err := sandbox.Exec(ctx, output.Command)
		if err != nil {
			lastOutput = "Error: " + err.Error()
			lastExitCode = 1
			continue
		}
		lastOutput = string(result.Stdout) + string(result.Stderr)
		lastExitCode = result.ExitCode
	}
	return false, nil
}

func (w *ValidatorWorker) runTestScript(ctx context.Context, sandbox Sandbox, testScript string) bool {
	result, err := sandbox.Exec(ctx, testScript)
	if err != nil {
		return false
	}
	if result.ExitCode == 0 {
		return true
	}
	output := string(result.Stdout) + string(result.Stderr)
	return containsAny(output, "PASS", "OK", "passed") && !containsAny(output, "FAIL", "ERROR")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if bytes.Contains([]byte(s), []byte(sub)) {
			return true
		}
	}
	return false
}

// parseLastJSONLine extracts and decodes the final line of raw as an
// AgentStepOutput, per spec.md §4.9.1 ("the agent emits a JSON line on
// stdout").
func parseLastJSONLine(raw []byte) (AgentStepOutput, bool) {
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	var last string
	for scanner.Scan() {
		if line := scanner.Text(); line != "" {
			last = line
		}
	}
	if last == "" {
		return AgentStepOutput{}, false
	}
	var out AgentStepOutput
	if err := json.Unmarshal([]byte(last), &out); err != nil {
		return AgentStepOutput{}, false
	}
	return out, true
}

func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16]
	}
	return hash
}

func errForbiddenPattern(scan codescan.Result) error {
	return &forbiddenPatternError{scan: scan}
}

type forbiddenPatternError struct {
	scan codescan.Result
}

func (e *forbiddenPatternError) Error() string {
	if len(e.scan.Forbidden) == 0 {
		return "forbidden pattern detected"
	}
	return "forbidden pattern detected: " + e.scan.Forbidden[0].Pattern
}

// WriteTempExecutable writes downloaded bytes to a temp file and
// marks it executable, matching the original's NamedTempFile handling,
// for BinaryLoader implementations that shell out to a native binary
// rather than instantiate it in the WASM runtime.
func WriteTempExecutable(binary []byte) (path string, cleanup func(), err error) {
	f, err := os.CreateTemp("", "agent-*")
	if err != nil {
		return "", nil, err
	}
	if _, err := f.Write(binary); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	if err := os.Chmod(f.Name(), 0o755); err != nil {
		os.Remove(f.Name())
		return "", nil, err
	}
	return f.Name(), func() { os.Remove(f.Name()) }, nil
}
