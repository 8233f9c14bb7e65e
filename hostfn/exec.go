package hostfn

import (
	"bytes"
	"context"
	"os/exec"
	"time"

	"github.com/platform-net/validator-core/policy"
)

// ExecRequest mirrors the guest-supplied exec_command / sandbox_exec payload.
type ExecRequest struct {
	Command   string
	Args      []string
	Env       map[string]string
	Stdin     []byte
	TimeoutMs uint64
}

// ExecResult mirrors the response handed back to the guest.
type ExecResult struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	WallMs   int64
}

// ExecHost implements exec_command/sandbox_exec: spawns a child process
// with a cleared ambient environment, piped stdio, and a policy-bounded
// timeout, per spec.md §4.2.
type ExecHost struct {
	policy policy.ExecPolicy
	state  *State
}

func NewExecHost(p policy.ExecPolicy, state *State) *ExecHost {
	return &ExecHost{policy: p, state: state}
}

func (h *ExecHost) Run(req ExecRequest) (ExecResult, Status) {
	if !h.policy.Enabled {
		return ExecResult{}, StatusDisabled
	}
	if !h.policy.IsCommandAllowed(req.Command) {
		return ExecResult{}, StatusCommandNotAllowed
	}
	if _, blocked := h.policy.ContainsBlockedSubstring(req.Args); blocked {
		return ExecResult{}, StatusArgsNotAllowed
	}
	for name := range req.Env {
		if !h.policy.IsEnvVarAllowed(name) {
			return ExecResult{}, StatusEnvVarNotAllowed
		}
	}
	if h.policy.MaxExecutions > 0 {
		count := h.state.Counters.ExecRuns.Add(1)
		if uint32(count) > h.policy.MaxExecutions {
			return ExecResult{}, StatusLimitExceeded
		}
	} else {
		h.state.Counters.ExecRuns.Add(1)
	}

	timeoutMs := h.policy.EffectiveTimeout(req.TimeoutMs)
	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, req.Command, req.Args...)
	// ambient environment is cleared; only explicitly allowed vars are forwarded.
	cmd.Env = []string{}
	for name, value := range req.Env {
		cmd.Env = append(cmd.Env, name+"="+value)
	}
	cmd.Stdin = bytes.NewReader(req.Stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	wall := time.Since(start).Milliseconds()

	if ctx.Err() == context.DeadlineExceeded {
		return ExecResult{WallMs: wall}, StatusTimeout
	}

	maxOut := h.policy.MaxOutputBytes
	if maxOut > 0 && (uint64(stdout.Len()) > maxOut || uint64(stderr.Len()) > maxOut) {
		return ExecResult{WallMs: wall}, StatusOutputTooLarge
	}

	exitCode := 0
	if exitErr, ok := err.(*exec.ExitError); ok {
		exitCode = exitErr.ExitCode()
	} else if err != nil {
		return ExecResult{WallMs: wall}, StatusInternalError
	}

	return ExecResult{ExitCode: exitCode, Stdout: stdout.Bytes(), Stderr: stderr.Bytes(), WallMs: wall}, StatusSuccess
}
