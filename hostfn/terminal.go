package hostfn

import (
	"crypto/sha256"
	"encoding/binary"
	"os"

	"github.com/platform-net/validator-core/policy"
)

// TerminalHost implements terminal_exec, terminal_read_file,
// terminal_write_file, terminal_list_dir, terminal_get_time,
// terminal_random_seed.
type TerminalHost struct {
	policy      policy.TerminalPolicy
	state       *State
	challengeID string
	exec        *ExecHost
}

func NewTerminalHost(p policy.TerminalPolicy, state *State, challengeID string, execPolicy policy.ExecPolicy) *TerminalHost {
	return &TerminalHost{
		policy:      p,
		state:       state,
		challengeID: challengeID,
		exec:        NewExecHost(execPolicy, state),
	}
}

func (h *TerminalHost) Exec(req ExecRequest) (ExecResult, Status) {
	if !h.policy.Enabled {
		return ExecResult{}, StatusDisabled
	}
	allowed := false
	for _, c := range h.policy.AllowedCommands {
		if c == req.Command {
			allowed = true
			break
		}
	}
	if !allowed {
		return ExecResult{}, StatusCommandNotAllowed
	}
	if h.policy.MaxExecutions > 0 {
		count := h.state.Counters.TerminalRuns.Add(1)
		if uint32(count) > h.policy.MaxExecutions {
			return ExecResult{}, StatusLimitExceeded
		}
	} else {
		h.state.Counters.TerminalRuns.Add(1)
	}
	if req.TimeoutMs == 0 || req.TimeoutMs > h.policy.TimeoutMs {
		req.TimeoutMs = h.policy.TimeoutMs
	}
	return h.exec.Run(req)
}

func (h *TerminalHost) ReadFile(path string) ([]byte, Status) {
	clean, err := h.policy.ValidatePath(path)
	if err != nil {
		return nil, StatusNotAllowed
	}
	data, err := os.ReadFile(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, StatusBufferTooSmall
		}
		return nil, StatusInternalError
	}
	if h.policy.MaxFileSize > 0 && uint64(len(data)) > h.policy.MaxFileSize {
		return nil, StatusLimitExceeded
	}
	return data, StatusSuccess
}

func (h *TerminalHost) WriteFile(path string, data []byte) Status {
	clean, err := h.policy.ValidatePath(path)
	if err != nil {
		return StatusNotAllowed
	}
	if h.policy.MaxFileSize > 0 && uint64(len(data)) > h.policy.MaxFileSize {
		return StatusLimitExceeded
	}
	if err := os.WriteFile(clean, data, 0o644); err != nil {
		return StatusInternalError
	}
	return StatusSuccess
}

func (h *TerminalHost) ListDir(path string) ([]string, Status) {
	clean, err := h.policy.ValidatePath(path)
	if err != nil {
		return nil, StatusNotAllowed
	}
	entries, err := os.ReadDir(clean)
	if err != nil {
		return nil, StatusInternalError
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, StatusSuccess
}

func (h *TerminalHost) GetTime() int64 {
	return h.state.Clock.NowMs()
}

// RandomSeed derives a deterministic seed from (challenge_id ||
// fixed_or_wall_timestamp_ms) via SHA-256, enabling reproducible
// consensus runs, per spec.md §4.2.
func (h *TerminalHost) RandomSeed() [32]byte {
	ts := h.state.Clock.NowMs()
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(ts))
	data := append([]byte(h.challengeID), buf...)
	return sha256.Sum256(data)
}
