package policy

import "strings"

// ExecPolicy (also used for the sandbox capability, which shares the same shape).
type ExecPolicy struct {
	Enabled              bool     `yaml:"enabled"`
	AllowedCommands      []string `yaml:"allowed_commands"`
	TimeoutMs            uint64   `yaml:"timeout_ms"`
	MaxOutputBytes       uint64   `yaml:"max_output_bytes"`
	MaxExecutions        uint32   `yaml:"max_executions"`
	AllowedEnvVars       []string `yaml:"allowed_env_vars"`
	BlockedArgSubstrings []string `yaml:"blocked_arg_substrings"`
}

// IsCommandAllowed reports whether cmd is present in the allow-list.
func (p ExecPolicy) IsCommandAllowed(cmd string) bool {
	for _, c := range p.AllowedCommands {
		if c == cmd {
			return true
		}
	}
	return false
}

// IsEnvVarAllowed reports whether the given environment variable name may be forwarded.
func (p ExecPolicy) IsEnvVarAllowed(name string) bool {
	for _, v := range p.AllowedEnvVars {
		if v == name {
			return true
		}
	}
	return false
}

// ContainsBlockedSubstring reports whether any arg contains a blocked substring.
func (p ExecPolicy) ContainsBlockedSubstring(args []string) (string, bool) {
	for _, a := range args {
		for _, blocked := range p.BlockedArgSubstrings {
			if blocked != "" && strings.Contains(a, blocked) {
				return blocked, true
			}
		}
	}
	return "", false
}

// EffectiveTimeout returns the smaller of the guest-requested and the
// policy-configured timeout, per spec.md §4.2's exec enforcement order.
func (p ExecPolicy) EffectiveTimeout(requestedMs uint64) uint64 {
	if requestedMs == 0 || requestedMs > p.TimeoutMs {
		return p.TimeoutMs
	}
	return requestedMs
}
