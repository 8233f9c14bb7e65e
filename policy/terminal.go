package policy

import (
	"path"
	"strings"

	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
)

// TerminalPolicy configures the terminal host function's filesystem and
// command surface.
type TerminalPolicy struct {
	Enabled        bool     `yaml:"enabled"`
	AllowedCommands []string `yaml:"allowed_commands"`
	AllowedPaths   []string `yaml:"allowed_paths"`
	MaxFileSize    uint64   `yaml:"max_file_size"`
	MaxExecutions  uint32   `yaml:"max_executions"`
	MaxOutputBytes uint64   `yaml:"max_output_bytes"`
	TimeoutMs      uint64   `yaml:"timeout_ms"`
}

// ValidatePath rejects any path whose lexical normalization escapes the
// configured roots. ".." segments are rejected before normalization, per
// spec.md §4.1.
func (p TerminalPolicy) ValidatePath(requested string) (string, error) {
	const op = "policy.ValidatePath"
	for _, seg := range strings.Split(requested, "/") {
		if seg == ".." {
			return "", errs.E(op, errs.PolicyViolation, errors.Errorf("path %q contains a traversal segment", requested))
		}
	}

	clean := path.Clean(requested)
	for _, root := range p.AllowedPaths {
		cleanRoot := path.Clean(root)
		if clean == cleanRoot || strings.HasPrefix(clean, cleanRoot+"/") {
			return clean, nil
		}
	}
	return "", errs.E(op, errs.PolicyViolation, errors.Errorf("path %q escapes configured roots", requested))
}
