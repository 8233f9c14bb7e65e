// Package config loads and persists validator configuration: network
// policy, storage policy, and per-competition decay curves. State lives
// under a home-relative directory (~/.platform/ by default), mirroring
// spec.md §9's "global mutable state ... init-on-first-use, never torn
// down within a process" and thor's own --data-dir/--config-dir split.
package config

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/platform-net/validator-core/decay"
	"github.com/platform-net/validator-core/policy"
)

// NetworkPolicy controls which netuids/challenge endpoints a validator
// instance will serve and which platform URL and hotkey it uses.
type NetworkPolicy struct {
	ChallengeID     string `yaml:"challenge_id"`
	PlatformBaseURL string `yaml:"platform_base_url"`
	ValidatorHotkey string `yaml:"validator_hotkey"`
	Netuid          uint16 `yaml:"netuid"`
}

// StoragePolicy selects and sizes the storage/cache backend (C5).
type StoragePolicy struct {
	Backend          string `yaml:"backend"` // "memory", "disk", "noop"
	DataDir          string `yaml:"data_dir"`
	CacheCapacity    int    `yaml:"cache_capacity"`
	CacheTTLSeconds  int    `yaml:"cache_ttl_seconds"`
	CompressionSnappy bool  `yaml:"compression_snappy"`
}

// CompetitionDecayConfig pairs a competition id with its decay.Config, for
// the per-competition decay curve table spec.md §9 calls out.
type CompetitionDecayConfig struct {
	CompetitionID string       `yaml:"competition_id"`
	Decay         decay.Config `yaml:"decay"`
}

// Config is the on-disk validator configuration document.
type Config struct {
	Network      NetworkPolicy            `yaml:"network"`
	Storage      StoragePolicy            `yaml:"storage"`
	Competitions []CompetitionDecayConfig `yaml:"competitions"`
	// Capabilities is the per-capability policy bundle every WASM instance
	// is instantiated with (C2/C3): network, storage, exec, sandbox,
	// terminal, time, and the out-of-scope data/container/llm/consensus
	// policies carried through unexamined, per spec.md §4.2.
	Capabilities policy.Bundle `yaml:"capabilities"`
}

// Default returns a Config with conservative defaults, matching
// decay.DefaultConfig for any competition not explicitly configured.
func Default() Config {
	return Config{
		Network: NetworkPolicy{
			PlatformBaseURL: "https://platform.example",
		},
		Storage: StoragePolicy{
			Backend:         "memory",
			CacheCapacity:   10000,
			CacheTTLSeconds: 300,
		},
		Capabilities: DefaultCapabilities(),
	}
}

// DefaultCapabilities returns a conservative policy bundle: outbound
// network and terminal/exec access disabled, storage bounded but enabled,
// matching the "deny unless explicitly opened" posture spec.md §4.2
// mandates for a freshly registered challenge.
func DefaultCapabilities() policy.Bundle {
	return policy.Bundle{
		Storage: policy.StoragePolicy{
			MaxKeySize:          256,
			MaxValueSize:        1 << 20,
			MaxKeysPerChallenge: 10000,
			AllowDirectWrites:   true,
		},
		Exec: policy.ExecPolicy{
			Enabled:        false,
			TimeoutMs:      30000,
			MaxOutputBytes: 1 << 20,
		},
		Sandbox: policy.ExecPolicy{
			Enabled:        false,
			TimeoutMs:      30000,
			MaxOutputBytes: 1 << 20,
		},
		Terminal: policy.TerminalPolicy{
			Enabled:        false,
			MaxFileSize:    1 << 20,
			MaxOutputBytes: 1 << 20,
			TimeoutMs:      30000,
		},
	}
}

// Dir returns the process-wide platform state directory, honoring
// PLATFORM_HOME and falling back to ~/.platform.
func Dir() (string, error) {
	if v := os.Getenv("PLATFORM_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolve user home directory")
	}
	return filepath.Join(home, ".platform"), nil
}

// Path returns the default config file path within Dir().
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "validator.yaml"), nil
}

// Load reads and parses the config file at path. If path is empty, the
// default Path() location is used.
func Load(path string) (Config, error) {
	if path == "" {
		p, err := Path()
		if err != nil {
			return Config{}, err
		}
		path = p
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// Save writes cfg to path, creating parent directories as needed. This is
// the only mutation path for the process-wide state directory; callers
// must not assume any locking beyond what the OS rename primitive gives
// (see checkpoint's atomic write discipline, which this mirrors).
func Save(path string, cfg Config) error {
	if path == "" {
		p, err := Path()
		if err != nil {
			return err
		}
		path = p
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "create config dir for %s", path)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "marshal config")
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return errors.Wrapf(err, "write temp config %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(err, "rename temp config into place %s", path)
	}
	return nil
}

// DecayConfigFor returns the configured decay.Config for competitionID, or
// decay.DefaultConfig() if the competition has no explicit entry.
func (c Config) DecayConfigFor(competitionID string) decay.Config {
	for _, entry := range c.Competitions {
		if entry.CompetitionID == competitionID {
			return entry.Decay
		}
	}
	return decay.DefaultConfig()
}

// EnsureInitialized creates the platform state directory and writes a
// default config file if one does not already exist, matching the
// "init-on-first-use" lifecycle spec.md §9 requires.
func EnsureInitialized() (Config, error) {
	path, err := Path()
	if err != nil {
		return Config{}, err
	}
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	} else if !os.IsNotExist(err) {
		return Config{}, errors.Wrapf(err, "stat config %s", path)
	}

	cfg := Default()
	if err := Save(path, cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
