// Package registry implements the challenge registry and lifecycle state
// machine: the mapping from challenge identifier to module metadata,
// health, version, and restart configuration, plus the events its mutations
// emit.
package registry

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/platform-net/validator-core/identity"
	"github.com/platform-net/validator-core/policy"
)

// LifecycleState is the challenge's position in the state machine described
// in spec.md §4.4.
type LifecycleState int

const (
	Registered LifecycleState = iota
	Starting
	Running
	Paused
	Stopping
	Stopped
	Failed
)

func (s LifecycleState) String() string {
	switch s {
	case Registered:
		return "Registered"
	case Starting:
		return "Starting"
	case Running:
		return "Running"
	case Paused:
		return "Paused"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case Failed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// validTransitions encodes the state machine diagram from spec.md §4.4.
// "any -> Failed" is handled separately in CanTransition.
var validTransitions = map[LifecycleState]map[LifecycleState]bool{
	Registered: {Starting: true},
	Starting:   {Running: true},
	Running:    {Paused: true, Stopping: true},
	Paused:     {Running: true, Stopping: true},
	Stopping:   {Stopped: true},
	Stopped:    {Starting: true},
}

// CanTransition reports whether the state machine permits from -> to.
func CanTransition(from, to LifecycleState) bool {
	if to == Failed {
		return true
	}
	return validTransitions[from][to]
}

// HealthStatus is the challenge's observed health.
type HealthStatus int

const (
	Unknown HealthStatus = iota
	Healthy
	Degraded
	Unhealthy
)

func (h HealthStatus) String() string {
	switch h {
	case Healthy:
		return "Healthy"
	case Degraded:
		return "Degraded"
	case Unhealthy:
		return "Unhealthy"
	default:
		return "Unknown"
	}
}

// Version is a semantic version with a same-major compatibility predicate.
type Version struct {
	Major, Minor, Patch uint32
}

// CompatibleWith reports whether v and other share a major version.
func (v Version) CompatibleWith(other Version) bool {
	return v.Major == other.Major
}

func (v Version) Less(other Version) bool {
	if v.Major != other.Major {
		return v.Major < other.Major
	}
	if v.Minor != other.Minor {
		return v.Minor < other.Minor
	}
	return v.Patch < other.Patch
}

// WasmModuleMetadata is the tuple (module_hash, location, entrypoint,
// network_policy, sandbox_policy?, restart_id?, config_version) from
// spec.md §3.
type WasmModuleMetadata struct {
	ModuleHash     string // hex-encoded SHA-256
	Location       string
	Entrypoint     string
	NetworkPolicy  policy.NetworkPolicy
	SandboxPolicy  *policy.ExecPolicy
	RestartID      *string
	ConfigVersion  uint64
}

// VerifyHash recomputes SHA-256 over the loaded module bytes and compares
// against ModuleHash. A mismatch is fatal per spec.md §3.
func (m WasmModuleMetadata) VerifyHash(moduleBytes []byte) bool {
	sum := sha256.Sum256(moduleBytes)
	return hex.EncodeToString(sum[:]) == m.ModuleHash
}

// ChallengeEntry is the registry's stored record for one challenge.
type ChallengeEntry struct {
	ID            identity.ChallengeID
	Name          string
	Version       Version
	Endpoint      *string
	WasmModule    *WasmModuleMetadata
	RestartID     *string
	ConfigVersion uint64
	State         LifecycleState
	Health        HealthStatus
	RegisteredAt  time.Time
	UpdatedAt     time.Time
	MetadataJSON  string
}
