// Package wasmrt compiles and instantiates challenge WASM modules under a
// capability-scoped host interface, using tetratelabs/wazero as the
// execution engine. No example repo in the corpus embeds a WASM VM; wazero
// is a deliberate out-of-pack pick documented in DESIGN.md.
package wasmrt

import (
	"context"
	"crypto/sha256"
	"sync"

	"github.com/elastic/gosigar"
	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"

	"github.com/platform-net/validator-core/errs"
)

// Config bounds every instance compiled under this runtime.
type Config struct {
	MaxMemoryBytes uint64
	MaxInstances   int
	AllowFuel      bool
	FuelLimit      uint64
}

// DefaultConfig picks a memory ceiling proportional to available host
// memory (capped at 512 MiB, the spec's documented default), using
// elastic/gosigar for host introspection.
func DefaultConfig() Config {
	const defaultCeiling = 512 * 1024 * 1024
	ceiling := uint64(defaultCeiling)

	mem := gosigar.Mem{}
	if err := mem.Get(); err == nil && mem.Total > 0 {
		// never exceed 1/8th of host RAM, and never exceed the 512 MiB default.
		budget := mem.Total / 8
		if budget < ceiling {
			ceiling = budget
		}
	}
	return Config{MaxMemoryBytes: ceiling, MaxInstances: 64}
}

// Runtime owns a compiled wazero engine shared by every instance.
type Runtime struct {
	cfg Config
	rt  wazero.Runtime

	mu     sync.Mutex
	active int
}

// New constructs a Runtime with the given configuration.
func New(ctx context.Context, cfg Config) (*Runtime, error) {
	const op = "wasmrt.New"
	rcfg := wazero.NewRuntimeConfig().WithMemoryLimitPages(uint32(cfg.MaxMemoryBytes / 65536))
	rt := wazero.NewRuntimeWithConfig(ctx, rcfg)
	if rt == nil {
		return nil, errs.E(op, errs.InvalidConfig, errors.New("failed to construct wazero runtime"))
	}
	return &Runtime{cfg: cfg, rt: rt}, nil
}

// Close releases every resource owned by the runtime, including all
// compiled modules and live instances.
func (r *Runtime) Close(ctx context.Context) error {
	return r.rt.Close(ctx)
}

// Module is a compiled, not-yet-instantiated WASM module.
type Module struct {
	compiled    wazero.CompiledModule
	bytes       []byte
	moduleHash  [32]byte
}

// CompileModule performs syntactic/validation compile of the given bytes.
func (r *Runtime) CompileModule(ctx context.Context, bytes []byte) (*Module, error) {
	const op = "wasmrt.CompileModule"
	compiled, err := r.rt.CompileModule(ctx, bytes)
	if err != nil {
		return nil, errs.E(op, errs.InvalidConfig, err)
	}
	return &Module{compiled: compiled, bytes: bytes, moduleHash: sha256Sum(bytes)}, nil
}

// Hash returns the SHA-256 of the compiled module's original bytes.
func (m *Module) Hash() [32]byte { return m.moduleHash }

func sha256Sum(b []byte) [32]byte { return sha256.Sum256(b) }
