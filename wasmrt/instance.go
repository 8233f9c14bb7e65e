package wasmrt

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/pkg/errors"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/platform-net/validator-core/errs"
	"github.com/platform-net/validator-core/hostfn"
)

// Registrar binds a capability's named host functions into a wazero host
// module builder. Multiple registrars compose; built-ins register before an
// optional user registrar, per spec.md §4.3 step 4.
type Registrar interface {
	Register(ctx context.Context, builder wazero.HostModuleBuilder, mem MemoryAccessor)
}

// MemoryAccessor reads/writes a guest memory region, enforcing bounds.
// wasmrt supplies the live instance's exported memory through this
// indirection so registrars never hold a direct *wazero memory reference
// before instantiation.
type MemoryAccessor interface {
	Read(ptr, length uint32) ([]byte, error)
	Write(ptr uint32, data []byte) error
}

// InstanceConfig configures a single instantiation.
type InstanceConfig struct {
	ChallengeID      string
	MemoryExportName string // default "memory"
	FixedTimestampMs *int64
	Registrars       []Registrar // built-ins in fixed order, then the user registrar
}

// Instance is a live, instantiated WASM module with its own runtime_state.
type Instance struct {
	mod   api.Module
	state *hostfn.State
	mem   api.Memory
	owner *Runtime
}

// Instantiate proceeds in the fixed order from spec.md §4.3: build a
// resource-limited store, construct runtime_state, register every built-in
// capability then the user registrar, instantiate against the link table,
// and resolve the guest memory export.
func (r *Runtime) Instantiate(ctx context.Context, m *Module, cfg InstanceConfig) (*Instance, error) {
	const op = "wasmrt.Instantiate"

	r.mu.Lock()
	if r.cfg.MaxInstances > 0 && r.active >= r.cfg.MaxInstances {
		r.mu.Unlock()
		return nil, errs.E(op, errs.LimitExceeded, errors.New("max instances reached"))
	}
	r.active++
	r.mu.Unlock()

	release := func() {
		r.mu.Lock()
		r.active--
		r.mu.Unlock()
	}

	clock := hostfn.NewClock(cfg.FixedTimestampMs)
	state := hostfn.NewState(cfg.ChallengeID, clock)

	builder := r.rt.NewHostModuleBuilder("env")
	accessor := &deferredMemory{}
	for _, reg := range cfg.Registrars {
		reg.Register(ctx, builder, accessor)
	}
	if _, err := builder.Instantiate(ctx); err != nil {
		release()
		return nil, errs.E(op, errs.InvalidConfig, errors.Wrap(err, "host module registration"))
	}

	mod, err := r.rt.InstantiateModule(ctx, m.compiled, wazero.NewModuleConfig())
	if err != nil {
		release()
		return nil, errs.E(op, errs.Execution, err)
	}

	exportName := cfg.MemoryExportName
	if exportName == "" {
		exportName = "memory"
	}
	mem := mod.ExportedMemory(exportName)
	if mem == nil {
		release()
		return nil, errs.E(op, errs.InvalidConfig, errors.Errorf("module has no %q export", exportName))
	}
	accessor.mem = mem

	return &Instance{mod: mod, state: state, mem: mem, owner: r}, nil
}

// Close releases the instance and frees its slot in the owning runtime's
// instance cap.
func (i *Instance) Close(ctx context.Context) error {
	if i.owner != nil {
		i.owner.mu.Lock()
		i.owner.active--
		i.owner.mu.Unlock()
	}
	return i.mod.Close(ctx)
}

// State returns the instance's per-capability runtime state.
func (i *Instance) State() *hostfn.State { return i.state }

// deferredMemory lets registrars bind host functions before the instance's
// memory export is resolvable (host functions are linked before
// instantiation, but the memory they read only exists after).
type deferredMemory struct {
	mem api.Memory
}

func (d *deferredMemory) Read(ptr, length uint32) ([]byte, error) {
	if d.mem == nil {
		return nil, errors.New("memory not yet bound")
	}
	buf, ok := d.mem.Read(ptr, length)
	if !ok {
		return nil, errors.New("out of bounds guest read")
	}
	return buf, nil
}

func (d *deferredMemory) Write(ptr uint32, data []byte) error {
	if d.mem == nil {
		return errors.New("memory not yet bound")
	}
	if !d.mem.Write(ptr, data) {
		return errors.New("out of bounds guest write")
	}
	return nil
}

// EvaluateRequest implements the high-level evaluate_request helper from
// spec.md §4.3: serialize, alloc, write, call evaluate, read, deserialize,
// attach elapsed time.
func (i *Instance) EvaluateRequest(ctx context.Context, reqBytes []byte) ([]byte, time.Duration, error) {
	const op = "wasmrt.EvaluateRequest"
	start := time.Now()

	alloc := i.mod.ExportedFunction("alloc")
	if alloc == nil {
		return nil, 0, errs.E(op, errs.InvalidConfig, errors.New("module does not export alloc"))
	}
	evaluate := i.mod.ExportedFunction("evaluate")
	if evaluate == nil {
		return nil, 0, errs.E(op, errs.InvalidConfig, errors.New("module does not export evaluate"))
	}

	framed := frameRequest(reqBytes)
	results, err := alloc.Call(ctx, uint64(len(framed)))
	if err != nil {
		return nil, 0, errs.E(op, errs.Execution, err)
	}
	ptr := uint32(results[0])
	if ptr == 0 {
		return nil, 0, errs.E(op, errs.Execution, errors.New("alloc returned null pointer"))
	}

	if !i.mem.Write(ptr, framed) {
		return nil, 0, errs.E(op, errs.MemoryBoundsViolation, errors.New("failed to write request into guest memory"))
	}

	results, err = evaluate.Call(ctx, uint64(ptr), uint64(len(framed)))
	if err != nil {
		return nil, 0, errs.E(op, errs.Execution, err)
	}
	packed := int64(results[0])
	outLen := uint32(packed >> 32)
	outPtr := uint32(packed)

	if outLen == 0 && outPtr == 0 {
		// a null (0,0) pack is an evaluator-level error, not a runtime fatality.
		return nil, time.Since(start), errs.E(op, errs.Execution, errors.New("evaluator returned a null result"))
	}

	out, ok := i.mem.Read(outPtr, outLen)
	if !ok {
		return nil, 0, errs.E(op, errs.MemoryBoundsViolation, errors.New("failed to read response from guest memory"))
	}
	result := make([]byte, len(out))
	copy(result, out)
	return result, time.Since(start), nil
}

func frameRequest(b []byte) []byte {
	framed := make([]byte, 4+len(b))
	binary.LittleEndian.PutUint32(framed[:4], uint32(len(b)))
	copy(framed[4:], b)
	return framed
}
