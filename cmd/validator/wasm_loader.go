// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"context"

	"github.com/platform-net/validator-core/wasmrt"
	"github.com/platform-net/validator-core/worker"
)

// WasmBinaryLoader compiles and instantiates agent binaries as WASM
// modules, implementing worker.BinaryLoader against the wasmrt runtime.
type WasmBinaryLoader struct {
	runtime    *wasmrt.Runtime
	registrars []wasmrt.Registrar
}

// NewWasmBinaryLoader builds a loader backed by rt. registrars is the
// fixed set of built-in host capabilities bound into every instance, in
// the order spec.md §4.3 step 4 requires.
func NewWasmBinaryLoader(rt *wasmrt.Runtime, registrars []wasmrt.Registrar) *WasmBinaryLoader {
	return &WasmBinaryLoader{runtime: rt, registrars: registrars}
}

// Load compiles the submitted binary and instantiates it against a fresh
// runtime_state scoped to agentHash, per spec.md §3's instance-ownership
// rule: one State belongs to exactly one instance.
func (l *WasmBinaryLoader) Load(ctx context.Context, binary []byte, agentHash string) (worker.AgentBinary, error) {
	mod, err := l.runtime.CompileModule(ctx, binary)
	if err != nil {
		return nil, err
	}

	inst, err := l.runtime.Instantiate(ctx, mod, wasmrt.InstanceConfig{
		ChallengeID: agentHash,
		Registrars:  l.registrars,
	})
	if err != nil {
		return nil, err
	}

	return &wasmAgentBinary{inst: inst}, nil
}

// wasmAgentBinary adapts a *wasmrt.Instance to worker.AgentBinary: each
// agent step is one evaluate_request round-trip.
type wasmAgentBinary struct {
	inst *wasmrt.Instance
}

func (a *wasmAgentBinary) Step(ctx context.Context, input worker.AgentStepInput) ([]byte, error) {
	reqBytes, err := marshalStepInput(input)
	if err != nil {
		return nil, err
	}
	out, _, err := a.inst.EvaluateRequest(ctx, reqBytes)
	return out, err
}

func (a *wasmAgentBinary) Close() error {
	return a.inst.Close(context.Background())
}
