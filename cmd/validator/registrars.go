// Copyright (c) 2018 The VeChainThor developers

// Distributed under the GNU Lesser General Public License v3.0 software license, see the accompanying
// file LICENSE or <https://www.gnu.org/licenses/lgpl-3.0.html>

package main

import (
	"path/filepath"
	"time"

	"github.com/platform-net/validator-core/config"
	"github.com/platform-net/validator-core/hostfn"
	"github.com/platform-net/validator-core/policy"
	"github.com/platform-net/validator-core/registry"
	"github.com/platform-net/validator-core/store/kv"
	"github.com/platform-net/validator-core/store/metadata"
	"github.com/platform-net/validator-core/wasmrt"
)

// builtins bundles every long-lived piece cmd/validator opens in order to
// construct the fixed wasmrt.Registrar set, so runAction can close them
// down cleanly on exit.
type builtins struct {
	registrars []wasmrt.Registrar
	store      *kv.Store
	metadata   *metadata.Registry
	challenges *registry.Registry
}

func (b *builtins) Close() {
	if b.metadata != nil {
		_ = b.metadata.Close()
	}
	if b.store != nil {
		_ = b.store.Close()
	}
}

// newBuiltins opens the storage backend and metadata database cfg names,
// wires them into the per-capability hostfn hosts, and wraps each host in
// its wasmrt.Registrar in the fixed order spec.md §4.3 step 4 requires:
// network, storage, exec, terminal, sandbox. Time/consensus/data/container/
// LLM have no dedicated host functions yet (get_timestamp and get_time ride
// on the network and terminal registrars respectively), so they are skipped
// rather than left as silent gaps in the ordering.
func newBuiltins(cfg config.Config) (*builtins, error) {
	normalized, err := policy.NormalizeBundle(cfg.Capabilities)
	if err != nil {
		return nil, err
	}

	store, backend, err := openStorageBackend(cfg.Storage)
	if err != nil {
		return nil, err
	}

	metaReg, err := openMetadataStore()
	if err != nil {
		if store != nil {
			_ = store.Close()
		}
		return nil, err
	}

	challenges := registry.New()
	challenges.SetMetadataStore(metaReg)

	clock := hostfn.NewClock(nil)
	state := hostfn.NewState(cfg.Network.ChallengeID, clock)

	networkHost := hostfn.NewNetworkHost(normalized.Network, state, hostfn.NewHTTPClientDoer(30*time.Second))
	storageHost := hostfn.NewStorageHost(cfg.Capabilities.Storage, backend, cfg.Network.ChallengeID)
	execHost := hostfn.NewExecHost(cfg.Capabilities.Exec, state)
	sandboxHost := hostfn.NewExecHost(cfg.Capabilities.Sandbox, state)
	terminalHost := hostfn.NewTerminalHost(cfg.Capabilities.Terminal, state, cfg.Network.ChallengeID, cfg.Capabilities.Exec)

	registrars := []wasmrt.Registrar{
		&wasmrt.NetworkRegistrar{Host: networkHost},
		&wasmrt.StorageRegistrar{Host: storageHost},
		&wasmrt.ExecRegistrar{Host: execHost, Name: "exec_command"},
		&wasmrt.TerminalRegistrar{Host: terminalHost},
		&wasmrt.ExecRegistrar{Host: sandboxHost, Name: "sandbox_exec"},
	}

	return &builtins{registrars: registrars, store: store, metadata: metaReg, challenges: challenges}, nil
}

// openStorageBackend opens the disk/memory/noop backend cfg.Backend names
// and, for disk/memory, fronts it with a read-through cache sized per cfg.
// A "noop" backend skips store/kv entirely and falls back to hostfn's own
// discard-everything implementation.
func openStorageBackend(cfg config.StoragePolicy) (*kv.Store, hostfn.StorageBackend, error) {
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	switch cfg.Backend {
	case "", "memory":
		store, err := kv.OpenMem()
		if err != nil {
			return nil, nil, err
		}
		return store, kv.NewCachedStorageBackend(store, cfg.CacheCapacity, ttl, cfg.CompressionSnappy), nil
	case "disk":
		store, err := kv.Open(cfg.DataDir, kv.Options{})
		if err != nil {
			return nil, nil, err
		}
		return store, kv.NewCachedStorageBackend(store, cfg.CacheCapacity, ttl, cfg.CompressionSnappy), nil
	case "noop":
		return nil, hostfn.NoopStorageBackend{}, nil
	default:
		store, err := kv.OpenMem()
		if err != nil {
			return nil, nil, err
		}
		return store, kv.NewCachedStorageBackend(store, cfg.CacheCapacity, ttl, cfg.CompressionSnappy), nil
	}
}

// openMetadataStore opens the sqlite-backed challenge metadata registry
// under the platform state directory, matching config's own "state lives
// under a home-relative directory" lifecycle.
func openMetadataStore() (*metadata.Registry, error) {
	dir, err := config.Dir()
	if err != nil {
		return nil, err
	}
	return metadata.Open(filepath.Join(dir, "metadata.db"))
}
