package wasmrt

import (
	"context"
	"encoding/json"

	"github.com/tetratelabs/wazero"

	"github.com/platform-net/validator-core/hostfn"
)

// Guest-facing host functions share one calling convention: a request
// is read from (reqPtr, reqLen), a response is written into a guest-owned
// output buffer (outPtr, outCap), and the i64 result is
// hostfn.PackResult(status, bytesWritten) — StatusBufferTooSmall if the
// response does not fit outCap. Structured responses are JSON-encoded;
// byte values (storage values, proposal ids, file contents, random seeds)
// are written raw. Functions with no variable-length output return
// PackResult(status, 0), except network_get_timestamp and
// terminal_get_time, which return the timestamp itself.

func readGuest(mem MemoryAccessor, ptr, length uint32) ([]byte, hostfn.Status) {
	if length == 0 {
		return nil, hostfn.StatusSuccess
	}
	buf, err := mem.Read(ptr, length)
	if err != nil {
		return nil, hostfn.StatusInternalError
	}
	return buf, hostfn.StatusSuccess
}

func writeBounded(mem MemoryAccessor, outPtr, outCap uint32, data []byte) int64 {
	if uint32(len(data)) > outCap {
		return int64(hostfn.PackResult(hostfn.StatusBufferTooSmall, 0))
	}
	if len(data) > 0 {
		if err := mem.Write(outPtr, data); err != nil {
			return int64(hostfn.PackResult(hostfn.StatusInternalError, 0))
		}
	}
	return int64(hostfn.PackResult(hostfn.StatusSuccess, int32(len(data))))
}

func writeJSON(mem MemoryAccessor, outPtr, outCap uint32, v interface{}) int64 {
	data, err := json.Marshal(v)
	if err != nil {
		return int64(hostfn.PackResult(hostfn.StatusInternalError, 0))
	}
	return writeBounded(mem, outPtr, outCap, data)
}

// NetworkRegistrar binds NetworkHost's capability onto the "env" module's
// network_* host functions, per spec.md §4.2's network host surface.
type NetworkRegistrar struct {
	Host *hostfn.NetworkHost
}

func (r *NetworkRegistrar) Register(ctx context.Context, builder wazero.HostModuleBuilder, mem MemoryAccessor) {
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, reqPtr, reqLen, outPtr, outCap uint32) uint64 {
			raw, st := readGuest(mem, reqPtr, reqLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			var req hostfn.HTTPRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return uint64(hostfn.PackResult(hostfn.StatusNotAllowed, 0))
			}
			resp, status := r.Host.HTTPRequestFn(req)
			if status != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeJSON(mem, outPtr, outCap, resp))
		}).
		Export("network_http_request")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, hostPtr, hostLen, typePtr, typeLen, outPtr, outCap uint32) uint64 {
			hostRaw, st := readGuest(mem, hostPtr, hostLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			typeRaw, st := readGuest(mem, typePtr, typeLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			addrs, status := r.Host.DNSResolveFn(string(hostRaw), string(typeRaw), hostfn.DefaultDNSResolve)
			if status != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeJSON(mem, outPtr, outCap, addrs))
		}).
		Export("network_dns_resolve")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, msgPtr, msgLen uint32) uint64 {
			msg, st := readGuest(mem, msgPtr, msgLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			status := r.Host.LogMessageFn(string(msg))
			return uint64(hostfn.PackResult(status, 0))
		}).
		Export("network_log_message")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint64 {
			return uint64(r.Host.GetTimestampFn())
		}).
		Export("network_get_timestamp")
}

// StorageRegistrar binds StorageHost's capability onto the "env" module's
// storage_* host functions, per spec.md §4.2's storage host surface.
type StorageRegistrar struct {
	Host *hostfn.StorageHost
}

func (r *StorageRegistrar) Register(ctx context.Context, builder wazero.HostModuleBuilder, mem MemoryAccessor) {
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, keyPtr, keyLen, outPtr, outCap uint32) uint64 {
			key, st := readGuest(mem, keyPtr, keyLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			v, status := r.Host.Get(key)
			if status != hostfn.StatusStorageSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeBounded(mem, outPtr, outCap, v))
		}).
		Export("storage_get")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, keyPtr, keyLen, valPtr, valLen uint32) uint64 {
			key, st := readGuest(mem, keyPtr, keyLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			val, st := readGuest(mem, valPtr, valLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			status := r.Host.Set(key, val)
			return uint64(hostfn.PackResult(status, 0))
		}).
		Export("storage_set")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, keyPtr, keyLen uint32) uint64 {
			key, st := readGuest(mem, keyPtr, keyLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			status := r.Host.Delete(key)
			return uint64(hostfn.PackResult(status, 0))
		}).
		Export("storage_delete")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, keyPtr, keyLen, valPtr, valLen, outPtr, outCap uint32) uint64 {
			key, st := readGuest(mem, keyPtr, keyLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			val, st := readGuest(mem, valPtr, valLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			id, status := r.Host.ProposeWrite(key, val)
			if status != hostfn.StatusStorageSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeBounded(mem, outPtr, outCap, id[:]))
		}).
		Export("storage_propose_write")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, idPtr, idLen, outPtr, outCap uint32) uint64 {
			raw, st := readGuest(mem, idPtr, idLen)
			if st != hostfn.StatusSuccess || len(raw) != 32 {
				return uint64(hostfn.PackResult(hostfn.StatusStorageInvalidKey, 0))
			}
			var id [32]byte
			copy(id[:], raw)
			v, status := r.Host.GetResult(id)
			if status != hostfn.StatusStorageSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeBounded(mem, outPtr, outCap, v))
		}).
		Export("storage_get_result")
}

// ExecRegistrar binds ExecHost's capability onto the "env" module's
// exec_command/sandbox_exec host function, per spec.md §4.2.
type ExecRegistrar struct {
	Host *hostfn.ExecHost
	Name string // "exec_command" or "sandbox_exec"
}

func (r *ExecRegistrar) Register(ctx context.Context, builder wazero.HostModuleBuilder, mem MemoryAccessor) {
	name := r.Name
	if name == "" {
		name = "exec_command"
	}
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, reqPtr, reqLen, outPtr, outCap uint32) uint64 {
			raw, st := readGuest(mem, reqPtr, reqLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			var req hostfn.ExecRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return uint64(hostfn.PackResult(hostfn.StatusCommandNotAllowed, 0))
			}
			result, status := r.Host.Run(req)
			if status != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeJSON(mem, outPtr, outCap, result))
		}).
		Export(name)
}

// TerminalRegistrar binds TerminalHost's capability onto the "env"
// module's terminal_* host functions, per spec.md §4.2.
type TerminalRegistrar struct {
	Host *hostfn.TerminalHost
}

func (r *TerminalRegistrar) Register(ctx context.Context, builder wazero.HostModuleBuilder, mem MemoryAccessor) {
	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, reqPtr, reqLen, outPtr, outCap uint32) uint64 {
			raw, st := readGuest(mem, reqPtr, reqLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			var req hostfn.ExecRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return uint64(hostfn.PackResult(hostfn.StatusCommandNotAllowed, 0))
			}
			result, status := r.Host.Exec(req)
			if status != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeJSON(mem, outPtr, outCap, result))
		}).
		Export("terminal_exec")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, pathPtr, pathLen, outPtr, outCap uint32) uint64 {
			path, st := readGuest(mem, pathPtr, pathLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			data, status := r.Host.ReadFile(string(path))
			if status != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeBounded(mem, outPtr, outCap, data))
		}).
		Export("terminal_read_file")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, pathPtr, pathLen, dataPtr, dataLen uint32) uint64 {
			path, st := readGuest(mem, pathPtr, pathLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			data, st := readGuest(mem, dataPtr, dataLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			status := r.Host.WriteFile(string(path), data)
			return uint64(hostfn.PackResult(status, 0))
		}).
		Export("terminal_write_file")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, pathPtr, pathLen, outPtr, outCap uint32) uint64 {
			path, st := readGuest(mem, pathPtr, pathLen)
			if st != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(st, 0))
			}
			names, status := r.Host.ListDir(string(path))
			if status != hostfn.StatusSuccess {
				return uint64(hostfn.PackResult(status, 0))
			}
			return uint64(writeJSON(mem, outPtr, outCap, names))
		}).
		Export("terminal_list_dir")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context) uint64 {
			return uint64(r.Host.GetTime())
		}).
		Export("terminal_get_time")

	builder.NewFunctionBuilder().
		WithFunc(func(ctx context.Context, outPtr, outCap uint32) uint64 {
			seed := r.Host.RandomSeed()
			return uint64(writeBounded(mem, outPtr, outCap, seed[:]))
		}).
		Export("terminal_random_seed")
}
