package hostfn

import (
	"crypto/sha256"

	"github.com/platform-net/validator-core/policy"
)

// StorageBackend is the polymorphic storage abstraction per spec.md §4.2
// and §9 ("Dynamic dispatch"): {get, propose_write, delete}. Implementations
// include an in-memory reference (below), a disk-backed engine (store/kv),
// and a no-op.
type StorageBackend interface {
	Get(challengeID, key string) ([]byte, bool, error)
	ProposeWrite(challengeID, key string, value []byte) ([32]byte, error)
	Delete(challengeID, key string) error
}

// NoopStorageBackend discards every write and reports every read as a miss.
type NoopStorageBackend struct{}

func (NoopStorageBackend) Get(string, string) ([]byte, bool, error)        { return nil, false, nil }
func (NoopStorageBackend) ProposeWrite(c, k string, v []byte) ([32]byte, error) {
	return sha256.Sum256(append([]byte(c+k), v...)), nil
}
func (NoopStorageBackend) Delete(string, string) error { return nil }

// InMemoryStorageBackend is the reference backend: keys by (challengeID,
// key) and returns SHA-256(challenge_id || key || value) as proposal id,
// per spec.md §4.2.
type InMemoryStorageBackend struct {
	data map[string]map[string][]byte
}

func NewInMemoryStorageBackend() *InMemoryStorageBackend {
	return &InMemoryStorageBackend{data: map[string]map[string][]byte{}}
}

func (b *InMemoryStorageBackend) Get(challengeID, key string) ([]byte, bool, error) {
	m, ok := b.data[challengeID]
	if !ok {
		return nil, false, nil
	}
	v, ok := m[key]
	return v, ok, nil
}

func (b *InMemoryStorageBackend) ProposeWrite(challengeID, key string, value []byte) ([32]byte, error) {
	if b.data[challengeID] == nil {
		b.data[challengeID] = map[string][]byte{}
	}
	b.data[challengeID][key] = value
	buf := append([]byte(challengeID), []byte(key)...)
	buf = append(buf, value...)
	return sha256.Sum256(buf), nil
}

func (b *InMemoryStorageBackend) Delete(challengeID, key string) error {
	if m, ok := b.data[challengeID]; ok {
		delete(m, key)
	}
	return nil
}

// StorageHost implements storage_get, storage_set, storage_delete,
// storage_propose_write, storage_get_result.
type StorageHost struct {
	policy      policy.StoragePolicy
	backend     StorageBackend
	challengeID string

	// proposals maps a raw 32-byte proposal id to its pending value,
	// delivered to the guest via the result-handle mechanism.
	proposals map[[32]byte][]byte
}

func NewStorageHost(p policy.StoragePolicy, backend StorageBackend, challengeID string) *StorageHost {
	return &StorageHost{policy: p, backend: backend, challengeID: challengeID, proposals: map[[32]byte][]byte{}}
}

func (h *StorageHost) validateKey(key []byte) Status {
	if h.policy.MaxKeySize > 0 && uint32(len(key)) > h.policy.MaxKeySize {
		return StatusStorageKeyTooLarge
	}
	if len(key) == 0 {
		return StatusStorageInvalidKey
	}
	return StatusStorageSuccess
}

func (h *StorageHost) validateValue(value []byte) Status {
	if h.policy.MaxValueSize > 0 && uint32(len(value)) > h.policy.MaxValueSize {
		return StatusStorageValueTooLarge
	}
	return StatusStorageSuccess
}

// Get implements storage_get.
func (h *StorageHost) Get(key []byte) ([]byte, Status) {
	if st := h.validateKey(key); st != StatusStorageSuccess {
		return nil, st
	}
	v, ok, err := h.backend.Get(h.challengeID, string(key))
	if err != nil {
		return nil, StatusStorageError
	}
	if !ok {
		return nil, StatusStorageNotFound
	}
	return v, StatusStorageSuccess
}

// Set implements storage_set. If the policy requires consensus and
// disallows direct writes, it returns ConsensusRequired instead of writing.
func (h *StorageHost) Set(key, value []byte) Status {
	if st := h.validateKey(key); st != StatusStorageSuccess {
		return st
	}
	if st := h.validateValue(value); st != StatusStorageSuccess {
		return st
	}
	if h.policy.RequiresProposal() {
		return StatusStorageConsensusRequired
	}
	if _, err := h.backend.ProposeWrite(h.challengeID, string(key), value); err != nil {
		return StatusStorageError
	}
	return StatusStorageSuccess
}

// Delete implements storage_delete.
func (h *StorageHost) Delete(key []byte) Status {
	if st := h.validateKey(key); st != StatusStorageSuccess {
		return st
	}
	if h.policy.RequiresProposal() {
		return StatusStorageConsensusRequired
	}
	if err := h.backend.Delete(h.challengeID, string(key)); err != nil {
		return StatusStorageError
	}
	return StatusStorageSuccess
}

// ProposeWrite implements storage_propose_write: returns the 32-byte
// proposal id the guest must later resolve via GetResult.
func (h *StorageHost) ProposeWrite(key, value []byte) ([32]byte, Status) {
	if st := h.validateKey(key); st != StatusStorageSuccess {
		return [32]byte{}, st
	}
	if st := h.validateValue(value); st != StatusStorageSuccess {
		return [32]byte{}, st
	}
	id, err := h.backend.ProposeWrite(h.challengeID, string(key), value)
	if err != nil {
		return [32]byte{}, StatusStorageError
	}
	h.proposals[id] = value
	return id, StatusStorageSuccess
}

// GetResult implements storage_get_result: resolves a previously proposed write.
func (h *StorageHost) GetResult(id [32]byte) ([]byte, Status) {
	v, ok := h.proposals[id]
	if !ok {
		return nil, StatusStorageNotFound
	}
	return v, StatusStorageSuccess
}
