package registry

import (
	"encoding/hex"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/event"
	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
	"github.com/platform-net/validator-core/identity"
	"github.com/platform-net/validator-core/store/metadata"
)

// EventKind enumerates lifecycle events a registry mutation may emit.
type EventKind int

const (
	EventRegistered EventKind = iota
	EventUnregistered
	EventStateChanged
	EventVersionChanged
	EventRestarted
)

// Event is a lifecycle event payload. Listeners receive copies, never the
// registry itself — see DESIGN.md / spec.md §9 "Cyclic references".
type Event struct {
	Kind        EventKind
	ChallengeID identity.ChallengeID
	At          time.Time
	Detail      string
}

// StateStore is the small per-challenge key/value store created alongside
// each registry entry and torn down on unregistration, per spec.md §3.
type StateStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func newStateStore() *StateStore {
	return &StateStore{data: map[string][]byte{}}
}

func (s *StateStore) Get(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

func (s *StateStore) Set(key string, value []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

type record struct {
	entry ChallengeEntry
	store *StateStore
}

// Registry maps challenge identifiers to entries and state stores, with a
// secondary name index. Register/unregister are single-writer critical
// sections, per spec.md §4.4.
type Registry struct {
	mu     sync.Mutex
	byID   map[identity.ChallengeID]*record
	byName map[string]identity.ChallengeID
	feed   event.Feed

	// meta persists a (challenge_id -> metadata) row from Register,
	// UpdateState, UpdateVersion and UpdateRestartConfig; Unregister and
	// UpdateHealth do not write to it. A nil meta disables persistence;
	// the registry stays in-memory-only, matching its default construction.
	meta *metadata.Registry
}

// New constructs an empty registry.
func New() *Registry {
	return &Registry{
		byID:   map[identity.ChallengeID]*record{},
		byName: map[string]identity.ChallengeID{},
	}
}

// SetMetadataStore attaches a store/metadata.Registry that subsequent
// Register, UpdateState, UpdateVersion and UpdateRestartConfig calls
// persist a row to. It is not set in New() so that
// tests and short-lived callers can keep the registry purely in-memory.
func (r *Registry) SetMetadataStore(meta *metadata.Registry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.meta = meta
}

// persist best-effort-upserts a metadata row derived from entry. Merkle
// root mirrors the entry's WasmModule.ModuleHash when present; persistence
// failures never block the in-memory mutation that triggered them, matching
// spec.md §7's "storage and serialization errors at the registry boundary
// surface to callers" only for calls that read persisted state directly.
func (r *Registry) persist(entry ChallengeEntry) {
	if r.meta == nil {
		return
	}
	m := metadata.ChallengeMetadata{
		ChallengeID:   entry.ID,
		SchemaVersion: uint32(entry.ConfigVersion),
		StorageFormat: "wasm",
		ConfigJSON:    entry.MetadataJSON,
	}
	if entry.WasmModule != nil {
		if sum, err := hex.DecodeString(entry.WasmModule.ModuleHash); err == nil && len(sum) == 32 {
			copy(m.MerkleRoot[:], sum)
		}
	}
	_ = r.meta.Upsert(m)
}

// Subscribe registers ch to receive a copy of every emitted Event.
func (r *Registry) Subscribe(ch chan<- Event) event.Subscription {
	return r.feed.Subscribe(ch)
}

func (r *Registry) emit(e Event) {
	r.feed.Send(e)
}

// Register inserts a new challenge entry. Registration with a nil
// WasmModule fails with InvalidConfig; a duplicate name fails with
// AlreadyRegistered.
func (r *Registry) Register(entry ChallengeEntry) error {
	const op = "registry.Register"
	if entry.WasmModule == nil {
		return errs.E(op, errs.InvalidConfig, errors.New("wasm_module must not be nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[entry.Name]; exists {
		return errs.E(op, errs.AlreadyRegistered, errors.Errorf("name %q already registered", entry.Name))
	}

	now := time.Now().UTC()
	entry.RegisteredAt = now
	entry.UpdatedAt = now
	if entry.State == 0 && entry.Health == 0 {
		entry.State = Registered
		entry.Health = Unknown
	}

	r.byID[entry.ID] = &record{entry: entry, store: newStateStore()}
	r.byName[entry.Name] = entry.ID

	r.emit(Event{Kind: EventRegistered, ChallengeID: entry.ID, At: now, Detail: entry.Name})
	r.persist(entry)
	return nil
}

// RegisterWasmChallenge is a convenience constructor used by callers that
// only have the module metadata in hand, mirroring the original's
// register_wasm_challenge helper.
func (r *Registry) RegisterWasmChallenge(id identity.ChallengeID, name string, version Version, module WasmModuleMetadata) error {
	return r.Register(ChallengeEntry{
		ID:         id,
		Name:       name,
		Version:    version,
		WasmModule: &module,
	})
}

// Unregister removes a challenge entry and tears down its state store.
func (r *Registry) Unregister(id identity.ChallengeID) error {
	const op = "registry.Unregister"
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return errs.E(op, errs.NotFound, errors.Errorf("challenge %s not registered", id))
	}
	delete(r.byID, id)
	delete(r.byName, rec.entry.Name)

	r.emit(Event{Kind: EventUnregistered, ChallengeID: id, At: time.Now().UTC()})
	return nil
}

// Get returns the entry for id, or (zero, false) if absent. Non-mutating
// lookups return an empty option rather than erroring, per spec.md §4.4.
func (r *Registry) Get(id identity.ChallengeID) (ChallengeEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return ChallengeEntry{}, false
	}
	return rec.entry, true
}

// GetByName resolves a name to its entry via the secondary index.
func (r *Registry) GetByName(name string) (ChallengeEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		return ChallengeEntry{}, false
	}
	return r.byID[id].entry, true
}

// List returns every registered entry.
func (r *Registry) List() []ChallengeEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ChallengeEntry, 0, len(r.byID))
	for _, rec := range r.byID {
		out = append(out, rec.entry)
	}
	return out
}

// ListActive returns entries with state=Running and health=Healthy.
func (r *Registry) ListActive() []ChallengeEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []ChallengeEntry
	for _, rec := range r.byID {
		if rec.entry.State == Running && rec.entry.Health == Healthy {
			out = append(out, rec.entry)
		}
	}
	return out
}

// Count returns the number of registered entries.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// StateStoreFor returns the per-challenge state store, or nil if id is unknown.
func (r *Registry) StateStoreFor(id identity.ChallengeID) *StateStore {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return nil
	}
	return rec.store
}

// UpdateState transitions the entry to newState if the transition is legal,
// touching UpdatedAt and emitting EventStateChanged.
func (r *Registry) UpdateState(id identity.ChallengeID, newState LifecycleState) error {
	const op = "registry.UpdateState"
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return errs.E(op, errs.NotFound, errors.Errorf("challenge %s not registered", id))
	}
	if !CanTransition(rec.entry.State, newState) {
		r.mu.Unlock()
		return errs.E(op, errs.Validation, errors.Errorf("illegal transition %s -> %s", rec.entry.State, newState))
	}
	rec.entry.State = newState
	rec.entry.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	r.emit(Event{Kind: EventStateChanged, ChallengeID: id, At: rec.entry.UpdatedAt, Detail: newState.String()})
	r.persist(rec.entry)
	return nil
}

// UpdateHealth sets the entry's observed health and touches UpdatedAt.
func (r *Registry) UpdateHealth(id identity.ChallengeID, health HealthStatus) error {
	const op = "registry.UpdateHealth"
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok {
		return errs.E(op, errs.NotFound, errors.Errorf("challenge %s not registered", id))
	}
	rec.entry.Health = health
	rec.entry.UpdatedAt = time.Now().UTC()
	return nil
}

// UpdateVersion compares major numbers against the current version;
// non-compatible changes are allowed but emit EventVersionChanged.
func (r *Registry) UpdateVersion(id identity.ChallengeID, newVersion Version) error {
	const op = "registry.UpdateVersion"
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return errs.E(op, errs.NotFound, errors.Errorf("challenge %s not registered", id))
	}
	old := rec.entry.Version
	rec.entry.Version = newVersion
	rec.entry.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	if !old.CompatibleWith(newVersion) {
		r.emit(Event{Kind: EventVersionChanged, ChallengeID: id, At: rec.entry.UpdatedAt})
	}
	r.persist(rec.entry)
	return nil
}

// UpdateRestartConfig mutates the embedded module metadata's restart_id and
// config_version in lock-step with the entry's own fields, whether or not a
// restart is triggered. A restart is triggered iff restartID differs from
// the previous value or configVersion strictly increases, per spec.md §4.4.
func (r *Registry) UpdateRestartConfig(id identity.ChallengeID, restartID *string, configVersion uint64) error {
	const op = "registry.UpdateRestartConfig"
	r.mu.Lock()
	rec, ok := r.byID[id]
	if !ok {
		r.mu.Unlock()
		return errs.E(op, errs.NotFound, errors.Errorf("challenge %s not registered", id))
	}

	restartTriggered := !restartIDEqual(rec.entry.RestartID, restartID) || configVersion > rec.entry.ConfigVersion

	rec.entry.RestartID = restartID
	rec.entry.ConfigVersion = configVersion
	if rec.entry.WasmModule != nil {
		rec.entry.WasmModule.RestartID = restartID
		rec.entry.WasmModule.ConfigVersion = configVersion
	}
	rec.entry.UpdatedAt = time.Now().UTC()
	r.mu.Unlock()

	if restartTriggered {
		r.emit(Event{Kind: EventRestarted, ChallengeID: id, At: rec.entry.UpdatedAt})
	}
	r.persist(rec.entry)
	return nil
}

func restartIDEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
