// Package metadata implements the per-challenge metadata registry and the
// schema migration runner described in spec.md §4.5, backed by
// github.com/mattn/go-sqlite3, mirroring the teacher's sqlite-backed
// logdb package.
package metadata

import (
	"crypto/sha256"
	"database/sql"
	"sort"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
	"github.com/platform-net/validator-core/identity"
)

// ChallengeMetadata is the per-challenge record tracked by the registry.
type ChallengeMetadata struct {
	ChallengeID   identity.ChallengeID
	SchemaVersion uint32
	StorageFormat string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	MerkleRoot    [32]byte
	ConfigJSON    string
}

// Registry persists ChallengeMetadata rows and a single global root.
type Registry struct {
	db *sql.DB
}

// Open opens (and, if needed, initializes) the metadata database at path.
// Use ":memory:" for an in-process store.
func Open(path string) (*Registry, error) {
	const op = "metadata.Open"
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errs.E(op, errs.Storage, err)
	}
	r := &Registry{db: db}
	if err := r.init(); err != nil {
		return nil, errs.E(op, errs.Storage, err)
	}
	return r, nil
}

func (r *Registry) init() error {
	_, err := r.db.Exec(`
CREATE TABLE IF NOT EXISTS challenge_metadata (
	challenge_id   TEXT PRIMARY KEY,
	schema_version INTEGER NOT NULL,
	storage_format TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	updated_at     INTEGER NOT NULL,
	merkle_root    BLOB NOT NULL,
	config_json    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS global_root (
	id   INTEGER PRIMARY KEY CHECK (id = 0),
	root BLOB NOT NULL
);
`)
	return err
}

func (r *Registry) Close() error { return r.db.Close() }

// Upsert writes m and recomputes/persists the global root.
func (r *Registry) Upsert(m ChallengeMetadata) error {
	const op = "metadata.Upsert"
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	_, err := r.db.Exec(`
INSERT INTO challenge_metadata (challenge_id, schema_version, storage_format, created_at, updated_at, merkle_root, config_json)
VALUES (?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(challenge_id) DO UPDATE SET
	schema_version=excluded.schema_version,
	storage_format=excluded.storage_format,
	updated_at=excluded.updated_at,
	merkle_root=excluded.merkle_root,
	config_json=excluded.config_json
`, m.ChallengeID.String(), m.SchemaVersion, m.StorageFormat, m.CreatedAt.UnixMilli(), m.UpdatedAt.UnixMilli(), m.MerkleRoot[:], m.ConfigJSON)
	if err != nil {
		return errs.E(op, errs.Storage, err)
	}
	return r.recomputeGlobalRoot()
}

// Get returns the metadata for id, if present.
func (r *Registry) Get(id identity.ChallengeID) (ChallengeMetadata, bool, error) {
	const op = "metadata.Get"
	row := r.db.QueryRow(`SELECT schema_version, storage_format, created_at, updated_at, merkle_root, config_json FROM challenge_metadata WHERE challenge_id = ?`, id.String())

	var m ChallengeMetadata
	m.ChallengeID = id
	var createdAt, updatedAt int64
	var root []byte
	err := row.Scan(&m.SchemaVersion, &m.StorageFormat, &createdAt, &updatedAt, &root, &m.ConfigJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return ChallengeMetadata{}, false, nil
	}
	if err != nil {
		return ChallengeMetadata{}, false, errs.E(op, errs.Storage, err)
	}
	m.CreatedAt = time.UnixMilli(createdAt).UTC()
	m.UpdatedAt = time.UnixMilli(updatedAt).UTC()
	copy(m.MerkleRoot[:], root)
	return m, true, nil
}

// GlobalRoot returns the currently persisted global root, computed as
// SHA-256 over challenges sorted by id, concatenating (id_bytes ||
// merkle_root), per spec.md §4.5.
func (r *Registry) GlobalRoot() ([32]byte, error) {
	const op = "metadata.GlobalRoot"
	var root []byte
	err := r.db.QueryRow(`SELECT root FROM global_root WHERE id = 0`).Scan(&root)
	if errors.Is(err, sql.ErrNoRows) {
		return [32]byte{}, nil
	}
	if err != nil {
		return [32]byte{}, errs.E(op, errs.Storage, err)
	}
	var out [32]byte
	copy(out[:], root)
	return out, nil
}

func (r *Registry) recomputeGlobalRoot() error {
	const op = "metadata.recomputeGlobalRoot"
	rows, err := r.db.Query(`SELECT challenge_id, merkle_root FROM challenge_metadata`)
	if err != nil {
		return errs.E(op, errs.Storage, err)
	}
	defer rows.Close()

	type rec struct {
		id   identity.ChallengeID
		root []byte
	}
	var recs []rec
	for rows.Next() {
		var idStr string
		var root []byte
		if err := rows.Scan(&idStr, &root); err != nil {
			return errs.E(op, errs.Storage, err)
		}
		id, err := identity.ParseChallengeID(idStr)
		if err != nil {
			return errs.E(op, errs.Storage, err)
		}
		recs = append(recs, rec{id: id, root: root})
	}

	sort.Slice(recs, func(i, j int) bool { return recs[i].id.Less(recs[j].id) })

	h := sha256.New()
	for _, rc := range recs {
		h.Write(rc.id[:])
		h.Write(rc.root)
	}
	sum := h.Sum(nil)

	_, err = r.db.Exec(`
INSERT INTO global_root (id, root) VALUES (0, ?)
ON CONFLICT(id) DO UPDATE SET root=excluded.root
`, sum)
	if err != nil {
		return errs.E(op, errs.Storage, err)
	}
	return nil
}
