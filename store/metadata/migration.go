package metadata

import (
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/platform-net/validator-core/errs"
)

func migrationNotReversible(version uint32) error {
	return errors.Errorf("migration %d has no Down and is not reversible", version)
}

// Change is a single (old, new) value pair a migration's Up function
// applies; the migration runner hashes the sequence of changes to produce
// a checksum, per spec.md §4.5.
type Change struct {
	Old any
	New any
}

// Migration is sequentially numbered and has an Up and optional Down.
type Migration struct {
	Version uint32
	Name    string
	Up      func(tx *sql.Tx) ([]Change, error)
	Down    func(tx *sql.Tx) error
}

// AppliedRecord is persisted once a migration's Up has run.
type AppliedRecord struct {
	Version     uint32
	Name        string
	AppliedAt   time.Time
	BlockHeight uint64
	Checksum    [32]byte
}

// Runner tracks the current schema version and the log of applied migrations.
type Runner struct {
	db *sql.DB
}

// NewRunner wraps db, creating the migration-tracking table if absent.
func NewRunner(db *sql.DB) (*Runner, error) {
	const op = "metadata.NewRunner"
	_, err := db.Exec(`
CREATE TABLE IF NOT EXISTS schema_migrations (
	version      INTEGER PRIMARY KEY,
	name         TEXT NOT NULL,
	applied_at   INTEGER NOT NULL,
	block_height INTEGER NOT NULL,
	checksum     BLOB NOT NULL
);
`)
	if err != nil {
		return nil, errs.E(op, errs.Storage, err)
	}
	return &Runner{db: db}, nil
}

// CurrentVersion returns the highest applied migration version, or 0 if none.
func (r *Runner) CurrentVersion() (uint32, error) {
	const op = "metadata.CurrentVersion"
	var v sql.NullInt64
	err := r.db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&v)
	if err != nil {
		return 0, errs.E(op, errs.Storage, err)
	}
	if !v.Valid {
		return 0, nil
	}
	return uint32(v.Int64), nil
}

// Up runs every pending migration (those with Version > current) in
// ascending order, recording an AppliedRecord for each. Running pending
// migrations is monotonic, per spec.md §4.5.
func (r *Runner) Up(migrations []Migration, blockHeight uint64) error {
	const op = "metadata.Up"
	current, err := r.CurrentVersion()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.Version <= current {
			continue
		}
		tx, err := r.db.Begin()
		if err != nil {
			return errs.E(op, errs.Storage, err)
		}
		changes, err := m.Up(tx)
		if err != nil {
			tx.Rollback()
			return errs.E(op, errs.Storage, err)
		}
		checksum, err := checksumChanges(changes)
		if err != nil {
			tx.Rollback()
			return errs.E(op, errs.Serialization, err)
		}
		_, err = tx.Exec(`INSERT INTO schema_migrations (version, name, applied_at, block_height, checksum) VALUES (?, ?, ?, ?, ?)`,
			m.Version, m.Name, time.Now().UTC().UnixMilli(), blockHeight, checksum[:])
		if err != nil {
			tx.Rollback()
			return errs.E(op, errs.Storage, err)
		}
		if err := tx.Commit(); err != nil {
			return errs.E(op, errs.Storage, err)
		}
	}
	return nil
}

// Down rolls back to targetVersion. Every intermediate migration between
// the current version and targetVersion (exclusive) must define Down;
// absence of a reversible step aborts the rollback, per spec.md §4.5.
func (r *Runner) Down(migrations []Migration, targetVersion uint32) error {
	const op = "metadata.Down"
	current, err := r.CurrentVersion()
	if err != nil {
		return err
	}
	if targetVersion >= current {
		return nil
	}

	byVersion := map[uint32]Migration{}
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	for v := current; v > targetVersion; v-- {
		m, ok := byVersion[v]
		if !ok || m.Down == nil {
			return errs.E(op, errs.InvalidConfig, migrationNotReversible(v))
		}
		tx, err := r.db.Begin()
		if err != nil {
			return errs.E(op, errs.Storage, err)
		}
		if err := m.Down(tx); err != nil {
			tx.Rollback()
			return errs.E(op, errs.Storage, err)
		}
		if _, err := tx.Exec(`DELETE FROM schema_migrations WHERE version = ?`, v); err != nil {
			tx.Rollback()
			return errs.E(op, errs.Storage, err)
		}
		if err := tx.Commit(); err != nil {
			return errs.E(op, errs.Storage, err)
		}
	}
	return nil
}

func checksumChanges(changes []Change) ([32]byte, error) {
	h := sha256.New()
	for _, c := range changes {
		oldBytes, err := json.Marshal(c.Old)
		if err != nil {
			return [32]byte{}, err
		}
		newBytes, err := json.Marshal(c.New)
		if err != nil {
			return [32]byte{}, err
		}
		h.Write(oldBytes)
		h.Write(newBytes)
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}
