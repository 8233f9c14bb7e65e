// Package kv implements the batched writer, prefix scan, and LevelDB-backed
// storage engine described in spec.md §4.5, grounded on the teacher's
// lvldb/leveldb_test.go usage of github.com/syndtr/goleveldb (via the
// vechain/goleveldb replace already present in go.mod).
package kv

import (
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/platform-net/validator-core/errs"
)

// Options configures block-cache and open-files-cache sizing, mirroring the
// teacher's lvldb.Options shape.
type Options struct {
	CacheSizeMB        int
	OpenFilesCacheCap  int
}

// Store wraps a LevelDB handle.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a disk-backed store at path.
func Open(path string, opts Options) (*Store, error) {
	const op = "kv.Open"
	o := &opt.Options{}
	if opts.CacheSizeMB > 0 {
		o.BlockCacheCapacity = opts.CacheSizeMB * opt.MiB
	}
	if opts.OpenFilesCacheCap > 0 {
		o.OpenFilesCacheCapacity = opts.OpenFilesCacheCap
	}
	db, err := leveldb.OpenFile(path, o)
	if err != nil {
		return nil, errs.E(op, errs.Storage, err)
	}
	return &Store{db: db}, nil
}

// OpenMem opens an in-memory store, useful for tests.
func OpenMem() (*Store, error) {
	const op = "kv.OpenMem"
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errs.E(op, errs.Storage, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Get(key string) ([]byte, bool, error) {
	const op = "kv.Get"
	v, err := s.db.Get([]byte(key), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, errs.E(op, errs.Storage, err)
	}
	return v, true, nil
}

func (s *Store) Put(key string, value []byte) error {
	const op = "kv.Put"
	if err := s.db.Put([]byte(key), value, nil); err != nil {
		return errs.E(op, errs.Storage, err)
	}
	return nil
}

func (s *Store) Delete(key string) error {
	const op = "kv.Delete"
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return errs.E(op, errs.Storage, err)
	}
	return nil
}

// PrefixScan iterates every key sharing prefix, invoking f for each pair in
// ascending key order. If f returns false, iteration stops early, per
// spec.md §4.5 "for_each(f) with early termination".
func (s *Store) PrefixScan(prefix string, f func(key string, value []byte) bool) error {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		if !f(string(iter.Key()), append([]byte{}, iter.Value()...)) {
			break
		}
	}
	return iter.Error()
}

// PrefixCount counts keys sharing prefix.
func (s *Store) PrefixCount(prefix string) (int, error) {
	count := 0
	err := s.PrefixScan(prefix, func(string, []byte) bool { count++; return true })
	return count, err
}

// PrefixKeys returns every key sharing prefix.
func (s *Store) PrefixKeys(prefix string) ([]string, error) {
	var keys []string
	err := s.PrefixScan(prefix, func(k string, _ []byte) bool { keys = append(keys, k); return true })
	return keys, err
}
