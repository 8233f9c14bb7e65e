package kv

import (
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/platform-net/validator-core/errs"
)

// Pair is a single key/value write.
type Pair struct {
	Key   string
	Value []byte
}

// BatchedWriter accepts (key, value) pairs and flushes when either the pair
// count or the caller-driven flush interval is reached. A flush is atomic:
// every pair in the batch becomes visible together, per spec.md §4.5.
type BatchedWriter struct {
	store        *Store
	maxPairs     int
	mu           sync.Mutex
	pending      []Pair
	committed    int
}

// NewBatchedWriter builds a writer that auto-flushes once maxPairs pending
// writes accumulate. Callers drive the time-based flush interval externally
// by calling Flush on a ticker.
func NewBatchedWriter(store *Store, maxPairs int) *BatchedWriter {
	if maxPairs < 1 {
		maxPairs = 1
	}
	return &BatchedWriter{store: store, maxPairs: maxPairs}
}

// Write stages a pair, flushing automatically once the pair count reaches
// the configured maximum.
func (w *BatchedWriter) Write(key string, value []byte) error {
	w.mu.Lock()
	w.pending = append(w.pending, Pair{Key: key, Value: value})
	shouldFlush := len(w.pending) >= w.maxPairs
	w.mu.Unlock()

	if shouldFlush {
		return w.Flush()
	}
	return nil
}

// Flush commits every pending pair atomically via a single LevelDB batch.
func (w *BatchedWriter) Flush() error {
	const op = "kv.BatchedWriter.Flush"
	w.mu.Lock()
	pairs := w.pending
	w.pending = nil
	w.mu.Unlock()

	if len(pairs) == 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	for _, p := range pairs {
		batch.Put([]byte(p.Key), p.Value)
	}
	if err := w.store.db.Write(batch, nil); err != nil {
		return errs.E(op, errs.Storage, err)
	}

	w.mu.Lock()
	w.committed += len(pairs)
	w.mu.Unlock()
	return nil
}

// Committed returns the total number of pairs committed so far.
func (w *BatchedWriter) Committed() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.committed
}

// Drop discards any remainder without committing it.
func (w *BatchedWriter) Drop() {
	w.mu.Lock()
	w.pending = nil
	w.mu.Unlock()
}

// Pending returns the number of currently uncommitted pairs.
func (w *BatchedWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}
