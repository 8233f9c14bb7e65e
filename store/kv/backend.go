package kv

import (
	"crypto/sha256"
	"time"

	"github.com/platform-net/validator-core/store/cache"
)

// CachedStorageBackend adapts a disk-backed Store, fronted by a TTL+LRU
// read-through cache, into the (challenge_id, key) shape
// hostfn.StorageBackend expects. Keys are namespaced per challenge so one
// Store instance can serve every instantiated challenge, per spec.md §4.5
// "the storage database is shared across components".
type CachedStorageBackend struct {
	rt *cache.ReadThrough
}

// NewCachedStorageBackend wraps store behind a read-through cache sized by
// capacity/ttl, with optional snappy compression of cached/stored values.
func NewCachedStorageBackend(store *Store, capacity int, ttl time.Duration, compress bool) *CachedStorageBackend {
	return &CachedStorageBackend{rt: cache.NewReadThrough(store, capacity, ttl, compress)}
}

func namespacedKey(challengeID, key string) string {
	return challengeID + "/" + key
}

func (b *CachedStorageBackend) Get(challengeID, key string) ([]byte, bool, error) {
	return b.rt.Get(namespacedKey(challengeID, key))
}

// ProposeWrite writes value through the cache to the backing Store and
// returns SHA-256(challenge_id || key || value) as the proposal id, the
// same convention InMemoryStorageBackend uses, per spec.md §4.2.
func (b *CachedStorageBackend) ProposeWrite(challengeID, key string, value []byte) ([32]byte, error) {
	if err := b.rt.Insert(namespacedKey(challengeID, key), value); err != nil {
		return [32]byte{}, err
	}
	buf := append([]byte(challengeID), []byte(key)...)
	buf = append(buf, value...)
	return sha256.Sum256(buf), nil
}

func (b *CachedStorageBackend) Delete(challengeID, key string) error {
	return b.rt.Remove(namespacedKey(challengeID, key))
}

// Stats exposes the underlying cache's hit/miss/write counters.
func (b *CachedStorageBackend) Stats() *cache.Stats { return b.rt.Stats() }
