package cache

import (
	"time"

	"github.com/golang/snappy"
)

// Backend is the durable store a read-through cache sits in front of.
type Backend interface {
	Get(key string) ([]byte, bool, error)
	Put(key string, value []byte) error
	Delete(key string) error
}

// ReadThrough composes a Backend with a Cache: Get consults the cache then
// the backend and populates on miss; Insert writes through and caches;
// Remove invalidates then deletes, per spec.md §4.5.
type ReadThrough struct {
	cache    *Cache
	backend  Backend
	compress bool
}

// NewReadThrough builds a read-through cache. When compress is true, values
// are snappy-compressed before being written to the backend (mirroring
// goleveldb's own internal use of snappy) and decompressed transparently on read.
func NewReadThrough(backend Backend, capacity int, ttl time.Duration, compress bool) *ReadThrough {
	return &ReadThrough{cache: New(capacity, ttl), backend: backend, compress: compress}
}

func (r *ReadThrough) Get(key string) ([]byte, bool, error) {
	if v, ok := r.cache.Get(key); ok {
		return v, true, nil
	}
	raw, ok, err := r.backend.Get(key)
	if err != nil || !ok {
		return nil, ok, err
	}
	value := raw
	if r.compress {
		value, err = snappy.Decode(nil, raw)
		if err != nil {
			return nil, false, err
		}
	}
	r.cache.Insert(key, value)
	return value, true, nil
}

func (r *ReadThrough) Insert(key string, value []byte) error {
	toStore := value
	if r.compress {
		toStore = snappy.Encode(nil, value)
	}
	if err := r.backend.Put(key, toStore); err != nil {
		return err
	}
	r.cache.Insert(key, value)
	return nil
}

func (r *ReadThrough) Remove(key string) error {
	r.cache.Remove(key)
	return r.backend.Delete(key)
}

// Stats exposes the underlying cache's hit/miss/write counters.
func (r *ReadThrough) Stats() *Stats { return r.cache.Stats() }
