// Package cached wraps a memory.KV with a ristretto read-through cache.
//
// Conversation logs are read on every BuildContext and every Append, so hot
// conversations are served from process memory. Writes go to the backend first
// and then refresh the cache; a failed write evicts the key.
package cached

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"

	"github.com/becomeliminal/nim-memory/memory"
)

// Store caches Get results of an underlying memory.KV.
type Store struct {
	backend memory.KV
	cache   *ristretto.Cache
}

var _ memory.KV = (*Store)(nil)

// Config sizes the cache.
type Config struct {
	// MaxCost is the total byte budget of cached values.
	// Default: 64 MiB
	MaxCost int64

	// NumCounters should be about 10x the expected number of cached keys.
	// Default: 100000
	NumCounters int64
}

// New wraps backend with a cache.
func New(backend memory.KV, cfg Config) (*Store, error) {
	if cfg.MaxCost <= 0 {
		cfg.MaxCost = 64 << 20
	}
	if cfg.NumCounters <= 0 {
		cfg.NumCounters = 100_000
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &Store{backend: backend, cache: cache}, nil
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := s.cache.Get(key); ok {
		if b, ok := v.([]byte); ok {
			return append([]byte(nil), b...), nil
		}
	}
	value, err := s.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if value != nil {
		s.put(key, value)
	}
	return value, nil
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	if err := s.backend.Set(ctx, key, value); err != nil {
		s.cache.Del(key)
		return err
	}
	s.put(key, value)
	return nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.cache.Del(key)
	return s.backend.Delete(ctx, key)
}

// Keys always asks the backend; listing is rare and must see every key.
func (s *Store) Keys(ctx context.Context, prefix string) ([]string, error) {
	return s.backend.Keys(ctx, prefix)
}

func (s *Store) Close() error {
	s.cache.Close()
	return s.backend.Close()
}

func (s *Store) put(key string, value []byte) {
	b := append([]byte(nil), value...)
	// A rejected Set must not leave a stale older value behind.
	s.cache.Del(key)
	s.cache.Set(key, b, int64(len(b))+int64(len(key)))
	// Make the value visible to the next Get; ristretto applies sets asynchronously.
	s.cache.Wait()
}
