package internal

import (
	"context"
	"fmt"
	"sync"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// CounterStore persists running totals across restarts. Add increments; it
// never overwrites.
type CounterStore interface {
	Add(ctx context.Context, u UpstreamId, requests, cents int64) error
	Load(ctx context.Context) (Totals, error)
	Close()
}

type MemoryCounterStore struct {
	mu     sync.Mutex
	totals Totals
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{}
}

func (s *MemoryCounterStore) Add(_ context.Context, u UpstreamId, requests, cents int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[u] = s.totals[u].Add(Counter{Requests: requests, Cents: cents})
	return nil
}

func (s *MemoryCounterStore) Load(_ context.Context) (Totals, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals, nil
}

func (s *MemoryCounterStore) Close() {}

// OpenCounterStore connects the store selected by cfg.StoreDriver.
func OpenCounterStore(ctx context.Context, cfg Config) (CounterStore, error) {
	switch cfg.StoreDriver {
	case "", StoreMemory:
		return NewMemoryCounterStore(), nil
	case StorePostgres:
		return NewPgCounterStore(ctx, cfg.DatabaseURL)
	case StoreRedis:
		return NewRedisCounterStore(ctx, cfg.RedisAddr)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownStore, cfg.StoreDriver)
	}
}
