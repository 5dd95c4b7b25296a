package tempstore

import (
	"context"
	"sync"
	"time"

	wzerrors "github.com/stevehiehn/formwizard/internal/errors"
)

// MemoryFactory keeps every collection in process memory. Suitable for tests
// and single-process deployments.
type MemoryFactory struct {
	opts options

	mu      sync.Mutex
	entries map[string]map[string]memoryEntry
}

type memoryEntry struct {
	meta   Metadata
	expire time.Time
	data   map[string]any
}

// NewMemoryFactory creates an empty in-memory store factory.
func NewMemoryFactory(opts ...Option) *MemoryFactory {
	return &MemoryFactory{
		opts:    buildOptions(opts),
		entries: map[string]map[string]memoryEntry{},
	}
}

// Get returns the store for collection.
func (f *MemoryFactory) Get(collection string) Store {
	return &memoryStore{factory: f, collection: collection}
}

// Len reports the number of live entries in collection.
func (f *MemoryFactory) Len(collection string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := f.opts.now()
	n := 0
	for _, e := range f.entries[collection] {
		if now.Before(e.expire) {
			n++
		}
	}
	return n
}

type memoryStore struct {
	factory    *MemoryFactory
	collection string
}

// lookup returns the live entry for key. Caller holds the factory lock.
func (s *memoryStore) lookup(key string) (memoryEntry, bool) {
	bucket := s.factory.entries[s.collection]
	e, ok := bucket[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.factory.opts.now().Before(e.expire) {
		delete(bucket, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *memoryStore) write(ctx context.Context, key string, value map[string]any) error {
	data, err := clone(value)
	if err != nil {
		return wzerrors.NewStoreError("set", key, err)
	}
	bucket, ok := s.factory.entries[s.collection]
	if !ok {
		bucket = map[string]memoryEntry{}
		s.factory.entries[s.collection] = bucket
	}
	now := s.factory.opts.now()
	bucket[key] = memoryEntry{
		meta:   Metadata{Owner: s.factory.opts.ownerFrom(ctx), Updated: now},
		expire: now.Add(s.factory.opts.expire),
		data:   data,
	}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (map[string]any, error) {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	value, err := clone(e.data)
	if err != nil {
		return nil, wzerrors.NewStoreError("get", key, err)
	}
	return value, nil
}

func (s *memoryStore) Set(ctx context.Context, key string, value map[string]any) error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	return s.write(ctx, key, value)
}

func (s *memoryStore) SetIfNotExists(ctx context.Context, key string, value map[string]any) (bool, error) {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	if _, ok := s.lookup(key); ok {
		return false, nil
	}
	if err := s.write(ctx, key, value); err != nil {
		return false, err
	}
	return true, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	delete(s.factory.entries[s.collection], key)
	return nil
}

func (s *memoryStore) Metadata(_ context.Context, key string) (*Metadata, error) {
	s.factory.mu.Lock()
	defer s.factory.mu.Unlock()
	e, ok := s.lookup(key)
	if !ok {
		return nil, nil
	}
	meta := e.meta
	return &meta, nil
}
