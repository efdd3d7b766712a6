package rendercache

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultMaxEntries bounds stores created without an explicit capacity.
const DefaultMaxEntries = 512

// MemoryStore keeps entries in a process-local LRU.
type MemoryStore struct {
	lru *lru.Cache[string, Entry]
}

// NewMemoryStore creates a store holding at most maxEntries entries; the
// least recently used entry is evicted first.
func NewMemoryStore(maxEntries int) (*MemoryStore, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	c, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		return nil, err
	}
	return &MemoryStore{lru: c}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (Entry, bool, error) {
	e, ok := m.lru.Get(key)
	return e, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, entry Entry) error {
	m.lru.Add(entry.Key, entry)
	return nil
}

func (m *MemoryStore) Entries(_ context.Context) ([]Entry, error) {
	return m.lru.Values(), nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.lru.Purge()
	return nil
}

func (m *MemoryStore) Close() error { return nil }
