// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package rendercache is a content-addressed cache of finished renders.
//
// The cache is advisory. Store faults are logged and reported as misses, so a
// broken cache can slow exports down but never fail them.
package rendercache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Entry describes one cached render. Entries are immutable once written.
type Entry struct {
	Key          string    `json:"key"`
	InputHash    string    `json:"input_hash"`
	SettingsHash string    `json:"settings_hash"`
	OutputPath   string    `json:"output_path"`
	CreatedAt    time.Time `json:"created_at"`
	FileSize     int64     `json:"file_size"`
	Duration     float64   `json:"duration,omitempty"`
}

// Store is a key/value backend for entries.
type Store interface {
	// Get returns the entry for key. A missing key is (Entry{}, false, nil).
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	// Entries lists every stored entry, in no particular order.
	Entries(ctx context.Context) ([]Entry, error)
	Clear(ctx context.Context) error
	Close() error
}

// Stats summarises cache contents and effectiveness.
type Stats struct {
	Backend   string     `json:"backend"`
	Entries   int        `json:"entries"`
	TotalSize int64      `json:"total_size"`
	Hits      int64      `json:"hits"`
	Misses    int64      `json:"misses"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	Newest    *time.Time `json:"newest,omitempty"`
}

// HitRate returns hits/(hits+misses), or 0 before the first lookup.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Cache wraps a Store with hit/miss accounting and per-key de-duplication.
type Cache struct {
	store   Store
	backend string
	logger  zerolog.Logger
	verify  func(Entry) bool

	hits   atomic.Int64
	misses atomic.Int64
	group  singleflight.Group

	// leading holds keys whose render fn is still running; guarded by mu
	// together with group registration so leadership is known up front.
	mu      sync.Mutex
	leading map[string]struct{}
}

// Option configures a Cache.
type Option func(*Cache)

// WithVerifier installs a check run on every hit. Entries failing it are
// reported as misses (for example when the cached output file is gone).
func WithVerifier(fn func(Entry) bool) Option {
	return func(c *Cache) { c.verify = fn }
}

// WithBackendName labels the cache in Stats.
func WithBackendName(name string) Option {
	return func(c *Cache) { c.backend = name }
}

// New creates a cache over store.
func New(store Store, logger zerolog.Logger, opts ...Option) *Cache {
	c := &Cache{
		store:   store,
		backend: "custom",
		logger:  logger.With().Str("component", "rendercache").Logger(),
		leading: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get looks key up. Store faults count as misses.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool) {
	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache lookup failed, treating as miss")
		c.misses.Add(1)
		return Entry{}, false
	}
	if ok && c.verify != nil && !c.verify(entry) {
		c.logger.Debug().Str("key", key).Msg("Cached render no longer valid")
		ok = false
	}
	if !ok {
		c.misses.Add(1)
		return Entry{}, false
	}
	c.hits.Add(1)
	return entry, true
}

// Set stores entry under key. Store faults are logged and swallowed.
func (c *Cache) Set(ctx context.Context, key string, entry Entry) {
	entry.Key = key
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	if err := c.store.Set(ctx, entry); err != nil {
		c.logger.Warn().Err(err).Str("key", key).Msg("Cache write failed")
	}
}

// Do returns the cached entry for key, or runs fn once per key across all
// concurrent callers and caches its result. hit reports whether the entry
// came from the store rather than from fn. A caller whose ctx ends while
// waiting on another caller's fn returns ctx.Err(). The caller whose fn is
// running always waits for it, so render work never outlives its owner.
func (c *Cache) Do(ctx context.Context, key string, fn func(ctx context.Context) (Entry, error)) (entry Entry, hit bool, err error) {
	if e, ok := c.Get(ctx, key); ok {
		return e, true, nil
	}

	c.mu.Lock()
	_, following := c.leading[key]
	if !following {
		c.leading[key] = struct{}{}
	}
	ch := c.group.DoChan(key, func() (any, error) {
		defer c.land(key)
		e, err := fn(ctx)
		if err != nil {
			return Entry{}, err
		}
		c.Set(ctx, key, e)
		e.Key = key
		return e, nil
	})
	c.mu.Unlock()

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		if following {
			return Entry{}, false, ctx.Err()
		}
		res = <-ch
	}
	if res.Err != nil {
		return Entry{}, false, res.Err
	}
	if res.Shared {
		c.logger.Debug().Str("key", key).Msg("Joined in-flight render")
	}
	return res.Val.(Entry), false, nil
}

// land ends the flight for key. Forgetting it under mu keeps leading and
// the singleflight group in step for the next caller.
func (c *Cache) land(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.group.Forget(key)
	delete(c.leading, key)
}

// Stats reports counters and the contents of the store.
func (c *Cache) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		Backend: c.backend,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}

	entries, err := c.store.Entries(ctx)
	if err != nil {
		return st, err
	}
	st.Entries = len(entries)
	for _, e := range entries {
		st.TotalSize += e.FileSize
		created := e.CreatedAt
		if st.Oldest == nil || created.Before(*st.Oldest) {
			st.Oldest = &created
		}
		if st.Newest == nil || created.After(*st.Newest) {
			st.Newest = &created
		}
	}
	return st, nil
}

// Clear drops every entry and resets the counters.
func (c *Cache) Clear(ctx context.Context) error {
	if err := c.store.Clear(ctx); err != nil {
		return err
	}
	c.hits.Store(0)
	c.misses.Store(0)
	return nil
}

// Close releases the store.
func (c *Cache) Close() error {
	if c.store == nil {
		return nil
	}
	return c.store.Close()
}

// ErrUnknownBackend is returned by Open for unsupported backend names.
var ErrUnknownBackend = errors.New("unknown cache backend")
