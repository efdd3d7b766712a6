// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package rendercache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/gofrs/flock"
)

// IndexVersion is the on-disk index format written by DiskStore.
const IndexVersion = "1.1.0"

// indexConstraint accepts every index this build can read.
var indexConstraint = mustConstraint("^1.0.0")

func mustConstraint(c string) *semver.Constraints {
	cs, err := semver.NewConstraint(c)
	if err != nil {
		panic(err)
	}
	return cs
}

// ErrIndexVersion is returned when the index on disk was written by an
// incompatible build. The next write replaces it.
var ErrIndexVersion = errors.New("incompatible cache index version")

const (
	indexFile = "index.json"
	lockFile  = "index.lock"
	lockRetry = 10 * time.Millisecond
)

type diskIndex struct {
	Version string           `json:"version"`
	Entries map[string]Entry `json:"entries"`
}

// DiskStore persists the entry index as a JSON file under dir. An advisory
// file lock makes the index safe to share between processes.
type DiskStore struct {
	dir        string
	maxEntries int
	lock       *flock.Flock

	// flock is per process; mu serialises goroutines of this one
	mu sync.Mutex
}

// NewDiskStore creates dir if needed and returns a store that keeps at most
// maxEntries entries, evicting the oldest first.
func NewDiskStore(dir string, maxEntries int) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &DiskStore{
		dir:        dir,
		maxEntries: maxEntries,
		lock:       flock.New(filepath.Join(dir, lockFile)),
	}, nil
}

func (d *DiskStore) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = d.lock.TryLockContext(ctx, lockRetry)
	} else {
		ok, err = d.lock.TryRLockContext(ctx, lockRetry)
	}
	if err != nil {
		return fmt.Errorf("lock cache index: %w", err)
	}
	if !ok {
		return fmt.Errorf("lock cache index: not acquired")
	}
	defer func() { _ = d.lock.Unlock() }()

	return fn()
}

func (d *DiskStore) load() (diskIndex, error) {
	idx := diskIndex{Version: IndexVersion, Entries: map[string]Entry{}}

	raw, err := os.ReadFile(filepath.Join(d.dir, indexFile))
	if errors.Is(err, os.ErrNotExist) {
		return idx, nil
	}
	if err != nil {
		return idx, fmt.Errorf("read cache index: %w", err)
	}

	var onDisk diskIndex
	if err := json.Unmarshal(raw, &onDisk); err != nil {
		return idx, fmt.Errorf("decode cache index: %w", err)
	}

	v, err := semver.NewVersion(onDisk.Version)
	if err != nil || !indexConstraint.Check(v) {
		return idx, fmt.Errorf("%w: %q", ErrIndexVersion, onDisk.Version)
	}
	if onDisk.Entries != nil {
		idx.Entries = onDisk.Entries
	}
	return idx, nil
}

func (d *DiskStore) save(idx diskIndex) error {
	idx.Version = IndexVersion
	raw, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache index: %w", err)
	}

	tmp, err := os.CreateTemp(d.dir, indexFile+".*.tmp")
	if err != nil {
		return fmt.Errorf("write cache index: %w", err)
	}
	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache index: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache index: %w", err)
	}
	return os.Rename(tmp.Name(), filepath.Join(d.dir, indexFile))
}

func (d *DiskStore) Get(ctx context.Context, key string) (Entry, bool, error) {
	var (
		entry Entry
		found bool
	)
	err := d.withLock(ctx, false, func() error {
		idx, err := d.load()
		if err != nil {
			return err
		}
		entry, found = idx.Entries[key]
		return nil
	})
	return entry, found, err
}

func (d *DiskStore) Set(ctx context.Context, entry Entry) error {
	return d.withLock(ctx, true, func() error {
		idx, err := d.load()
		if err != nil && !errors.Is(err, ErrIndexVersion) {
			return err
		}
		idx.Entries[entry.Key] = entry
		d.evict(idx)
		return d.save(idx)
	})
}

// evict drops the oldest entries until the index fits maxEntries.
func (d *DiskStore) evict(idx diskIndex) {
	over := len(idx.Entries) - d.maxEntries
	if over <= 0 {
		return
	}
	all := make([]Entry, 0, len(idx.Entries))
	for _, e := range idx.Entries {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.Before(all[j].CreatedAt) })
	for _, e := range all[:over] {
		delete(idx.Entries, e.Key)
	}
}

func (d *DiskStore) Entries(ctx context.Context) ([]Entry, error) {
	var out []Entry
	err := d.withLock(ctx, false, func() error {
		idx, err := d.load()
		if err != nil {
			return err
		}
		out = make([]Entry, 0, len(idx.Entries))
		for _, e := range idx.Entries {
			out = append(out, e)
		}
		return nil
	})
	return out, err
}

func (d *DiskStore) Clear(ctx context.Context) error {
	return d.withLock(ctx, true, func() error {
		return d.save(diskIndex{Entries: map[string]Entry{}})
	})
}

func (d *DiskStore) Close() error { return nil }
