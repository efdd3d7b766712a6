// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/framecast/framecast/pkg/export"
)

const (
	jobsDir       = "jobs"
	archiveLock   = ".archive.lock"
	lockRetryWait = 20 * time.Millisecond
)

// LocalBackend keeps one JSON file per job under {WorkspaceRoot}/jobs. An
// advisory file lock lets a CLI inspect the archive while a server writes it.
type LocalBackend struct {
	dir  string
	lock *flock.Flock

	mu     sync.Mutex
	closed bool
}

// NewLocalBackend creates the jobs directory under root.
func NewLocalBackend(root string) (*LocalBackend, error) {
	dir := filepath.Join(root, jobsDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create archive dir %s: %w", dir, err)
	}
	return &LocalBackend{
		dir:  dir,
		lock: flock.New(filepath.Join(dir, archiveLock)),
	}, nil
}

func (l *LocalBackend) withLock(ctx context.Context, exclusive bool, fn func() error) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}

	var (
		ok  bool
		err error
	)
	if exclusive {
		ok, err = l.lock.TryLockContext(ctx, lockRetryWait)
	} else {
		ok, err = l.lock.TryRLockContext(ctx, lockRetryWait)
	}
	if err != nil {
		return fmt.Errorf("lock archive: %w", err)
	}
	if !ok {
		return errors.New("lock archive: not acquired")
	}
	defer func() { _ = l.lock.Unlock() }()

	return fn()
}

func (l *LocalBackend) path(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", NewInvalidInputError("id", fmt.Sprintf("unusable job id %q", id))
	}
	return filepath.Join(l.dir, id+".json"), nil
}

// Put writes the snapshot, replacing any earlier one.
func (l *LocalBackend) Put(ctx context.Context, job export.Job) error {
	p, err := l.path(job.ID)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(job, "", "  ")
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	return l.withLock(ctx, true, func() error {
		tmp, err := os.CreateTemp(l.dir, job.ID+".*.tmp")
		if err != nil {
			return fmt.Errorf("write job %s: %w", job.ID, err)
		}
		if _, err := tmp.Write(raw); err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write job %s: %w", job.ID, err)
		}
		if err := tmp.Close(); err != nil {
			_ = os.Remove(tmp.Name())
			return fmt.Errorf("write job %s: %w", job.ID, err)
		}
		return os.Rename(tmp.Name(), p)
	})
}

// Get reads one snapshot.
func (l *LocalBackend) Get(ctx context.Context, id string) (export.Job, error) {
	p, err := l.path(id)
	if err != nil {
		return export.Job{}, err
	}

	var job export.Job
	err = l.withLock(ctx, false, func() error {
		raw, err := os.ReadFile(p)
		if errors.Is(err, os.ErrNotExist) {
			return NewNotFoundError(id)
		}
		if err != nil {
			return fmt.Errorf("read job %s: %w", id, err)
		}
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("decode job %s: %w", id, err)
		}
		return nil
	})
	return job, err
}

// List reads every snapshot and pages the matches. Unreadable files are
// skipped.
func (l *LocalBackend) List(ctx context.Context, opts ListOptions) (Page, error) {
	var jobs []export.Job
	err := l.withLock(ctx, false, func() error {
		entries, err := os.ReadDir(l.dir)
		if err != nil {
			return fmt.Errorf("read archive dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
				continue
			}
			raw, err := os.ReadFile(filepath.Join(l.dir, e.Name()))
			if err != nil {
				continue
			}
			var j export.Job
			if json.Unmarshal(raw, &j) != nil {
				continue
			}
			jobs = append(jobs, j)
		}
		return nil
	})
	if err != nil {
		return Page{}, err
	}
	return paginate(jobs, opts)
}

// Close marks the backend closed. Later calls return ErrClosed.
func (l *LocalBackend) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	return l.lock.Close()
}
