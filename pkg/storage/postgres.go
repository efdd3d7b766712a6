// Copyright 2025 Framecast Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/framecast/framecast/pkg/export"
)

const schema = `
CREATE TABLE IF NOT EXISTS export_jobs (
    id          TEXT PRIMARY KEY,
    user_id     TEXT NOT NULL,
    project_id  TEXT NOT NULL,
    status      TEXT NOT NULL,
    created_ns  BIGINT NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    snapshot    JSONB NOT NULL
);
CREATE INDEX IF NOT EXISTS export_jobs_created_idx ON export_jobs (created_ns DESC, id DESC);
`

// PostgresBackend archives snapshots in the export_jobs table. created_ns
// keeps the nanosecond creation time so cursors compare exactly.
type PostgresBackend struct {
	pool   *pgxpool.Pool
	closed atomic.Bool
}

// NewPostgresBackend connects, pings and creates the table if needed.
func NewPostgresBackend(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create export_jobs: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

// Put upserts the snapshot.
func (p *PostgresBackend) Put(ctx context.Context, job export.Job) error {
	if p.closed.Load() {
		return ErrClosed
	}
	if job.ID == "" {
		return NewInvalidInputError("id", "job id is required")
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode job %s: %w", job.ID, err)
	}

	const q = `
INSERT INTO export_jobs (id, user_id, project_id, status, created_ns, updated_at, snapshot)
VALUES ($1, $2, $3, $4, $5, now(), $6)
ON CONFLICT (id) DO UPDATE
SET status = EXCLUDED.status, updated_at = now(), snapshot = EXCLUDED.snapshot;
`
	if _, err := p.pool.Exec(ctx, q, job.ID, job.UserID, job.ProjectID, string(job.Status), job.CreatedAt.UnixNano(), raw); err != nil {
		return fmt.Errorf("upsert job %s: %w", job.ID, err)
	}
	return nil
}

// Get reads one snapshot.
func (p *PostgresBackend) Get(ctx context.Context, id string) (export.Job, error) {
	if p.closed.Load() {
		return export.Job{}, ErrClosed
	}

	const q = `SELECT snapshot FROM export_jobs WHERE id = $1;`

	var raw []byte
	if err := p.pool.QueryRow(ctx, q, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return export.Job{}, NewNotFoundError(id)
		}
		return export.Job{}, fmt.Errorf("select job %s: %w", id, err)
	}

	var job export.Job
	if err := json.Unmarshal(raw, &job); err != nil {
		return export.Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

// List pages matching snapshots newest first.
func (p *PostgresBackend) List(ctx context.Context, opts ListOptions) (Page, error) {
	if p.closed.Load() {
		return Page{}, ErrClosed
	}
	cursor, err := DecodeCursor(opts.Cursor)
	if err != nil {
		return Page{}, err
	}

	q, args := listQuery(opts, cursor)
	rows, err := p.pool.Query(ctx, q, args...)
	if err != nil {
		return Page{}, fmt.Errorf("list jobs: %w", err)
	}
	raws, err := pgx.CollectRows(rows, pgx.RowTo[[]byte])
	if err != nil {
		return Page{}, fmt.Errorf("list jobs: %w", err)
	}

	page := Page{Jobs: make([]export.Job, 0, len(raws))}
	limit := opts.limit()
	for _, raw := range raws {
		if len(page.Jobs) == limit {
			last := page.Jobs[len(page.Jobs)-1]
			page.NextCursor = EncodeCursor(&Cursor{LastJobID: last.ID, LastTime: last.CreatedAt.UnixNano()})
			break
		}
		var j export.Job
		if err := json.Unmarshal(raw, &j); err != nil {
			return Page{}, fmt.Errorf("decode job: %w", err)
		}
		page.Jobs = append(page.Jobs, j)
	}
	return page, nil
}

// listQuery builds the filtered keyset query. It fetches one row more than
// the limit to detect a following page.
func listQuery(opts ListOptions, cursor *Cursor) (string, []any) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if opts.UserID != "" {
		add("user_id = $%d", opts.UserID)
	}
	if opts.ProjectID != "" {
		add("project_id = $%d", opts.ProjectID)
	}
	if opts.Status != "" {
		add("status = $%d", string(opts.Status))
	}
	if cursor != nil {
		args = append(args, cursor.LastTime, cursor.LastJobID)
		where = append(where, fmt.Sprintf("(created_ns, id) < ($%d, $%d)", len(args)-1, len(args)))
	}

	var b strings.Builder
	b.WriteString("SELECT snapshot FROM export_jobs")
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	args = append(args, opts.limit()+1)
	fmt.Fprintf(&b, " ORDER BY created_ns DESC, id DESC LIMIT $%d", len(args))
	return b.String(), args
}

// Close releases the pool.
func (p *PostgresBackend) Close() error {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}
	return nil
}
