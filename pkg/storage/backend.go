package storage

import (
	"context"
	"sort"

	"github.com/framecast/framecast/pkg/export"
)

// DefaultListLimit is used when ListOptions.Limit is zero.
const DefaultListLimit = 50

// Backend stores job snapshots for inspection after a restart. A snapshot is
// replaced wholesale on every Put.
type Backend interface {
	Put(ctx context.Context, job export.Job) error
	Get(ctx context.Context, id string) (export.Job, error)
	List(ctx context.Context, opts ListOptions) (Page, error)
	Close() error
}

// ListOptions filters and pages List.
type ListOptions struct {
	UserID    string
	ProjectID string
	Status    export.Status
	Limit     int
	Cursor    string
}

func (o ListOptions) limit() int {
	if o.Limit <= 0 {
		return DefaultListLimit
	}
	return o.Limit
}

func (o ListOptions) match(j export.Job) bool {
	return (o.UserID == "" || j.UserID == o.UserID) &&
		(o.ProjectID == "" || j.ProjectID == o.ProjectID) &&
		(o.Status == "" || j.Status == o.Status)
}

// Page is one page of List results, newest first. NextCursor is empty on the
// last page.
type Page struct {
	Jobs       []export.Job `json:"jobs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// paginate sorts jobs newest first and cuts the page that follows cursor.
func paginate(jobs []export.Job, opts ListOptions) (Page, error) {
	cursor, err := DecodeCursor(opts.Cursor)
	if err != nil {
		return Page{}, err
	}

	sort.Slice(jobs, func(i, k int) bool {
		if !jobs[i].CreatedAt.Equal(jobs[k].CreatedAt) {
			return jobs[i].CreatedAt.After(jobs[k].CreatedAt)
		}
		return jobs[i].ID > jobs[k].ID
	})

	page := Page{Jobs: []export.Job{}}
	limit := opts.limit()
	for _, j := range jobs {
		if !opts.match(j) || !cursor.after(j.CreatedAt, j.ID) {
			continue
		}
		if len(page.Jobs) == limit {
			last := page.Jobs[len(page.Jobs)-1]
			page.NextCursor = EncodeCursor(&Cursor{LastJobID: last.ID, LastTime: last.CreatedAt.UnixNano()})
			break
		}
		page.Jobs = append(page.Jobs, j)
	}
	return page, nil
}
