package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// ErrNotFound is returned when no job exists under the given id
var ErrNotFound = errors.New("job not found")

// ErrExists is returned by Create when the id is already taken
var ErrExists = errors.New("job already exists")

// JobTTL is how long a job record is kept after its last write
const JobTTL = 24 * time.Hour

// UpdateFunc mutates a job in place. Returning an error aborts the write.
type UpdateFunc func(job *model.Job) error

// JobStore persists job records. Update is an atomic read-modify-write:
// concurrent updates to the same job never lose each other's changes.
type JobStore interface {
	Create(ctx context.Context, job *model.Job) error
	Get(ctx context.Context, id string) (*model.Job, error)
	Update(ctx context.Context, id string, fn UpdateFunc) (*model.Job, error)
	List(ctx context.Context) ([]*model.Job, error)
	Close() error
}

func jobKey(id string) string {
	return fmt.Sprintf("job:%s", id)
}

// sortNewestFirst orders jobs by creation time, newest first
func sortNewestFirst(jobs []*model.Job) {
	sort.SliceStable(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
}
