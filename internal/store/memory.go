package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/StefaNNN772/Computer-Use-Video-Instructions/internal/model"
)

// MemoryStore keeps jobs in process memory. Used when neither Redis nor
// SQLite is configured, and in tests.
type MemoryStore struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*model.Job)}
}

func (s *MemoryStore) Create(_ context.Context, job *model.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[job.ID]; ok {
		return ErrExists
	}
	stored := job.Clone()
	stored.ID = strings.Clone(job.ID)
	s.jobs[stored.ID] = stored
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn UpdateFunc) (*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	job := current.Clone()
	if err := fn(job); err != nil {
		return nil, err
	}
	job.UpdatedAt = time.Now().UTC()
	// id may alias a request buffer; the stored record owns its key
	s.jobs[current.ID] = job
	return job.Clone(), nil
}

func (s *MemoryStore) List(_ context.Context) ([]*model.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	jobs := make([]*model.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.Clone())
	}
	sortNewestFirst(jobs)
	return jobs, nil
}

func (s *MemoryStore) Close() error {
	return nil
}
