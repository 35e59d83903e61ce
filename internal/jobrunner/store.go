package jobrunner

import (
	"context"
	"sort"
	"sync"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
)

// Store persists job snapshots keyed by task ID. The runner is the only
// writer for any given task; a store implementation does not need to
// arbitrate concurrent writers to the same key, only to different keys.
//
// Production uses the Redis-backed implementation; tests and single-node
// development use MemoryStore.
type Store interface {
	// Create persists a new job. Fails with shared.ErrAlreadyExists if the
	// task ID is taken.
	Create(ctx context.Context, job *Job) error

	// Save overwrites the stored snapshot for the job's task ID.
	Save(ctx context.Context, job *Job) error

	// Get returns a snapshot or shared.ErrJobNotFound.
	Get(ctx context.Context, taskID string) (*Job, error)
}

// MemoryStore is an in-process Store for tests and development.
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]*Job)}
}

// Create implements Store.
func (s *MemoryStore) Create(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[job.TaskID]; ok {
		return shared.ErrAlreadyExists
	}
	s.jobs[job.TaskID] = job.Clone()
	return nil
}

// Save implements Store.
func (s *MemoryStore) Save(_ context.Context, job *Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.TaskID] = job.Clone()
	return nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, taskID string) (*Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[taskID]
	if !ok {
		return nil, shared.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List returns all stored jobs ordered by creation time, newest first.
// Used by development tooling only.
func (s *MemoryStore) List() []*Job {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j.Clone())
	}
	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}
