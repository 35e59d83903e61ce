package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
	"github.com/campus-insight/campus-insight-hub/internal/jobrunner"
)

// ══════════════════════════════════════════════════════════════════════════════
// JOB STORE
// ══════════════════════════════════════════════════════════════════════════════

// JobStore implements jobrunner.Store on Redis. Each job is one JSON
// snapshot under a task key; the runner owns all writes for a task, so
// plain SET suffices after the initial SETNX claim.
type JobStore struct {
	cache *Cache
	ttl   time.Duration
}

// NewJobStore creates a job store over an existing cache connection.
func NewJobStore(cache *Cache) *JobStore {
	return &JobStore{cache: cache, ttl: TTLJobSnapshot}
}

func jobKey(taskID string) string {
	return PrefixTask + taskID
}

// Create persists a new job, claiming the task ID with SETNX.
func (s *JobStore) Create(ctx context.Context, job *jobrunner.Job) error {
	ok, err := s.cache.setNX(ctx, jobKey(job.TaskID), job, s.ttl)
	if err != nil {
		return fmt.Errorf("failed to create job %s: %w", job.TaskID, err)
	}
	if !ok {
		return shared.ErrAlreadyExists
	}
	return nil
}

// Save overwrites the stored snapshot for the job's task ID. The TTL is
// refreshed on every write so a job expires relative to its last update.
func (s *JobStore) Save(ctx context.Context, job *jobrunner.Job) error {
	if err := s.cache.set(ctx, jobKey(job.TaskID), job, s.ttl); err != nil {
		return fmt.Errorf("failed to save job %s: %w", job.TaskID, err)
	}
	return nil
}

// Get returns a snapshot or shared.ErrJobNotFound.
func (s *JobStore) Get(ctx context.Context, taskID string) (*jobrunner.Job, error) {
	var job jobrunner.Job
	if err := s.cache.get(ctx, jobKey(taskID), &job); err != nil {
		if errors.Is(err, ErrCacheMiss) {
			return nil, shared.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job %s: %w", taskID, err)
	}
	return &job, nil
}
