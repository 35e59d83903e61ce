// Package jobrunner provides the asynchronous unit-of-work contract used
// by every long-running operation: analysis runs and data imports. A Job
// tracks one execution through a bounded state machine and exposes a
// snapshot a polling client can query by task ID.
package jobrunner

import (
	"time"

	"github.com/campus-insight/campus-insight-hub/internal/domain/shared"
)

// Status of a job. Transitions: pending -> processing -> {success, error}.
// Terminal states are write-once; nothing transitions out of them.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// Result references the outcome of a successful run. The artifact itself
// lives in the artifact store under ArtifactKey; the job only carries the
// reference, never the payload.
type Result struct {
	Records     int    `json:"records"`
	ArtifactKey string `json:"artifact_key,omitempty"`
	Summary     string `json:"summary,omitempty"`
}

// Job is the progress record for one asynchronous execution. It is owned
// exclusively by the single worker executing the task; readers only ever
// see snapshots.
type Job struct {
	TaskID    string    `json:"task_id"`
	Kind      string    `json:"kind"`
	Status    Status    `json:"status"`
	Current   int       `json:"current"`
	Total     int       `json:"total"`
	Message   string    `json:"message"`
	Result    *Result   `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsTerminal reports whether the job reached success or error.
func (j *Job) IsTerminal() bool {
	return j.Status == StatusSuccess || j.Status == StatusError
}

// markProcessing applies a progress update. The caller guarantees it runs
// on the owning worker.
func (j *Job) markProcessing(current, total int, message string, now time.Time) error {
	if j.IsTerminal() {
		return shared.ErrJobTerminal
	}
	j.Status = StatusProcessing
	j.Current = current
	j.Total = total
	j.Message = message
	j.UpdatedAt = now
	return nil
}

// markSuccess transitions to the terminal success state.
func (j *Job) markSuccess(result *Result, now time.Time) error {
	if j.IsTerminal() {
		return shared.ErrJobTerminal
	}
	j.Status = StatusSuccess
	j.Result = result
	j.Current = j.Total
	j.Message = "completed"
	j.UpdatedAt = now
	return nil
}

// markError transitions to the terminal error state.
func (j *Job) markError(message string, now time.Time) error {
	if j.IsTerminal() {
		return shared.ErrJobTerminal
	}
	j.Status = StatusError
	j.Error = message
	j.Message = "failed"
	j.UpdatedAt = now
	return nil
}

// Clone returns a deep copy safe to hand to readers.
func (j *Job) Clone() *Job {
	c := *j
	if j.Result != nil {
		r := *j.Result
		c.Result = &r
	}
	return &c
}
