package jobstore

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a job ID is unknown or already evicted.
var ErrNotFound = errors.New("jobstore: job not found")

// State is the lifecycle state of a provisioning job.
// Transitions are strictly forward; no state is revisited.
type State string

const (
	StateResolving            State = "resolving"
	StateTransferring         State = "transferring"
	StateCompleted            State = "completed"
	StateFailed               State = "failed"
	StateCancelled            State = "cancelled"
	StateSkippedAlreadyExists State = "skipped_already_exists"
)

// IsTerminal reports whether the state is final.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateSkippedAlreadyExists:
		return true
	}
	return false
}

// Request captures the caller's provisioning parameters. Immutable once
// submitted.
type Request struct {
	Identifier          string
	VersionIdentifier   string
	AccessToken         string
	DestinationOverride string
}

// Job is a snapshot of one destination's provisioning attempt. All fields
// are copies; mutating a snapshot never affects the store.
type Job struct {
	ID               string
	Request          Request
	DestinationPath  string
	State            State
	BytesTransferred int64
	TotalBytes       int64
	StartedAt        time.Time
	FinishedAt       time.Time
	Err              error
}

// Store is a concurrency-safe container for in-flight and recently
// finished jobs. Terminal jobs are retained for a bounded window and then
// evicted; active jobs are never evicted.
type Store struct {
	retention time.Duration

	mu   sync.RWMutex
	jobs map[string]*Job
}

// New creates a Store that retains terminal jobs for the given duration.
func New(retention time.Duration) *Store {
	if retention <= 0 {
		retention = 15 * time.Minute
	}
	return &Store{
		retention: retention,
		jobs:      make(map[string]*Job),
	}
}

// Create registers a new job and returns its snapshot.
func (s *Store) Create(req Request, destPath string, state State) Job {
	job := &Job{
		ID:              uuid.NewString(),
		Request:         req,
		DestinationPath: destPath,
		State:           state,
		TotalBytes:      -1,
		StartedAt:       time.Now(),
	}
	if state.IsTerminal() {
		job.FinishedAt = job.StartedAt
	}

	s.mu.Lock()
	s.jobs[job.ID] = job
	s.mu.Unlock()

	s.sweep()
	return *job
}

// Get returns a snapshot of the job, or ErrNotFound.
func (s *Store) Get(id string) (Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, ErrNotFound
	}
	return *job, nil
}

// SetState advances a job's state. Terminal jobs are never modified;
// transitions only move forward.
func (s *Store) SetState(id string, state State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State.IsTerminal() {
		return
	}
	job.State = state
	if state.IsTerminal() {
		job.FinishedAt = time.Now()
	}
}

// SetProgress records transfer progress. Decreasing updates are dropped so
// observed progress is monotonic even across internal transfer restarts;
// updates after a terminal state are ignored.
func (s *Store) SetProgress(id string, transferred, total int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[id]
	if !ok || job.State.IsTerminal() {
		return
	}
	if transferred > job.BytesTransferred {
		job.BytesTransferred = transferred
	}
	if total > 0 {
		job.TotalBytes = total
	}
}

// Fail moves a job to the Failed state recording the cause.
func (s *Store) Fail(id string, cause error) {
	s.finish(id, StateFailed, cause)
}

// Cancel moves a job to the Cancelled state.
func (s *Store) Cancel(id string, cause error) {
	s.finish(id, StateCancelled, cause)
}

// Complete moves a job to the Completed state.
func (s *Store) Complete(id string) {
	s.finish(id, StateCompleted, nil)
}

func (s *Store) finish(id string, state State, cause error) {
	s.mu.Lock()
	job, ok := s.jobs[id]
	if !ok || job.State.IsTerminal() {
		s.mu.Unlock()
		return
	}
	job.State = state
	job.Err = cause
	job.FinishedAt = time.Now()
	s.mu.Unlock()

	s.sweep()
}

// sweep evicts terminal jobs older than the retention window.
func (s *Store) sweep() {
	cutoff := time.Now().Add(-s.retention)

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, job := range s.jobs {
		if job.State.IsTerminal() && !job.FinishedAt.IsZero() && job.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

// Len returns the number of retained jobs.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.jobs)
}
