// Package memory provides the in-memory job ledger. Job state is ephemeral
// by contract and lost on restart.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jmarchand/boamp-extractor/internal/extract"
)

// JobStore is a mutex-guarded job ledger. Writes replace the whole record
// under the lock, so concurrent readers never observe a partial update.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]extract.Job
}

// NewJobStore constructs a JobStore.
func NewJobStore() *JobStore {
	return &JobStore{jobs: make(map[string]extract.Job)}
}

// CreateJob stores a new job entry.
func (s *JobStore) CreateJob(_ context.Context, job extract.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.ID]; exists {
		return errors.New("job already exists")
	}
	s.jobs[job.ID] = job
	return nil
}

// GetJob fetches a copy of the job entry by id.
func (s *JobStore) GetJob(_ context.Context, jobID string) (extract.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return extract.Job{}, extract.ErrNotFound
	}
	return job, nil
}

// UpdateJobStatus sets the status and progress message for a job, stamping
// the started/finished times on the matching transitions.
func (s *JobStore) UpdateJobStatus(_ context.Context, jobID string, status extract.JobStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return extract.ErrNotFound
	}
	job.Status = status
	job.Message = message
	now := time.Now().UTC()
	if status == extract.JobStatusProcessing && job.Started == nil {
		job.Started = pointerTime(now)
	}
	if status.IsTerminal() && job.Finished == nil {
		job.Finished = pointerTime(now)
	}
	s.jobs[jobID] = job
	return nil
}

// SetJobTotals records the pre-filter record count and progress message.
func (s *JobStore) SetJobTotals(_ context.Context, jobID string, totalRecords int, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return extract.ErrNotFound
	}
	job.Results.TotalRecords = totalRecords
	job.Message = message
	s.jobs[jobID] = job
	return nil
}

// SetJobResults stores the final counts, distribution, and datasets.
func (s *JobStore) SetJobResults(_ context.Context, jobID string, results extract.JobResults) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return extract.ErrNotFound
	}
	job.Results = results
	s.jobs[jobID] = job
	return nil
}

func pointerTime(t time.Time) *time.Time {
	ts := t
	return &ts
}
