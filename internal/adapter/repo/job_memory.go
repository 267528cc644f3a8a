package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"snapcode/internal/domain"
)

// JobStoreMemory is an in-process domain.JobStore. It backs tests and the
// development mode that runs without DATABASE_URL; the API and worker must
// share one instance for jobs to flow.
type JobStoreMemory struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

// NewJobStoreMemory creates an empty in-memory job store.
func NewJobStoreMemory() *JobStoreMemory {
	return &JobStoreMemory{jobs: make(map[string]*domain.Job)}
}

func cloneJob(j *domain.Job) *domain.Job {
	cp := *j
	if j.Output != nil {
		out := *j.Output
		cp.Output = &out
	}
	return &cp
}

// Create inserts a new job record.
func (s *JobStoreMemory) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// Get fetches a job by ID.
func (s *JobStoreMemory) Get(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

// Claim leases the oldest eligible queued job.
func (s *JobStoreMemory) Claim(ctx context.Context, now time.Time, lease time.Duration) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var eligible []*domain.Job
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusQueued && !job.NextEligibleAt.After(now) {
			eligible = append(eligible, job)
		}
	}
	if len(eligible) == 0 {
		return nil, domain.ErrNoJobReady
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	job := eligible[0]
	job.Status = domain.JobStatusProcessing
	job.Stage = domain.StageGenerating
	job.LeaseExpiresAt = now.Add(lease)
	job.UpdatedAt = now
	return cloneJob(job), nil
}

// Requeue returns a leased job to the queue for a later retry.
func (s *JobStoreMemory) Requeue(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Generation != job.Generation || stored.Status.Terminal() {
		return domain.ErrStaleOwner
	}
	cp := cloneJob(job)
	cp.Status = domain.JobStatusQueued
	cp.Stage = domain.StageQueued
	cp.LeaseExpiresAt = time.Time{}
	s.jobs[job.ID] = cp
	return nil
}

// Finish writes a terminal state if the caller still owns the job.
func (s *JobStoreMemory) Finish(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if stored.Generation != job.Generation || stored.Status.Terminal() {
		return domain.ErrStaleOwner
	}
	s.jobs[job.ID] = cloneJob(job)
	return nil
}

// SetStage records the in-flight pipeline stage.
func (s *JobStoreMemory) SetStage(ctx context.Context, id, stage string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return domain.ErrNotFound
	}
	if !job.Status.Terminal() {
		job.Stage = stage
	}
	return nil
}

// Cancel fails a non-terminal job and revokes any in-flight ownership.
func (s *JobStoreMemory) Cancel(ctx context.Context, id string, now time.Time) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status.Terminal() {
		return nil, domain.ErrAlreadyTerminal
	}
	job.Generation++
	job.Fail(domain.FailureCancelled, "cancelled by caller", now)
	return cloneJob(job), nil
}

// ReapExpiredLeases requeues processing jobs whose lease lapsed.
func (s *JobStoreMemory) ReapExpiredLeases(ctx context.Context, now time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reaped := 0
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusProcessing && job.LeaseExpiresAt.Before(now) {
			job.Generation++
			job.Status = domain.JobStatusQueued
			job.Stage = domain.StageQueued
			job.LeaseExpiresAt = time.Time{}
			job.UpdatedAt = now
			reaped++
		}
	}
	return reaped, nil
}

// ListExpired returns terminal jobs past their artifact expiry.
func (s *JobStoreMemory) ListExpired(ctx context.Context, now time.Time) ([]*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var expired []*domain.Job
	for _, job := range s.jobs {
		if job.Status.Terminal() && !job.ExpiresAt.IsZero() && job.ExpiresAt.Before(now) {
			expired = append(expired, cloneJob(job))
		}
	}
	return expired, nil
}

// Delete removes a job record.
func (s *JobStoreMemory) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	return nil
}

// QueueDepth counts queued jobs, for the metrics sampler.
func (s *JobStoreMemory) QueueDepth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	depth := 0
	for _, job := range s.jobs {
		if job.Status == domain.JobStatusQueued {
			depth++
		}
	}
	return depth, nil
}
