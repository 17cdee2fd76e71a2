package repo

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// MemoryJobRepository keeps jobs in process memory. Jobs do not survive a
// restart; use the Postgres or SQLite repository for durability.
type MemoryJobRepository struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
	now  func() time.Time
}

// NewMemoryJobRepository returns an empty repository.
func NewMemoryJobRepository() *MemoryJobRepository {
	return &MemoryJobRepository{jobs: make(map[string]*domain.Job), now: time.Now}
}

func (r *MemoryJobRepository) Create(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("repo: job %s already exists", job.ID)
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobRepository) Get(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneJob(job), nil
}

func (r *MemoryJobRepository) Claim(_ context.Context, jobID string) (*domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if job.Status != domain.JobStatusPending {
		return nil, domain.ErrJobNotClaimable
	}
	job.Status = domain.JobStatusProcessing
	job.UpdatedAt = r.now().UTC()
	return cloneJob(job), nil
}

func (r *MemoryJobRepository) Update(_ context.Context, job *domain.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.jobs[job.ID]
	if !ok {
		return domain.ErrNotFound
	}
	if current.Status.Terminal() {
		return domain.ErrJobTerminal
	}
	r.jobs[job.ID] = cloneJob(job)
	return nil
}

func (r *MemoryJobRepository) ListByStatus(_ context.Context, status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.Job, error) {
	return r.list(limit, func(j *domain.Job) (time.Time, bool) {
		return j.UpdatedAt, j.Status == status && j.UpdatedAt.Before(updatedBefore)
	}), nil
}

func (r *MemoryJobRepository) ListTerminalBefore(_ context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	return r.list(limit, func(j *domain.Job) (time.Time, bool) {
		at := finishedAt(j)
		return at, j.Status.Terminal() && at.Before(cutoff)
	}), nil
}

func (r *MemoryJobRepository) DeleteTerminal(_ context.Context, jobID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok || !job.Status.Terminal() {
		return false, nil
	}
	delete(r.jobs, jobID)
	return true, nil
}

type listing struct {
	at  time.Time
	job domain.Job
}

func (r *MemoryJobRepository) list(limit int, match func(*domain.Job) (time.Time, bool)) []domain.Job {
	r.mu.Lock()
	var found []listing
	for _, j := range r.jobs {
		if at, ok := match(j); ok {
			found = append(found, listing{at: at, job: *cloneJob(j)})
		}
	}
	r.mu.Unlock()
	sort.Slice(found, func(a, b int) bool {
		if found[a].at.Equal(found[b].at) {
			return found[a].job.ID < found[b].job.ID
		}
		return found[a].at.Before(found[b].at)
	})
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	out := make([]domain.Job, len(found))
	for i := range found {
		out[i] = found[i].job
	}
	return out
}

func finishedAt(j *domain.Job) time.Time {
	if j.CompletedAt != nil {
		return *j.CompletedAt
	}
	return j.UpdatedAt
}

var _ domain.JobRepository = (*MemoryJobRepository)(nil)
