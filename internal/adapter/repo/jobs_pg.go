package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on PostgreSQL.
type JobRepositoryPG struct {
	db  infra.SQLExecutor
	now func() time.Time
}

// NewJobRepository creates a job repository backed by PostgreSQL.
func NewJobRepository(db infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{db: db, now: time.Now}
}

// Create inserts a new job record.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return err
	}
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, sqlinline.QInsertCreativeJob,
		job.ID,
		job.OwnerID,
		string(job.Status),
		job.Progress,
		job.Attempts,
		job.MaxAttempts,
		payload,
		result,
		job.Error,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: insert job: %w", err)
	}
	return nil
}

// Get fetches a job by its identifier.
func (r *JobRepositoryPG) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QSelectCreativeJob, jobID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

// Claim moves a pending job to processing in a single conditional update.
func (r *JobRepositoryPG) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := scanJob(r.db.QueryRow(ctx, sqlinline.QClaimCreativeJob, jobID, r.now().UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		if exists, existsErr := r.exists(ctx, jobID); existsErr == nil && !exists {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrJobNotClaimable
	}
	return job, err
}

// Update persists the mutable fields of a non-terminal job.
func (r *JobRepositoryPG) Update(ctx context.Context, job *domain.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, sqlinline.QUpdateCreativeJob,
		job.ID,
		string(job.Status),
		job.Progress,
		job.Attempts,
		result,
		job.Error,
		job.UpdatedAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("repo: update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, err := r.exists(ctx, job.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrJobTerminal
	}
	return nil
}

// ListByStatus returns jobs in status last updated before the given time.
func (r *JobRepositoryPG) ListByStatus(ctx context.Context, status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListCreativeJobsByStatus, string(status), updatedBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list jobs: %w", err)
	}
	return collectJobs(rows)
}

// ListTerminalBefore returns finished jobs older than cutoff.
func (r *JobRepositoryPG) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	rows, err := r.db.Query(ctx, sqlinline.QListTerminalCreativeJobsBefore, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("repo: list terminal jobs: %w", err)
	}
	return collectJobs(rows)
}

// DeleteTerminal removes a completed or failed job.
func (r *JobRepositoryPG) DeleteTerminal(ctx context.Context, jobID string) (bool, error) {
	tag, err := r.db.Exec(ctx, sqlinline.QDeleteTerminalCreativeJob, jobID)
	if err != nil {
		return false, fmt.Errorf("repo: delete job: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *JobRepositoryPG) exists(ctx context.Context, jobID string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx, sqlinline.QJobExists, jobID).Scan(&exists); err != nil {
		return false, fmt.Errorf("repo: job exists: %w", err)
	}
	return exists, nil
}

func scanJob(row scanner) (*domain.Job, error) {
	var (
		job     domain.Job
		status  string
		payload []byte
		result  []byte
	)
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&status,
		&job.Progress,
		&job.Attempts,
		&job.MaxAttempts,
		&payload,
		&result,
		&job.Error,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.StartedAt,
		&job.CompletedAt,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	if err := decodeJSONColumns(&job, payload, result); err != nil {
		return nil, err
	}
	return &job, nil
}

func collectJobs(rows pgx.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)

// EnsureSchema creates the service tables when they are missing.
func EnsureSchema(ctx context.Context, db infra.SQLExecutor) error {
	if _, err := db.Exec(ctx, sqlinline.QEnsureCreativeSchema); err != nil {
		return fmt.Errorf("repo: ensure schema: %w", err)
	}
	return nil
}
