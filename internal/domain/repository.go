package domain

import (
	"context"
	"time"
)

// JobRepository defines durable persistence for job records.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, jobID string) (*Job, error)
	// Claim atomically moves a pending job to processing. It returns
	// ErrJobNotClaimable when the job is in any other state.
	Claim(ctx context.Context, jobID string) (*Job, error)
	// Update replaces the mutable fields of a pending or processing job. It
	// returns ErrJobTerminal once the job is completed or failed.
	Update(ctx context.Context, job *Job) error
	ListByStatus(ctx context.Context, status JobStatus, updatedBefore time.Time, limit int) ([]Job, error)
	ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]Job, error)
	// DeleteTerminal removes the job only when it is completed or failed.
	DeleteTerminal(ctx context.Context, jobID string) (bool, error)
}

// BrandRepository resolves brand identity records.
type BrandRepository interface {
	GetBrand(ctx context.Context, brandID string) (*Brand, error)
}
