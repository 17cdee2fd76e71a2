package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS creative_jobs (
  id TEXT PRIMARY KEY,
  owner_id TEXT NOT NULL,
  status TEXT NOT NULL,
  progress INTEGER NOT NULL DEFAULT 0,
  attempts INTEGER NOT NULL DEFAULT 0,
  max_attempts INTEGER NOT NULL DEFAULT 3,
  payload TEXT NOT NULL,
  result TEXT,
  error TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL,
  updated_at INTEGER NOT NULL,
  started_at INTEGER,
  completed_at INTEGER
);
CREATE INDEX IF NOT EXISTS creative_jobs_status_updated ON creative_jobs(status, updated_at);
`

const sqliteColumns = `id, owner_id, status, progress, attempts, max_attempts, payload, result, error,
  created_at, updated_at, started_at, completed_at`

// SQLiteJobRepository is a single-node durable job store.
type SQLiteJobRepository struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLiteJobRepository opens (or creates) the database at path and
// applies the schema.
func OpenSQLiteJobRepository(path string) (*SQLiteJobRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("repo: open sqlite: %w", err)
	}
	// sqlite allows a single writer; serialize through one connection.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("repo: apply sqlite schema: %w", err)
	}
	return &SQLiteJobRepository{db: db, now: time.Now}, nil
}

func (s *SQLiteJobRepository) Close() error { return s.db.Close() }

func (s *SQLiteJobRepository) Create(ctx context.Context, job *domain.Job) error {
	payload, err := encodePayload(job.Payload)
	if err != nil {
		return err
	}
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO creative_jobs (id, owner_id, status, progress, attempts, max_attempts, payload, result, error, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID,
		job.OwnerID,
		string(job.Status),
		job.Progress,
		job.Attempts,
		job.MaxAttempts,
		string(payload),
		nullableText(result),
		job.Error,
		job.CreatedAt.UnixNano(),
		job.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("repo: insert job: %w", err)
	}
	return nil
}

func (s *SQLiteJobRepository) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteColumns+` FROM creative_jobs WHERE id = ?`, jobID)
	job, err := scanSQLiteJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return job, err
}

func (s *SQLiteJobRepository) Claim(ctx context.Context, jobID string) (*domain.Job, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE creative_jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(domain.JobStatusProcessing), s.now().UTC().UnixNano(), jobID, string(domain.JobStatusPending),
	)
	if err != nil {
		return nil, fmt.Errorf("repo: claim job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		if _, err := s.Get(ctx, jobID); err != nil {
			return nil, err
		}
		return nil, domain.ErrJobNotClaimable
	}
	return s.Get(ctx, jobID)
}

func (s *SQLiteJobRepository) Update(ctx context.Context, job *domain.Job) error {
	result, err := encodeResult(job.Result)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE creative_jobs
         SET status = ?, progress = ?, attempts = ?, result = ?, error = ?, updated_at = ?, started_at = ?, completed_at = ?
         WHERE id = ? AND status IN ('pending', 'processing')`,
		string(job.Status),
		job.Progress,
		job.Attempts,
		nullableText(result),
		job.Error,
		job.UpdatedAt.UnixNano(),
		nullableTime(job.StartedAt),
		nullableTime(job.CompletedAt),
		job.ID,
	)
	if err != nil {
		return fmt.Errorf("repo: update job: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.Get(ctx, job.ID); err != nil {
			return err
		}
		return domain.ErrJobTerminal
	}
	return nil
}

func (s *SQLiteJobRepository) ListByStatus(ctx context.Context, status domain.JobStatus, updatedBefore time.Time, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM creative_jobs WHERE status = ? AND updated_at < ? ORDER BY updated_at ASC LIMIT ?`,
		string(status), updatedBefore.UnixNano(), sqliteLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("repo: list jobs: %w", err)
	}
	return collectSQLiteJobs(rows)
}

func (s *SQLiteJobRepository) ListTerminalBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Job, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteColumns+` FROM creative_jobs
         WHERE status IN ('completed', 'failed') AND coalesce(completed_at, updated_at) < ?
         ORDER BY coalesce(completed_at, updated_at) ASC LIMIT ?`,
		cutoff.UnixNano(), sqliteLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("repo: list terminal jobs: %w", err)
	}
	return collectSQLiteJobs(rows)
}

func (s *SQLiteJobRepository) DeleteTerminal(ctx context.Context, jobID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM creative_jobs WHERE id = ? AND status IN ('completed', 'failed')`, jobID)
	if err != nil {
		return false, fmt.Errorf("repo: delete job: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanSQLiteJob(row scanner) (*domain.Job, error) {
	var (
		job                  domain.Job
		status, payload      string
		result               sql.NullString
		createdNs, updatedNs int64
		startedNs, doneNs    sql.NullInt64
	)
	if err := row.Scan(
		&job.ID, &job.OwnerID, &status, &job.Progress, &job.Attempts, &job.MaxAttempts,
		&payload, &result, &job.Error, &createdNs, &updatedNs, &startedNs, &doneNs,
	); err != nil {
		return nil, err
	}
	job.Status = domain.JobStatus(status)
	job.CreatedAt = time.Unix(0, createdNs).UTC()
	job.UpdatedAt = time.Unix(0, updatedNs).UTC()
	job.StartedAt = timeFromNullable(startedNs)
	job.CompletedAt = timeFromNullable(doneNs)
	if err := decodeJSONColumns(&job, []byte(payload), []byte(result.String)); err != nil {
		return nil, err
	}
	return &job, nil
}

func collectSQLiteJobs(rows *sql.Rows) ([]domain.Job, error) {
	defer rows.Close()
	var out []domain.Job
	for rows.Next() {
		job, err := scanSQLiteJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

func nullableText(b []byte) any {
	if b == nil {
		return nil
	}
	return string(b)
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func timeFromNullable(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(0, v.Int64).UTC()
	return &t
}

func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

var _ domain.JobRepository = (*SQLiteJobRepository)(nil)
