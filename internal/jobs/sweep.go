package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// SweepReport counts what one sweep pass changed.
type SweepReport struct {
	Deleted  int
	Objects  int
	Requeued int
	// Reset counts processing jobs whose worker stopped refreshing them.
	Reset int
}

// RecoveryReport counts the jobs handed back to the queue at startup.
type RecoveryReport struct {
	Pending int
	Reset   int
}

func (o *Orchestrator) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(o.sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := o.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				o.logger.Error().Err(err).Msg("jobs: sweep failed")
				continue
			}
			if report.Deleted > 0 || report.Requeued > 0 || report.Reset > 0 {
				o.logger.Info().
					Int("deleted", report.Deleted).
					Int("objects", report.Objects).
					Int("requeued", report.Requeued).
					Int("reset", report.Reset).
					Msg("jobs: sweep finished")
			}
		}
	}
}

// Sweep deletes completed and failed jobs older than the retention window,
// along with their stored objects, re-queues pending jobs that have waited
// longer than staleAfter, and hands processing jobs not refreshed within
// staleAfter back to the queue. Pending and processing jobs are never
// deleted.
func (o *Orchestrator) Sweep(ctx context.Context) (SweepReport, error) {
	var report SweepReport
	now := o.now().UTC()

	expired, err := o.repo.ListTerminalBefore(ctx, now.Add(-o.retention), listBatch)
	if err != nil {
		return report, err
	}
	var errs []error
	for i := range expired {
		job := &expired[i]
		deleted, err := o.repo.DeleteTerminal(ctx, job.ID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if !deleted {
			continue
		}
		report.Deleted++
		report.Objects += o.deleteObjects(ctx, job)
	}

	stale, err := o.repo.ListByStatus(ctx, domain.JobStatusPending, now.Add(-o.staleAfter), listBatch)
	if err != nil {
		errs = append(errs, err)
	}
	for _, job := range stale {
		if err := o.queue.Push(ctx, job.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Requeued++
	}

	reset, err := o.resetAbandoned(ctx, now)
	errs = append(errs, err)
	for _, id := range reset {
		if err := o.queue.Push(ctx, id); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Reset++
	}
	return report, errors.Join(errs...)
}

// resetAbandoned moves processing jobs not updated within staleAfter back to
// pending and returns their ids. Live workers refresh their job on a
// heartbeat, so only jobs without a worker match.
func (o *Orchestrator) resetAbandoned(ctx context.Context, now time.Time) ([]string, error) {
	abandoned, err := o.repo.ListByStatus(ctx, domain.JobStatusProcessing, now.Add(-o.staleAfter), listBatch)
	if err != nil {
		return nil, err
	}
	var ids []string
	var errs []error
	for i := range abandoned {
		job := &abandoned[i]
		job.Status = domain.JobStatusPending
		job.UpdatedAt = now
		if err := o.repo.Update(ctx, job); err != nil {
			errs = append(errs, err)
			continue
		}
		ids = append(ids, job.ID)
	}
	return ids, errors.Join(errs...)
}

func (o *Orchestrator) deleteObjects(ctx context.Context, job *domain.Job) int {
	if o.objects == nil || job.Result == nil {
		return 0
	}
	removed := 0
	for _, id := range job.Result.ObjectIDs() {
		if err := o.objects.Delete(ctx, id); err != nil {
			o.logger.Warn().Err(err).Str("job_id", job.ID).Str("object_id", id).Msg("jobs: delete stored object failed")
			continue
		}
		removed++
	}
	return removed
}

// Recover re-queues every pending job and resets processing jobs that have
// not been touched within staleAfter, which a crashed worker left behind.
func (o *Orchestrator) Recover(ctx context.Context) (RecoveryReport, error) {
	var report RecoveryReport
	now := o.now().UTC()
	var errs []error

	reset, err := o.resetAbandoned(ctx, now)
	errs = append(errs, err)
	report.Reset = len(reset)

	pending, err := o.repo.ListByStatus(ctx, domain.JobStatusPending, now.Add(time.Nanosecond), listBatch)
	if err != nil {
		errs = append(errs, err)
	}
	for _, job := range pending {
		if err := o.queue.Push(ctx, job.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		report.Pending++
	}
	if report.Pending > 0 || report.Reset > 0 {
		o.logger.Info().Int("pending", report.Pending).Int("reset", report.Reset).Msg("jobs: recovered unfinished jobs")
	}
	return report, errors.Join(errs...)
}
