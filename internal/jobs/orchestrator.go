// Package jobs owns the creative job lifecycle: enqueue, a bounded worker
// pool, retries with exponential backoff, progress reporting and the
// retention sweep.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/notify"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/queue"
)

// Processor runs one attempt of a job. progress accepts values in (0, 100).
type Processor interface {
	Process(ctx context.Context, job *domain.Job, progress func(int)) (*domain.Result, error)
}

// TemplateCatalog answers whether a template id exists.
type TemplateCatalog interface {
	Get(id string) (domain.Template, error)
}

// ObjectDeleter removes stored objects referenced by swept jobs.
type ObjectDeleter interface {
	Delete(ctx context.Context, id string) error
}

const (
	defaultConcurrency   = 5
	defaultMaxAttempts   = 3
	defaultBackoffBase   = 2 * time.Second
	defaultBackoffMax    = time.Minute
	defaultRetention     = 24 * time.Hour
	defaultSweepInterval = 15 * time.Minute
	defaultStaleAfter    = 10 * time.Minute

	listBatch      = 100
	persistTimeout = 10 * time.Second
)

// Orchestrator schedules creative jobs onto a fixed pool of workers.
type Orchestrator struct {
	repo      domain.JobRepository
	queue     queue.Queue
	processor Processor
	publisher notify.Publisher

	templates TemplateCatalog
	brands    domain.BrandRepository
	objects   ObjectDeleter

	concurrency   int
	maxAttempts   int
	backoffBase   time.Duration
	backoffMax    time.Duration
	retention     time.Duration
	sweepInterval time.Duration
	staleAfter    time.Duration

	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
	sleep  func(ctx context.Context, d time.Duration) error
}

// Option customises an Orchestrator.
type Option func(*Orchestrator)

func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithMaxAttempts(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxAttempts = n
		}
	}
}

// WithBackoff sets the first retry delay and its cap. The delay doubles on
// every attempt.
func WithBackoff(base, max time.Duration) Option {
	return func(o *Orchestrator) {
		if base > 0 {
			o.backoffBase = base
		}
		if max > 0 {
			o.backoffMax = max
		}
	}
}

func WithRetention(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.retention = d
		}
	}
}

// WithSweepInterval sets how often the retention sweep runs. Zero or a
// negative value disables the background sweep.
func WithSweepInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.sweepInterval = d }
}

func WithStaleAfter(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.staleAfter = d
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

func WithIDGenerator(fn func() string) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.newID = fn
		}
	}
}

// WithSleep replaces the backoff wait. The function must return ctx.Err()
// when ctx ends first.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.sleep = fn
		}
	}
}

// WithCatalog enables template and brand existence checks at enqueue.
func WithCatalog(templates TemplateCatalog, brands domain.BrandRepository) Option {
	return func(o *Orchestrator) {
		o.templates = templates
		o.brands = brands
	}
}

func WithObjectDeleter(d ObjectDeleter) Option {
	return func(o *Orchestrator) { o.objects = d }
}

// New wires an Orchestrator. A nil publisher discards events.
func New(repo domain.JobRepository, q queue.Queue, processor Processor, publisher notify.Publisher, opts ...Option) *Orchestrator {
	if publisher == nil {
		publisher = notify.Discard{}
	}
	o := &Orchestrator{
		repo:          repo,
		queue:         q,
		processor:     processor,
		publisher:     publisher,
		concurrency:   defaultConcurrency,
		maxAttempts:   defaultMaxAttempts,
		backoffBase:   defaultBackoffBase,
		backoffMax:    defaultBackoffMax,
		retention:     defaultRetention,
		sweepInterval: defaultSweepInterval,
		staleAfter:    defaultStaleAfter,
		logger:        zerolog.New(io.Discard),
		now:           time.Now,
		newID:         uuid.NewString,
		sleep:         sleepContext,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Enqueue validates payload, records a pending job and hands its id to the
// queue. The job is durable once Enqueue returns an id, even if the queue
// push fails; recovery and the sweep re-queue it.
func (o *Orchestrator) Enqueue(ctx context.Context, ownerID string, payload domain.Payload) (string, error) {
	ownerID = strings.TrimSpace(ownerID)
	if ownerID == "" {
		return "", domain.ErrUnauthorized
	}
	if err := ValidatePayload(payload); err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrInvalidPayload, err)
	}
	if o.templates != nil {
		if _, err := o.templates.Get(payload.TemplateID); err != nil {
			return "", err
		}
	}
	if o.brands != nil {
		if _, err := o.brands.GetBrand(ctx, payload.BrandID); err != nil {
			if errors.Is(err, domain.ErrNotFound) && !errors.Is(err, domain.ErrBrandNotFound) {
				return "", fmt.Errorf("%w: %s", domain.ErrBrandNotFound, payload.BrandID)
			}
			return "", err
		}
	}

	now := o.now().UTC()
	job := &domain.Job{
		ID:          o.newID(),
		OwnerID:     ownerID,
		Payload:     payload,
		Status:      domain.JobStatusPending,
		MaxAttempts: o.maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := o.repo.Create(ctx, job); err != nil {
		return "", fmt.Errorf("jobs: record job: %w", err)
	}
	if err := o.queue.Push(ctx, job.ID); err != nil {
		o.logger.Error().Err(err).Str("job_id", job.ID).Msg("jobs: queue push failed, job left for recovery")
	}
	o.logger.Info().
		Str("job_id", job.ID).
		Str("owner_id", ownerID).
		Str("template_id", payload.TemplateID).
		Msg("jobs: enqueued")
	return job.ID, nil
}

// GetStatus returns the current job record.
func (o *Orchestrator) GetStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	return o.repo.Get(ctx, jobID)
}

// GetStatusForOwner returns the job only when ownerID owns it. Jobs of other
// owners are reported as not found.
func (o *Orchestrator) GetStatusForOwner(ctx context.Context, ownerID, jobID string) (*domain.Job, error) {
	job, err := o.repo.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.OwnerID != ownerID {
		return nil, domain.ErrNotFound
	}
	return job, nil
}

// Run recovers unfinished jobs, then processes the queue with the worker
// pool until ctx ends. It returns once every worker has stopped.
func (o *Orchestrator) Run(ctx context.Context) error {
	if _, err := o.Recover(ctx); err != nil {
		o.logger.Error().Err(err).Msg("jobs: recovery failed")
	}
	o.logger.Info().Int("concurrency", o.concurrency).Msg("jobs: workers started")

	var wg sync.WaitGroup
	if o.sweepInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.sweepLoop(ctx)
		}()
	}
	for i := 0; i < o.concurrency; i++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			o.work(ctx, worker)
		}(i)
	}
	wg.Wait()
	o.logger.Info().Msg("jobs: workers stopped")
	return ctx.Err()
}

func (o *Orchestrator) work(ctx context.Context, worker int) {
	for {
		jobID, err := o.queue.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, queue.ErrClosed) {
				return
			}
			o.logger.Error().Err(err).Int("worker", worker).Msg("jobs: queue pop failed")
			if o.sleep(ctx, time.Second) != nil {
				return
			}
			continue
		}
		o.execute(ctx, jobID)
	}
}

// execute claims jobID and drives it to a terminal state. The claiming
// worker owns the job for every attempt.
func (o *Orchestrator) execute(ctx context.Context, jobID string) {
	job, err := o.repo.Claim(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotClaimable) || errors.Is(err, domain.ErrNotFound) {
			o.logger.Debug().Err(err).Str("job_id", jobID).Msg("jobs: dropping unclaimable id")
			return
		}
		o.logger.Error().Err(err).Str("job_id", jobID).Msg("jobs: claim failed")
		return
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = o.maxAttempts
	}
	log := o.logger.With().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Logger()
	if job.Attempts == 0 {
		o.publish(ctx, job, notify.Event{Type: notify.JobStarted})
	}
	tracker := &progressTracker{o: o, ctx: ctx, job: job, current: job.Progress, log: log}
	stopHeartbeat := o.heartbeat(ctx, tracker)

	for {
		now := o.now().UTC()
		tracker.mu.Lock()
		job.Attempts++
		job.Status = domain.JobStatusProcessing
		job.Error = ""
		job.UpdatedAt = now
		if job.StartedAt == nil {
			job.StartedAt = &now
		}
		err := o.repo.Update(ctx, job)
		tracker.mu.Unlock()
		if err != nil {
			stopHeartbeat()
			log.Error().Err(err).Msg("jobs: persist attempt start failed")
			o.release(ctx, job, log)
			return
		}
		log.Info().Int("attempt", job.Attempts).Msg("jobs: attempt started")

		result, err := o.attempt(ctx, job, tracker.report)
		if err == nil {
			stopHeartbeat()
			o.complete(ctx, job, result, log)
			return
		}
		if ctx.Err() != nil {
			stopHeartbeat()
			o.release(ctx, job, log)
			return
		}
		if domain.IsFatal(err) || job.Attempts >= job.MaxAttempts {
			stopHeartbeat()
			o.fail(ctx, job, err, log)
			return
		}
		delay := o.backoff(job.Attempts)
		log.Warn().Err(err).
			Int("attempt", job.Attempts).
			Dur("backoff", delay).
			Msg("jobs: attempt failed, retrying")
		if o.sleep(ctx, delay) != nil {
			stopHeartbeat()
			o.release(ctx, job, log)
			return
		}
	}
}

// heartbeat refreshes the claimed job's updated_at while a worker holds it,
// so the sweep only resets processing jobs whose worker is gone. The
// returned func stops it and waits for the last write.
func (o *Orchestrator) heartbeat(ctx context.Context, t *progressTracker) func() {
	interval := o.staleAfter / 3
	if interval <= 0 {
		return func() {}
	}
	hctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-hctx.Done():
				return
			case <-ticker.C:
				t.touch()
			}
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			<-done
		})
	}
}

func (o *Orchestrator) attempt(ctx context.Context, job *domain.Job, progress func(int)) (result *domain.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("jobs: processor panic: %v", r)
		}
	}()
	snapshot := *job
	result, err = o.processor.Process(ctx, &snapshot, progress)
	if err == nil && result == nil {
		result = &domain.Result{}
	}
	return result, err
}

func (o *Orchestrator) complete(ctx context.Context, job *domain.Job, result *domain.Result, log zerolog.Logger) {
	now := o.now().UTC()
	job.Status = domain.JobStatusCompleted
	job.Progress = 100
	job.Result = result
	job.Error = ""
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := o.persistFinal(ctx, job); err != nil {
		log.Error().Err(err).Msg("jobs: persist completion failed")
		return
	}
	log.Info().Int("attempts", job.Attempts).Msg("jobs: completed")
	o.publish(ctx, job, notify.Event{Type: notify.JobCompleted, Progress: 100, Result: result})
}

func (o *Orchestrator) fail(ctx context.Context, job *domain.Job, cause error, log zerolog.Logger) {
	now := o.now().UTC()
	job.Status = domain.JobStatusFailed
	job.Result = nil
	job.Error = cause.Error()
	job.UpdatedAt = now
	job.CompletedAt = &now
	if err := o.persistFinal(ctx, job); err != nil {
		log.Error().Err(err).Msg("jobs: persist failure failed")
		return
	}
	log.Error().Err(cause).Int("attempts", job.Attempts).Bool("fatal", domain.IsFatal(cause)).Msg("jobs: failed")
	o.publish(ctx, job, notify.Event{Type: notify.JobFailed, Progress: job.Progress, Error: job.Error})
}

// release hands an interrupted job back to pending so the sweep or recovery
// picks it up. The interrupted attempt does not count against the limit.
func (o *Orchestrator) release(ctx context.Context, job *domain.Job, log zerolog.Logger) {
	job.Status = domain.JobStatusPending
	if job.Attempts > 0 {
		job.Attempts--
	}
	job.UpdatedAt = o.now().UTC()
	if err := o.persistFinal(ctx, job); err != nil {
		log.Error().Err(err).Msg("jobs: release failed, left for the sweep")
		return
	}
	log.Info().Msg("jobs: released to pending")
}

// persistFinal writes job even when ctx has been cancelled.
func (o *Orchestrator) persistFinal(ctx context.Context, job *domain.Job) error {
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()
	return o.repo.Update(pctx, job)
}

func (o *Orchestrator) backoff(attempt int) time.Duration {
	delay := o.backoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= o.backoffMax {
			return o.backoffMax
		}
	}
	if delay > o.backoffMax {
		return o.backoffMax
	}
	return delay
}

func (o *Orchestrator) publish(ctx context.Context, job *domain.Job, e notify.Event) {
	e.JobID = job.ID
	e.OwnerID = job.OwnerID
	if e.At.IsZero() {
		e.At = o.now().UTC()
	}
	if err := o.publisher.Publish(context.WithoutCancel(ctx), e); err != nil {
		o.logger.Warn().Err(err).Str("job_id", job.ID).Str("event", e.Type).Msg("jobs: publish failed")
	}
}

// progressTracker is the progress callback handed to the processor. Values
// are clamped to [current, 99]; only the completion path writes 100.
type progressTracker struct {
	o       *Orchestrator
	ctx     context.Context
	job     *domain.Job
	log     zerolog.Logger
	mu      sync.Mutex
	current int
}

func (t *progressTracker) report(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if n > 99 {
		n = 99
	}
	if n <= t.current {
		return
	}
	t.current = n
	t.job.Progress = n
	t.job.UpdatedAt = t.o.now().UTC()
	if err := t.o.repo.Update(t.ctx, t.job); err != nil {
		t.log.Warn().Err(err).Int("progress", n).Msg("jobs: persist progress failed")
	}
	t.o.publish(t.ctx, t.job, notify.Event{Type: notify.JobProgress, Progress: n})
}

func (t *progressTracker) touch() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.job.UpdatedAt = t.o.now().UTC()
	if err := t.o.repo.Update(t.ctx, t.job); err != nil {
		t.log.Warn().Err(err).Msg("jobs: heartbeat failed")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
