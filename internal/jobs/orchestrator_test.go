package jobs

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/adapter/repo"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/notify"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/queue"
)

type processFunc func(ctx context.Context, job *domain.Job, progress func(int)) (*domain.Result, error)

func (f processFunc) Process(ctx context.Context, job *domain.Job, progress func(int)) (*domain.Result, error) {
	return f(ctx, job, progress)
}

type recorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *recorder) Publish(_ context.Context, e notify.Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func squarePayload() domain.Payload {
	return domain.Payload{
		BrandID:    "demo",
		TemplateID: "promo-square",
		Formats:    []domain.Format{domain.FormatSquare},
		Content:    map[string]any{"headline": "Summer Sale", "cta": "Shop now"},
	}
}

// runUntilTerminal starts o, waits until jobID is completed or failed, then
// stops the pool and returns the final record.
func runUntilTerminal(t *testing.T, o *Orchestrator, jobs domain.JobRepository, enqueue func() string) *domain.Job {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()
	stop := func() {
		cancel()
		<-done
	}

	jobID := enqueue()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := jobs.Get(context.Background(), jobID)
		if err == nil && job.Status.Terminal() {
			stop()
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	stop()
	t.Fatalf("job %s did not reach a terminal state", jobID)
	return nil
}

func TestRetryBoundIsExactlyMaxAttempts(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	var calls int
	var mu sync.Mutex
	proc := processFunc(func(context.Context, *domain.Job, func(int)) (*domain.Result, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil, errors.New("storage upload timed out")
	})
	sleeper := &sleepRecorder{}
	o := New(store, queue.NewMemory(), proc, nil,
		WithConcurrency(1),
		WithMaxAttempts(3),
		WithBackoff(time.Second, time.Minute),
		WithSleep(sleeper.sleep),
		WithSweepInterval(0),
	)

	job := runUntilTerminal(t, o, store, func() string {
		id, err := o.Enqueue(context.Background(), "owner-1", squarePayload())
		if err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
		return id
	})

	if job.Status != domain.JobStatusFailed || job.Attempts != 3 {
		t.Fatalf("job = %s after %d attempts, want failed after 3", job.Status, job.Attempts)
	}
	if calls != 3 {
		t.Fatalf("processor ran %d times, want 3", calls)
	}
	if !strings.Contains(job.Error, "storage upload timed out") || job.CompletedAt == nil || job.Result != nil {
		t.Fatalf("unexpected failed job: %#v", job)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sleeper.delays) != len(want) || sleeper.delays[0] != want[0] || sleeper.delays[1] != want[1] {
		t.Fatalf("backoff delays = %v, want %v", sleeper.delays, want)
	}
}

func TestFatalErrorStopsAfterOneAttempt(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"template missing", domain.ErrTemplateNotFound},
		{"brand missing", domain.ErrBrandNotFound},
		{"explicit mark", domain.Fatal(errors.New("unsupported"))},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := repo.NewMemoryJobRepository()
			proc := processFunc(func(context.Context, *domain.Job, func(int)) (*domain.Result, error) {
				return nil, tc.err
			})
			events := &recorder{}
			o := New(store, queue.NewMemory(), proc, events, WithConcurrency(1), WithSweepInterval(0))
			job := runUntilTerminal(t, o, store, func() string {
				id, _ := o.Enqueue(context.Background(), "owner-1", squarePayload())
				return id
			})
			if job.Status != domain.JobStatusFailed || job.Attempts != 1 {
				t.Fatalf("job = %s after %d attempts, want failed after 1", job.Status, job.Attempts)
			}
			got := events.types()
			if len(got) != 2 || got[0] != notify.JobStarted || got[1] != notify.JobFailed {
				t.Fatalf("events = %v", got)
			}
		})
	}
}

func TestProgressIsMonotonicAndCompletesAtHundred(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	proc := processFunc(func(_ context.Context, _ *domain.Job, progress func(int)) (*domain.Result, error) {
		for _, n := range []int{10, 5, 35, 35, 150, 60} {
			progress(n)
		}
		return &domain.Result{Creatives: []domain.Creative{{Format: domain.FormatSquare, Status: domain.CreativeOK}}}, nil
	})
	events := &recorder{}
	o := New(store, queue.NewMemory(), proc, events, WithConcurrency(2), WithSweepInterval(0))
	job := runUntilTerminal(t, o, store, func() string {
		id, _ := o.Enqueue(context.Background(), "owner-1", squarePayload())
		return id
	})

	if job.Status != domain.JobStatusCompleted || job.Progress != 100 || job.Result == nil {
		t.Fatalf("unexpected job: %#v", job)
	}
	events.mu.Lock()
	defer events.mu.Unlock()
	var progress []int
	for _, e := range events.events {
		if e.OwnerID != "owner-1" || e.JobID != job.ID {
			t.Fatalf("event not tagged with job and owner: %#v", e)
		}
		if e.Type == notify.JobProgress {
			progress = append(progress, e.Progress)
		}
	}
	want := []int{10, 35, 99}
	if len(progress) != len(want) {
		t.Fatalf("progress events = %v, want %v", progress, want)
	}
	for i := range want {
		if progress[i] != want[i] {
			t.Fatalf("progress events = %v, want %v", progress, want)
		}
	}
	first, last := events.events[0], events.events[len(events.events)-1]
	if first.Type != notify.JobStarted || last.Type != notify.JobCompleted || last.Progress != 100 || last.Result == nil {
		t.Fatalf("first %#v last %#v", first, last)
	}
}

func TestStartedIsPublishedOnceAcrossRetries(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	var attempts int
	proc := processFunc(func(_ context.Context, job *domain.Job, _ func(int)) (*domain.Result, error) {
		attempts++
		if job.Attempts < 2 {
			panic("renderer exploded")
		}
		return &domain.Result{}, nil
	})
	events := &recorder{}
	o := New(store, queue.NewMemory(), proc, events,
		WithConcurrency(1),
		WithSweepInterval(0),
		WithSleep(func(context.Context, time.Duration) error { return nil }),
	)
	job := runUntilTerminal(t, o, store, func() string {
		id, _ := o.Enqueue(context.Background(), "owner-1", squarePayload())
		return id
	})
	if job.Status != domain.JobStatusCompleted || job.Attempts != 2 || attempts != 2 {
		t.Fatalf("job = %s attempts %d (ran %d)", job.Status, job.Attempts, attempts)
	}
	started := 0
	for _, typ := range events.types() {
		if typ == notify.JobStarted {
			started++
		}
	}
	if started != 1 {
		t.Fatalf("job:started published %d times", started)
	}
}

func TestEnqueueRejectsInvalidInput(t *testing.T) {
	brands := repo.NewMemoryBrandRepository(repo.DemoBrand)
	catalog := stubCatalog{"promo-square": {ID: "promo-square", Format: domain.FormatSquare}}

	tests := []struct {
		name   string
		owner  string
		mutate func(*domain.Payload)
		want   error
		field  string
	}{
		{name: "missing owner", owner: "", want: domain.ErrUnauthorized},
		{name: "missing brand id", mutate: func(p *domain.Payload) { p.BrandID = "" }, want: domain.ErrInvalidPayload, field: "brand_id"},
		{name: "missing template id", mutate: func(p *domain.Payload) { p.TemplateID = "" }, want: domain.ErrInvalidPayload, field: "template_id"},
		{name: "unknown format", mutate: func(p *domain.Payload) { p.Formats = []domain.Format{"banner"} }, want: domain.ErrInvalidPayload, field: "formats"},
		{name: "duplicate format", mutate: func(p *domain.Payload) {
			p.Formats = []domain.Format{domain.FormatSquare, domain.FormatSquare}
		}, want: domain.ErrInvalidPayload, field: "formats"},
		{name: "generation without directives", mutate: func(p *domain.Payload) { p.GenerateImages = true }, want: domain.ErrInvalidPayload, field: "image_directives"},
		{name: "directive without prompt", mutate: func(p *domain.Payload) {
			p.GenerateImages = true
			p.ImageDirectives = []domain.ImageDirective{{Slot: "hero_image"}}
		}, want: domain.ErrInvalidPayload, field: "image_directives"},
		{name: "relative image url", mutate: func(p *domain.Payload) { p.Images = map[string]string{"hero_image": "/tmp/a.png"} }, want: domain.ErrInvalidPayload, field: "images"},
		{name: "bad locale", mutate: func(p *domain.Payload) { p.Locale = "not a locale!" }, want: domain.ErrInvalidPayload, field: "locale"},
		{name: "unknown template", mutate: func(p *domain.Payload) { p.TemplateID = "nope" }, want: domain.ErrTemplateNotFound},
		{name: "unknown brand", mutate: func(p *domain.Payload) { p.BrandID = "ghost" }, want: domain.ErrBrandNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := repo.NewMemoryJobRepository()
			q := queue.NewMemory()
			o := New(store, q, nil, nil, WithCatalog(catalog, brands))
			payload := squarePayload()
			if tc.mutate != nil {
				tc.mutate(&payload)
			}
			owner := tc.owner
			if owner == "" && tc.want != domain.ErrUnauthorized {
				owner = "owner-1"
			}
			_, err := o.Enqueue(context.Background(), owner, payload)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Enqueue error = %v, want %v", err, tc.want)
			}
			if tc.field != "" {
				var verrs validation.Errors
				if !errors.As(err, &verrs) {
					t.Fatalf("error %v carries no field errors", err)
				}
				if _, ok := verrs[tc.field]; !ok {
					t.Fatalf("field errors %v missing %q", verrs, tc.field)
				}
			}
			if q.Len() != 0 {
				t.Fatalf("rejected payload reached the queue")
			}
			pending, _ := store.ListByStatus(context.Background(), domain.JobStatusPending, time.Now().Add(time.Hour), 0)
			if len(pending) != 0 {
				t.Fatalf("rejected payload created a job")
			}
		})
	}
}

type stubCatalog map[string]domain.Template

func (c stubCatalog) Get(id string) (domain.Template, error) {
	tpl, ok := c[id]
	if !ok {
		return domain.Template{}, domain.ErrTemplateNotFound
	}
	return tpl, nil
}

type failingQueue struct{ queue.Queue }

func (failingQueue) Push(context.Context, string) error { return errors.New("redis down") }

func TestEnqueueRecordsJobBeforeQueueing(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	o := New(store, failingQueue{}, nil, nil, WithIDGenerator(func() string { return "job-fixed" }))
	id, err := o.Enqueue(context.Background(), "owner-1", squarePayload())
	if err != nil || id != "job-fixed" {
		t.Fatalf("Enqueue = %q, %v", id, err)
	}
	job, err := o.GetStatus(context.Background(), id)
	if err != nil || job.Status != domain.JobStatusPending || job.MaxAttempts != defaultMaxAttempts {
		t.Fatalf("GetStatus = %#v, %v", job, err)
	}
}

func TestGetStatusForOwner(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	o := New(store, queue.NewMemory(), nil, nil)
	id, err := o.Enqueue(context.Background(), "alice", squarePayload())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	if _, err := o.GetStatusForOwner(context.Background(), "alice", id); err != nil {
		t.Fatalf("owner lookup returned error: %v", err)
	}
	if _, err := o.GetStatusForOwner(context.Background(), "mallory", id); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("foreign lookup error = %v, want ErrNotFound", err)
	}
	if _, err := o.GetStatus(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing lookup error = %v, want ErrNotFound", err)
	}
}

func TestShutdownReleasesInFlightJob(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	running := make(chan struct{})
	proc := processFunc(func(ctx context.Context, _ *domain.Job, _ func(int)) (*domain.Result, error) {
		close(running)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	o := New(store, queue.NewMemory(), proc, nil, WithConcurrency(1), WithSweepInterval(0))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	id, err := o.Enqueue(context.Background(), "owner-1", squarePayload())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	select {
	case <-running:
	case <-time.After(5 * time.Second):
		t.Fatal("processor never started")
	}
	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v", err)
	}
	job, _ := store.Get(context.Background(), id)
	if job.Status != domain.JobStatusPending || job.Attempts != 0 {
		t.Fatalf("released job = %s with %d attempts", job.Status, job.Attempts)
	}
}

type failFirstUpdate struct {
	domain.JobRepository
	mu     sync.Mutex
	failed bool
}

func (f *failFirstUpdate) Update(ctx context.Context, job *domain.Job) error {
	f.mu.Lock()
	fail := !f.failed
	f.failed = true
	f.mu.Unlock()
	if fail {
		return errors.New("connection reset")
	}
	return f.JobRepository.Update(ctx, job)
}

func TestAttemptStartFailureReleasesJob(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	flaky := &failFirstUpdate{JobRepository: store}
	ran := false
	proc := processFunc(func(context.Context, *domain.Job, func(int)) (*domain.Result, error) {
		ran = true
		return &domain.Result{}, nil
	})
	o := New(flaky, queue.NewMemory(), proc, nil, WithSweepInterval(0))
	id, err := o.Enqueue(context.Background(), "owner-1", squarePayload())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}

	o.execute(context.Background(), id)

	if ran {
		t.Fatal("processor ran although the attempt was never recorded")
	}
	job, _ := store.Get(context.Background(), id)
	if job.Status != domain.JobStatusPending || job.Attempts != 0 {
		t.Fatalf("job = %s with %d attempts, want pending with 0", job.Status, job.Attempts)
	}
}

func TestHeartbeatRefreshesClaimedJob(t *testing.T) {
	store := repo.NewMemoryJobRepository()
	release := make(chan struct{})
	proc := processFunc(func(ctx context.Context, _ *domain.Job, _ func(int)) (*domain.Result, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return &domain.Result{}, nil
	})
	o := New(store, queue.NewMemory(), proc, nil, WithSweepInterval(0), WithStaleAfter(30*time.Millisecond))
	id, err := o.Enqueue(context.Background(), "owner-1", squarePayload())
	if err != nil {
		t.Fatalf("Enqueue returned error: %v", err)
	}
	done := make(chan struct{})
	go func() {
		o.execute(context.Background(), id)
		close(done)
	}()

	var started time.Time
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, _ := store.Get(context.Background(), id)
		if job.Status == domain.JobStatusProcessing {
			if started.IsZero() {
				started = job.UpdatedAt
			} else if job.UpdatedAt.After(started) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.Get(context.Background(), id)
	if started.IsZero() || !job.UpdatedAt.After(started) {
		t.Fatalf("claimed job was not refreshed: started %v, now %v", started, job.UpdatedAt)
	}
	close(release)
	<-done
	job, _ = store.Get(context.Background(), id)
	if job.Status != domain.JobStatusCompleted {
		t.Fatalf("job status = %s, want completed", job.Status)
	}
}

func TestBackoffDoublesAndCaps(t *testing.T) {
	o := New(nil, nil, nil, nil, WithBackoff(2*time.Second, 10*time.Second))
	tests := map[int]time.Duration{1: 2 * time.Second, 2: 4 * time.Second, 3: 8 * time.Second, 4: 10 * time.Second, 9: 10 * time.Second}
	for attempt, want := range tests {
		if got := o.backoff(attempt); got != want {
			t.Fatalf("backoff(%d) = %v, want %v", attempt, got, want)
		}
	}
}
