package jobs

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/adapter/repo"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/creative"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/notify"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/providers/image"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/queue"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/templates"
)

type hangingProvider struct{}

func (hangingProvider) Name() string     { return "premium" }
func (hangingProvider) Configured() bool { return true }
func (hangingProvider) Generate(ctx context.Context, _ image.Request) (image.Asset, error) {
	<-ctx.Done()
	return image.Asset{}, ctx.Err()
}

func newPipeline(t *testing.T, images creative.ImageGenerator, publisher notify.Publisher) (*Orchestrator, domain.JobRepository) {
	t.Helper()
	tpls, err := templates.New()
	if err != nil {
		t.Fatalf("templates.New returned error: %v", err)
	}
	store, err := storage.NewFileStore(t.TempDir(), "http://localhost:8080/static")
	if err != nil {
		t.Fatalf("NewFileStore returned error: %v", err)
	}
	brands := repo.NewMemoryBrandRepository(repo.DemoBrand)
	jobs := repo.NewMemoryJobRepository()
	processor := creative.New(tpls, brands, images, store)
	o := New(jobs, queue.NewMemory(), processor, publisher,
		WithCatalog(tpls, brands),
		WithObjectDeleter(store),
		WithConcurrency(2),
		WithSweepInterval(0),
		WithSleep(func(ctx context.Context, _ time.Duration) error { return ctx.Err() }),
	)
	return o, jobs
}

func TestPipelineSquareCompletes(t *testing.T) {
	events := &recorder{}
	o, jobs := newPipeline(t, nil, events)
	payload := domain.Payload{
		BrandID:    "demo",
		TemplateID: "promo-square",
		Formats:    []domain.Format{domain.FormatSquare},
		Content: map[string]any{
			"headline":   "Summer sale",
			"cta":        "Shop now",
			"price":      "49",
			"hero_image": "https://acme.test/hero.jpg",
		},
	}
	job := runUntilTerminal(t, o, jobs, func() string {
		id, err := o.Enqueue(context.Background(), "owner-1", payload)
		if err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
		return id
	})
	if job.Status != domain.JobStatusCompleted || job.Progress != 100 {
		t.Fatalf("job = %s at %d%%: %s", job.Status, job.Progress, job.Error)
	}
	if len(job.Result.Creatives) != 1 {
		t.Fatalf("creatives = %d, want 1", len(job.Result.Creatives))
	}
	c := job.Result.Creatives[0]
	if c.Format != domain.FormatSquare || c.Validation == nil || !c.Validation.Valid {
		t.Fatalf("unexpected creative %#v", c)
	}
	if !strings.HasPrefix(c.MarkupURL, "http://localhost:8080/static/creatives/"+job.ID+"/") {
		t.Fatalf("markup url = %q", c.MarkupURL)
	}
	types := events.types()
	if types[0] != notify.JobStarted || types[len(types)-1] != notify.JobCompleted {
		t.Fatalf("events = %v", types)
	}
}

func TestPipelineProviderTimeoutsFailAfterThreeAttempts(t *testing.T) {
	chain := image.NewChain([]image.Provider{hangingProvider{}}, image.WithTimeout(20*time.Millisecond), image.WithoutSynthetic())
	o, jobs := newPipeline(t, chain, nil)
	payload := domain.Payload{
		BrandID:        "demo",
		TemplateID:     "promo-square",
		Content:        map[string]any{"headline": "Trail shoes", "cta": "Buy"},
		GenerateImages: true,
		ImageDirectives: []domain.ImageDirective{
			{Slot: "hero_image", Prompt: "running shoes on a mountain trail"},
		},
	}
	job := runUntilTerminal(t, o, jobs, func() string {
		id, err := o.Enqueue(context.Background(), "owner-1", payload)
		if err != nil {
			t.Fatalf("Enqueue returned error: %v", err)
		}
		return id
	})
	if job.Status != domain.JobStatusFailed || job.Attempts != 3 {
		t.Fatalf("job = %s after %d attempts, want failed after 3", job.Status, job.Attempts)
	}
	if !strings.Contains(job.Error, "provider failure") {
		t.Fatalf("error %q does not mention the provider failure", job.Error)
	}
}
