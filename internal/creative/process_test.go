package creative

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/capture"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/providers/image"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/templates"
)

type stubBrands map[string]*domain.Brand

func (s stubBrands) GetBrand(_ context.Context, id string) (*domain.Brand, error) {
	b, ok := s[id]
	if !ok {
		return nil, domain.ErrBrandNotFound
	}
	return b, nil
}

type memoryStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	fail    string
}

func (s *memoryStore) Upload(_ context.Context, data []byte, folder, contentType string) (storage.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != "" && strings.HasPrefix(folder, s.fail) {
		return storage.Object{}, domain.ErrStorageFailure
	}
	if s.objects == nil {
		s.objects = map[string][]byte{}
	}
	key := storage.NewKey(folder, contentType)
	s.objects[key] = data
	return storage.Object{ID: key, URL: "https://cdn.test/" + key}, nil
}

func (s *memoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, id)
	return nil
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

type stubPreviewer struct {
	mu   sync.Mutex
	fail map[domain.Format]bool
	docs map[domain.Format]string
}

func (s *stubPreviewer) Capture(_ context.Context, folder, document string, format domain.Format) (capture.Preview, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.docs == nil {
		s.docs = map[domain.Format]string{}
	}
	s.docs[format] = document
	if s.fail[format] {
		return capture.Preview{}, errors.Join(domain.ErrCaptureFailed, errors.New("timed out"))
	}
	id := folder + "/" + string(format) + ".png"
	return capture.Preview{ID: id, URL: "https://cdn.test/" + id}, nil
}

type stubImages struct {
	calls []image.Request
	err   error
}

func (s *stubImages) Generate(_ context.Context, req image.Request) (image.Asset, error) {
	s.calls = append(s.calls, req)
	if s.err != nil {
		return image.Asset{}, s.err
	}
	return image.Asset{Data: []byte("png"), MIME: "image/png", Provider: "stub"}, nil
}

var testBrand = &domain.Brand{
	ID:           "brand-1",
	Name:         "Acme",
	Website:      "https://acme.test",
	PrimaryColor: "#112233",
	LogoURL:      "https://acme.test/logo.png",
}

func newProcessor(t *testing.T, store *memoryStore, previewer Previewer, images ImageGenerator) *Processor {
	t.Helper()
	tpls, err := templates.New()
	if err != nil {
		t.Fatalf("templates.New returned error: %v", err)
	}
	opts := []Option{}
	if previewer != nil {
		opts = append(opts, WithPreviewer(previewer))
	}
	return New(tpls, stubBrands{"brand-1": testBrand}, images, store, opts...)
}

func completeContent() map[string]any {
	return map[string]any{
		"headline":    "Summer sale",
		"subheadline": "Everything must go",
		"cta":         "Shop now",
		"price":       "49",
		"features":    []any{"Free shipping", "30 day returns"},
		"hero_image":  "https://acme.test/hero.jpg",
	}
}

func TestProcessSquareWithoutImages(t *testing.T) {
	store := &memoryStore{}
	previewer := &stubPreviewer{}
	p := newProcessor(t, store, previewer, nil)
	job := &domain.Job{ID: "job-1", OwnerID: "owner-1", Payload: domain.Payload{
		BrandID:    "brand-1",
		TemplateID: "promo-square",
		Formats:    []domain.Format{domain.FormatSquare},
		Content:    completeContent(),
	}}
	var steps []int
	result, err := p.Process(context.Background(), job, func(n int) { steps = append(steps, n) })
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(result.Creatives) != 1 {
		t.Fatalf("creatives = %d, want 1", len(result.Creatives))
	}
	c := result.Creatives[0]
	if c.Format != domain.FormatSquare || c.Status != domain.CreativeOK {
		t.Fatalf("unexpected creative %#v", c)
	}
	if c.Validation == nil || !c.Validation.Valid {
		t.Fatalf("validation = %#v", c.Validation)
	}
	if c.PreviewURL == "" || c.MarkupURL == "" || !strings.HasPrefix(c.MarkupID, "creatives/job-1/") {
		t.Fatalf("missing stored references: %#v", c)
	}
	if !strings.Contains(c.HTML, `loading="lazy"`) || strings.Contains(c.HTML, "{{") {
		t.Fatalf("markup not optimized: %s", c.HTML)
	}
	if !strings.Contains(previewer.docs[domain.FormatSquare], "width: 1080px") && !strings.Contains(previewer.docs[domain.FormatSquare], "width:1080px") {
		t.Fatalf("preview document lacks format size: %s", previewer.docs[domain.FormatSquare])
	}
	want := []int{ProgressImages, ProgressResolve, ProgressRender, ProgressValidate, ProgressOptimize, ProgressCapture, ProgressPersist}
	if len(steps) != len(want) {
		t.Fatalf("progress = %v, want %v", steps, want)
	}
	for i := range want {
		if steps[i] != want[i] {
			t.Fatalf("progress = %v, want %v", steps, want)
		}
	}
}

func TestProcessFeaturesAsString(t *testing.T) {
	p := newProcessor(t, &memoryStore{}, nil, nil)
	content := completeContent()
	content["features"] = "Free shipping"
	job := &domain.Job{ID: "job-2", Payload: domain.Payload{BrandID: "brand-1", TemplateID: "promo-square", Content: content}}
	result, err := p.Process(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	html := result.Creatives[0].HTML
	if strings.Contains(html, "<li>") || strings.Contains(html, "features") {
		t.Fatalf("loop block should be omitted: %s", html)
	}
}

func TestProcessIsolatesCaptureFailure(t *testing.T) {
	store := &memoryStore{}
	previewer := &stubPreviewer{fail: map[domain.Format]bool{domain.FormatStory: true}}
	p := newProcessor(t, store, previewer, nil)
	job := &domain.Job{ID: "job-3", Payload: domain.Payload{
		BrandID:    "brand-1",
		TemplateID: "promo-square",
		Formats:    domain.AllFormats,
		Content:    completeContent(),
	}}
	result, err := p.Process(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	ok, failed := 0, 0
	for _, c := range result.Creatives {
		switch c.Status {
		case domain.CreativeOK:
			ok++
		case domain.CreativeCaptureFailed:
			failed++
			if c.Format != domain.FormatStory || c.PreviewURL != "" || c.MarkupURL == "" {
				t.Fatalf("unexpected failed entry %#v", c)
			}
		}
	}
	if ok != 2 || failed != 1 {
		t.Fatalf("ok=%d failed=%d, want 2/1", ok, failed)
	}
}

func TestProcessAllCapturesFailIsTransient(t *testing.T) {
	store := &memoryStore{}
	previewer := &stubPreviewer{fail: map[domain.Format]bool{domain.FormatSquare: true, domain.FormatLandscape: true}}
	p := newProcessor(t, store, previewer, nil)
	job := &domain.Job{ID: "job-4", Payload: domain.Payload{
		BrandID:    "brand-1",
		TemplateID: "promo-square",
		Formats:    []domain.Format{domain.FormatSquare, domain.FormatLandscape},
		Content:    completeContent(),
	}}
	_, err := p.Process(context.Background(), job, nil)
	if !errors.Is(err, domain.ErrCaptureFailed) || domain.IsFatal(err) {
		t.Fatalf("error = %v, want transient capture failure", err)
	}
}

func TestProcessMissingVariant(t *testing.T) {
	p := newProcessor(t, &memoryStore{}, nil, nil)
	job := &domain.Job{ID: "job-5", Payload: domain.Payload{
		BrandID:    "brand-1",
		TemplateID: "showcase-square",
		Formats:    []domain.Format{domain.FormatSquare, domain.FormatStory},
		Content:    map[string]any{"headline": "Lamp", "description": "**Warm** light"},
	}}
	result, err := p.Process(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if result.Creatives[0].Status != domain.CreativeOK {
		t.Fatalf("square = %#v", result.Creatives[0])
	}
	story := result.Creatives[1]
	if story.Status != domain.CreativeRenderFailed || !strings.Contains(story.Error, "template not found") || story.MarkupID != "" {
		t.Fatalf("story = %#v", story)
	}
	if !strings.Contains(result.Creatives[0].HTML, "<strong>Warm</strong>") {
		t.Fatalf("markdown description missing: %s", result.Creatives[0].HTML)
	}
}

func TestProcessFatalErrors(t *testing.T) {
	p := newProcessor(t, &memoryStore{}, nil, nil)
	tests := []struct {
		name    string
		payload domain.Payload
		want    error
	}{
		{name: "template", payload: domain.Payload{BrandID: "brand-1", TemplateID: "nope"}, want: domain.ErrTemplateNotFound},
		{name: "brand", payload: domain.Payload{BrandID: "nope", TemplateID: "promo-square"}, want: domain.ErrBrandNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Process(context.Background(), &domain.Job{ID: "j", Payload: tc.payload}, nil)
			if !errors.Is(err, tc.want) || !domain.IsFatal(err) {
				t.Fatalf("error = %v, want fatal %v", err, tc.want)
			}
		})
	}
}

func TestProcessAcquiresImages(t *testing.T) {
	store := &memoryStore{}
	images := &stubImages{}
	p := newProcessor(t, store, nil, images)
	content := completeContent()
	delete(content, "hero_image")
	job := &domain.Job{ID: "job-6", Payload: domain.Payload{
		BrandID:        "brand-1",
		TemplateID:     "promo-square",
		Content:        content,
		GenerateImages: true,
		ImageDirectives: []domain.ImageDirective{
			{Slot: "hero_image", Prompt: "a beach", Style: "photo"},
			{Slot: "background_image", Prompt: "ignored"},
		},
		Images: map[string]string{"background_image": "https://acme.test/bg.jpg"},
	}}
	result, err := p.Process(context.Background(), job, nil)
	if err != nil {
		t.Fatalf("Process returned error: %v", err)
	}
	if len(images.calls) != 1 || images.calls[0].Slot != "hero_image" || images.calls[0].Width != 1080 {
		t.Fatalf("generator calls = %#v", images.calls)
	}
	if result.Images["background_image"] != "https://acme.test/bg.jpg" {
		t.Fatalf("pre-uploaded image replaced: %v", result.Images)
	}
	heroID := result.ImageIDs["hero_image"]
	if !strings.HasPrefix(heroID, "images/job-6/") {
		t.Fatalf("hero image id = %q", heroID)
	}
	if !strings.Contains(result.Creatives[0].HTML, "https://cdn.test/"+heroID) {
		t.Fatal("generated image not referenced by markup")
	}
}

func TestProcessSizesImagesForFirstRequestedFormat(t *testing.T) {
	tests := []struct {
		name          string
		formats       []domain.Format
		width, height int
	}{
		{"base format by default", nil, 1080, 1080},
		{"first requested format", []domain.Format{domain.FormatLandscape, domain.FormatSquare}, 1200, 628},
		{"story only", []domain.Format{domain.FormatStory}, 1080, 1920},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			images := &stubImages{}
			p := newProcessor(t, &memoryStore{}, nil, images)
			content := completeContent()
			delete(content, "hero_image")
			job := &domain.Job{ID: "job-sized", Payload: domain.Payload{
				BrandID:         "brand-1",
				TemplateID:      "promo-square",
				Formats:         tc.formats,
				Content:         content,
				GenerateImages:  true,
				ImageDirectives: []domain.ImageDirective{{Slot: "hero_image", Prompt: "a beach"}},
			}}
			if _, err := p.Process(context.Background(), job, nil); err != nil {
				t.Fatalf("Process returned error: %v", err)
			}
			if len(images.calls) != 1 {
				t.Fatalf("generator calls = %d, want 1", len(images.calls))
			}
			if got := images.calls[0]; got.Width != tc.width || got.Height != tc.height {
				t.Fatalf("image size = %dx%d, want %dx%d", got.Width, got.Height, tc.width, tc.height)
			}
		})
	}
}

func TestProcessProviderFailureCleansUp(t *testing.T) {
	store := &memoryStore{}
	images := &stubImages{err: domain.ErrProviderFailure}
	p := newProcessor(t, store, nil, images)
	job := &domain.Job{ID: "job-7", Payload: domain.Payload{
		BrandID:         "brand-1",
		TemplateID:      "promo-square",
		GenerateImages:  true,
		ImageDirectives: []domain.ImageDirective{{Slot: "hero_image", Prompt: "x"}},
	}}
	_, err := p.Process(context.Background(), job, nil)
	if !errors.Is(err, domain.ErrProviderFailure) || domain.IsFatal(err) {
		t.Fatalf("error = %v, want transient provider failure", err)
	}

	failing := &memoryStore{fail: "creatives/"}
	p = newProcessor(t, failing, nil, &stubImages{})
	_, err = p.Process(context.Background(), job, nil)
	if !errors.Is(err, domain.ErrStorageFailure) {
		t.Fatalf("error = %v, want storage failure", err)
	}
	if failing.count() != 0 {
		t.Fatalf("objects left after failed attempt: %d", failing.count())
	}
}
