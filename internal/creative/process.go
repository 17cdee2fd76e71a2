// Package creative implements the per-job generation routine: image
// acquisition, variable resolution, then render, validate, optimize and
// capture for every requested format, and finally markup persistence.
package creative

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/capture"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/optimize"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/providers/image"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/render"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/resolver"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/validate"
)

// Progress checkpoints reported after each phase.
const (
	ProgressImages   = 10
	ProgressResolve  = 20
	ProgressRender   = 35
	ProgressValidate = 50
	ProgressOptimize = 60
	ProgressCapture  = 85
	ProgressPersist  = 95
)

// Templates resolves compiled layouts.
type Templates interface {
	Compiled(id string) (*render.Compiled, error)
	Lookup(format domain.Format, category string) (*render.Compiled, error)
}

// ImageGenerator produces one image per request.
type ImageGenerator interface {
	Generate(ctx context.Context, req image.Request) (image.Asset, error)
}

// Previewer screenshots a finished document.
type Previewer interface {
	Capture(ctx context.Context, folder, document string, format domain.Format) (capture.Preview, error)
}

// Processor runs the generation routine for one job.
type Processor struct {
	templates          Templates
	brands             domain.BrandRepository
	images             ImageGenerator
	store              storage.Store
	previewer          Previewer
	validator          *validate.Validator
	optimizer          *optimize.Optimizer
	defaultLocale      string
	captureConcurrency int
	logger             zerolog.Logger
}

// Option customises a Processor.
type Option func(*Processor)

// WithPreviewer enables preview capture.
func WithPreviewer(p Previewer) Option {
	return func(pr *Processor) { pr.previewer = p }
}

// WithValidator replaces the default validator.
func WithValidator(v *validate.Validator) Option {
	return func(pr *Processor) {
		if v != nil {
			pr.validator = v
		}
	}
}

// WithOptimizer replaces the default optimizer.
func WithOptimizer(o *optimize.Optimizer) Option {
	return func(pr *Processor) {
		if o != nil {
			pr.optimizer = o
		}
	}
}

// WithDefaultLocale sets the locale used when a payload has none.
func WithDefaultLocale(locale string) Option {
	return func(pr *Processor) { pr.defaultLocale = locale }
}

// WithCaptureConcurrency bounds parallel captures within one job.
func WithCaptureConcurrency(n int) Option {
	return func(pr *Processor) {
		if n > 0 {
			pr.captureConcurrency = n
		}
	}
}

// WithLogger sets the processor logger.
func WithLogger(l zerolog.Logger) Option {
	return func(pr *Processor) { pr.logger = l }
}

// New wires a Processor.
func New(templates Templates, brands domain.BrandRepository, images ImageGenerator, store storage.Store, opts ...Option) *Processor {
	p := &Processor{
		templates:          templates,
		brands:             brands,
		images:             images,
		store:              store,
		validator:          validate.New(),
		optimizer:          optimize.New(),
		defaultLocale:      "en",
		captureConcurrency: 3,
		logger:             zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type attempt struct {
	job      *domain.Job
	uploaded []string
}

// Process generates every requested format for job. Returned errors are
// either fatal (domain.IsFatal) or transient; per-format render and capture
// failures are recorded in the result instead.
func (p *Processor) Process(ctx context.Context, job *domain.Job, progress func(int)) (*domain.Result, error) {
	if progress == nil {
		progress = func(int) {}
	}
	log := p.logger.With().Str("job_id", job.ID).Str("owner_id", job.OwnerID).Logger()
	payload := job.Payload

	base, err := p.templates.Compiled(payload.TemplateID)
	if err != nil {
		return nil, domain.Fatal(err)
	}
	brand, err := p.brands.GetBrand(ctx, payload.BrandID)
	if err != nil {
		if errors.Is(err, domain.ErrBrandNotFound) || errors.Is(err, domain.ErrNotFound) {
			return nil, domain.Fatal(fmt.Errorf("%w: %s", domain.ErrBrandNotFound, payload.BrandID))
		}
		return nil, fmt.Errorf("creative: load brand: %w", err)
	}

	run := &attempt{job: job}
	result, err := p.process(ctx, run, base, brand, progress, log)
	if err != nil {
		p.cleanup(run, log)
		return nil, err
	}
	return result, nil
}

func (p *Processor) process(ctx context.Context, run *attempt, base *render.Compiled, brand *domain.Brand, progress func(int), log zerolog.Logger) (*domain.Result, error) {
	payload := run.job.Payload
	result := &domain.Result{}

	formats := payload.Formats
	if len(formats) == 0 {
		formats = []domain.Format{base.Template.Format}
	}
	// Images are shared by every format, so they are sized for the first
	// requested one.
	images, err := p.acquireImages(ctx, run, formats[0], result)
	if err != nil {
		return nil, err
	}
	progress(ProgressImages)

	locale := payload.Locale
	if strings.TrimSpace(locale) == "" {
		locale = p.defaultLocale
	}
	vars := resolver.Resolve(brand, payload.Content, images, resolver.WithLocale(locale))
	progress(ProgressResolve)

	creatives := make([]domain.Creative, len(formats))
	for i, format := range formats {
		creatives[i] = p.render(base, format, vars)
		if creatives[i].Status == domain.CreativeRenderFailed {
			log.Warn().Str("format", string(format)).Str("error", creatives[i].Error).Msg("creative: render failed")
		}
	}
	progress(ProgressRender)

	for i := range creatives {
		if creatives[i].Status != domain.CreativeOK {
			continue
		}
		report := p.validator.Validate(creatives[i].HTML, creatives[i].Format)
		creatives[i].Validation = &report
	}
	progress(ProgressValidate)

	for i := range creatives {
		if creatives[i].Status != domain.CreativeOK {
			continue
		}
		creatives[i].HTML = p.optimizer.Optimize(creatives[i].HTML)
		creatives[i].CSS = p.optimizer.OptimizeCSS(creatives[i].CSS)
	}
	progress(ProgressOptimize)

	if err := p.captureAll(ctx, run, creatives, log); err != nil {
		return nil, err
	}
	progress(ProgressCapture)

	for i := range creatives {
		if creatives[i].Status == domain.CreativeRenderFailed {
			continue
		}
		doc := capture.Document(creatives[i].HTML, creatives[i].CSS, creatives[i].Format)
		obj, err := p.store.Upload(ctx, []byte(doc), "creatives/"+run.job.ID, "text/html")
		if err != nil {
			return nil, fmt.Errorf("creative: persist %s markup: %w", creatives[i].Format, err)
		}
		run.uploaded = append(run.uploaded, obj.ID)
		creatives[i].MarkupID = obj.ID
		creatives[i].MarkupURL = obj.URL
	}
	progress(ProgressPersist)

	result.Creatives = creatives
	return result, nil
}

// acquireImages fills image slots from pre-uploaded URLs or the generator.
func (p *Processor) acquireImages(ctx context.Context, run *attempt, format domain.Format, result *domain.Result) (map[string]string, error) {
	payload := run.job.Payload
	images := make(map[string]string, len(payload.Images))
	for slot, url := range payload.Images {
		if strings.TrimSpace(url) != "" {
			images[slot] = url
		}
	}
	if payload.GenerateImages {
		width, height, ok := domain.Dimensions(format)
		if !ok {
			width, height, _ = domain.Dimensions(domain.FormatSquare)
		}
		for _, d := range payload.ImageDirectives {
			if _, ok := images[d.Slot]; ok {
				continue
			}
			if p.images == nil {
				return nil, domain.Fatal(fmt.Errorf("%w: image generation is not configured", domain.ErrProviderFailure))
			}
			asset, err := p.images.Generate(ctx, image.Request{
				Slot:      d.Slot,
				Prompt:    d.Prompt,
				Style:     d.Style,
				Width:     width,
				Height:    height,
				RequestID: run.job.ID,
			})
			if err != nil {
				return nil, fmt.Errorf("creative: image %s: %w", d.Slot, err)
			}
			url := asset.URL
			if len(asset.Data) > 0 {
				mime := asset.MIME
				if mime == "" {
					mime = "image/png"
				}
				obj, err := p.store.Upload(ctx, asset.Data, "images/"+run.job.ID, mime)
				if err != nil {
					return nil, fmt.Errorf("creative: store image %s: %w", d.Slot, err)
				}
				run.uploaded = append(run.uploaded, obj.ID)
				if result.ImageIDs == nil {
					result.ImageIDs = map[string]string{}
				}
				result.ImageIDs[d.Slot] = obj.ID
				url = obj.URL
			}
			images[d.Slot] = url
		}
	}
	if len(images) > 0 {
		result.Images = images
	}
	return images, nil
}

func (p *Processor) render(base *render.Compiled, format domain.Format, vars render.Context) domain.Creative {
	out := domain.Creative{Format: format, Status: domain.CreativeOK}
	tpl := base
	if format != base.Template.Format {
		variant, err := p.templates.Lookup(format, base.Template.Category)
		if err != nil {
			out.Status = domain.CreativeRenderFailed
			out.Error = err.Error()
			return out
		}
		tpl = variant
	}
	markup, style, err := tpl.Execute(vars)
	if err != nil {
		out.Status = domain.CreativeRenderFailed
		out.Error = err.Error()
		return out
	}
	out.HTML, out.CSS = markup, style
	return out
}

// captureAll screenshots rendered creatives concurrently. A failure only
// marks its own format, unless every capture failed.
func (p *Processor) captureAll(ctx context.Context, run *attempt, creatives []domain.Creative, log zerolog.Logger) error {
	if p.previewer == nil {
		return nil
	}
	previews := make([]capture.Preview, len(creatives))
	errs := make([]error, len(creatives))
	var g errgroup.Group
	g.SetLimit(p.captureConcurrency)
	attempted := 0
	for i := range creatives {
		if creatives[i].Status != domain.CreativeOK {
			continue
		}
		attempted++
		doc := capture.Document(creatives[i].HTML, creatives[i].CSS, creatives[i].Format)
		format := creatives[i].Format
		g.Go(func() error {
			previews[i], errs[i] = p.previewer.Capture(ctx, "previews/"+run.job.ID, doc, format)
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	failed := 0
	var last error
	for i := range creatives {
		if creatives[i].Status != domain.CreativeOK {
			continue
		}
		if errs[i] != nil {
			failed++
			last = errs[i]
			creatives[i].Status = domain.CreativeCaptureFailed
			creatives[i].Error = errs[i].Error()
			log.Warn().Err(errs[i]).Str("format", string(creatives[i].Format)).Msg("creative: capture failed")
			continue
		}
		run.uploaded = append(run.uploaded, previews[i].ID)
		creatives[i].PreviewID = previews[i].ID
		creatives[i].PreviewURL = previews[i].URL
	}
	if attempted > 0 && failed == attempted {
		return fmt.Errorf("creative: every preview capture failed: %w", last)
	}
	return nil
}

// cleanup removes objects stored by a failed attempt.
func (p *Processor) cleanup(run *attempt, log zerolog.Logger) {
	if len(run.uploaded) == 0 {
		return
	}
	ctx := context.Background()
	for _, id := range run.uploaded {
		if err := p.store.Delete(ctx, id); err != nil {
			log.Warn().Err(err).Str("object_id", id).Msg("creative: cleanup failed")
		}
	}
}
