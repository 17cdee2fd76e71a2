// Package capture renders finished creatives in a headless browser and stores
// the screenshot as a preview image.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
)

// Preview references a stored screenshot.
type Preview struct {
	ID  string
	URL string
}

// Capturer screenshots documents at format size and uploads the result.
type Capturer struct {
	browser Browser
	encoder Encoder
	store   storage.Store
	timeout time.Duration
	logger  zerolog.Logger
}

// Option customises a Capturer.
type Option func(*Capturer)

// WithEncoder sets the preview encoding. PNG is the default.
func WithEncoder(e Encoder) Option {
	return func(c *Capturer) {
		if e != nil {
			c.encoder = e
		}
	}
}

// WithTimeout bounds one capture including the upload.
func WithTimeout(d time.Duration) Option {
	return func(c *Capturer) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the capturer logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Capturer) { c.logger = l }
}

// New builds a Capturer over a browser and a durable store.
func New(browser Browser, store storage.Store, opts ...Option) *Capturer {
	c := &Capturer{
		browser: browser,
		encoder: PNG{},
		store:   store,
		timeout: 30 * time.Second,
		logger:  zerolog.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Capture renders document at the authoritative size of format and stores the
// preview under folder. Every failure wraps domain.ErrCaptureFailed.
func (c *Capturer) Capture(ctx context.Context, folder, document string, format domain.Format) (Preview, error) {
	width, height, ok := domain.Dimensions(format)
	if !ok {
		return Preview{}, fmt.Errorf("%w: unknown format %q", domain.ErrCaptureFailed, format)
	}
	if c.browser == nil {
		return Preview{}, fmt.Errorf("%w: no browser configured", domain.ErrCaptureFailed)
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	started := time.Now()
	shot, err := c.browser.Screenshot(ctx, document, width, height)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Preview{}, fmt.Errorf("%w: %s timed out after %s", domain.ErrCaptureFailed, format, c.timeout)
		}
		return Preview{}, fmt.Errorf("%w: %s: %v", domain.ErrCaptureFailed, format, err)
	}
	if len(shot) == 0 {
		return Preview{}, fmt.Errorf("%w: %s: empty screenshot", domain.ErrCaptureFailed, format)
	}
	data, err := c.encoder.Encode(shot)
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %s: %v", domain.ErrCaptureFailed, format, err)
	}
	obj, err := c.store.Upload(ctx, data, folder, c.encoder.ContentType())
	if err != nil {
		return Preview{}, fmt.Errorf("%w: %s: %w", domain.ErrCaptureFailed, format, err)
	}
	c.logger.Debug().
		Str("format", string(format)).
		Str("preview_id", obj.ID).
		Dur("elapsed", time.Since(started)).
		Msg("capture: preview stored")
	return Preview{ID: obj.ID, URL: obj.URL}, nil
}

// Document wraps rendered markup and style into a standalone page whose body
// matches the format size.
func Document(markup, style string, format domain.Format) string {
	width, height, _ := domain.Dimensions(format)
	var b strings.Builder
	b.WriteString("<!DOCTYPE html><html><head><meta charset=\"utf-8\">")
	fmt.Fprintf(&b, "<meta name=\"viewport\" content=\"width=%d, height=%d\">", width, height)
	fmt.Fprintf(&b, "<style>html,body{margin:0;padding:0;width:%dpx;height:%dpx;overflow:hidden;}</style>", width, height)
	if strings.TrimSpace(style) != "" {
		b.WriteString("<style>")
		b.WriteString(style)
		b.WriteString("</style>")
	}
	b.WriteString("</head><body>")
	b.WriteString(markup)
	b.WriteString("</body></html>")
	return b.String()
}
