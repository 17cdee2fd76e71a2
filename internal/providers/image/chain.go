package image

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
)

// Chain tries providers in order until one produces an image.
type Chain struct {
	providers []Provider
	timeout   time.Duration
	logger    zerolog.Logger
	synthetic bool
}

// ChainOption customises a Chain.
type ChainOption func(*Chain)

// WithTimeout bounds each provider attempt.
func WithTimeout(d time.Duration) ChainOption {
	return func(c *Chain) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger used for fallback notices.
func WithLogger(l zerolog.Logger) ChainOption {
	return func(c *Chain) { c.logger = l }
}

// WithoutSynthetic keeps the chain exactly as given.
func WithoutSynthetic() ChainOption {
	return func(c *Chain) { c.synthetic = false }
}

// NewChain builds a chain over providers. A synthetic provider is appended
// when none is present.
func NewChain(providers []Provider, opts ...ChainOption) *Chain {
	c := &Chain{
		timeout:   45 * time.Second,
		logger:    zerolog.New(io.Discard),
		synthetic: true,
	}
	for _, opt := range opts {
		opt(c)
	}
	hasSynthetic := false
	for _, p := range providers {
		if p == nil {
			continue
		}
		if p.Name() == "synthetic" {
			hasSynthetic = true
		}
		c.providers = append(c.providers, p)
	}
	if c.synthetic && !hasSynthetic {
		c.providers = append(c.providers, NewSynthetic())
	}
	return c
}

// Names lists the providers in attempt order.
func (c *Chain) Names() []string {
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Generate returns the first successful asset. When every configured
// provider fails the error wraps domain.ErrProviderFailure.
func (c *Chain) Generate(ctx context.Context, req Request) (Asset, error) {
	var failures []string
	for _, p := range c.providers {
		if !p.Configured() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Asset{}, err
		}
		asset, err := c.attempt(ctx, p, req)
		if err == nil {
			if asset.Provider == "" {
				asset.Provider = p.Name()
			}
			return asset, nil
		}
		if ctx.Err() != nil {
			return Asset{}, ctx.Err()
		}
		c.logger.Warn().
			Err(err).
			Str("provider", p.Name()).
			Str("slot", req.Slot).
			Msg("image: provider failed; trying next")
		failures = append(failures, fmt.Sprintf("%s: %v", p.Name(), err))
	}
	if len(failures) == 0 {
		return Asset{}, fmt.Errorf("%w: no configured provider", domain.ErrProviderFailure)
	}
	return Asset{}, fmt.Errorf("%w: %s", domain.ErrProviderFailure, strings.Join(failures, "; "))
}

func (c *Chain) attempt(ctx context.Context, p Provider, req Request) (asset Asset, err error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	asset, err = p.Generate(attemptCtx, req)
	if err == nil && len(asset.Data) == 0 && asset.URL == "" {
		err = errors.New("empty asset")
	}
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", c.timeout, err)
	}
	return asset, err
}
