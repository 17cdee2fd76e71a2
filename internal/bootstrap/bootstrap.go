// Package bootstrap assembles the pipeline from configuration. Both the API
// and the standalone worker build their runtime here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/adapter/repo"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/capture"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/creative"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/domain"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra/credentials"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/jobs"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/notify"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/providers/image"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/providers/qwen"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/queue"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/storage"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/templates"
)

// Role selects which parts of the runtime are built.
type Role int

const (
	// RoleAPI builds enqueue/status plumbing and the notification hub.
	RoleAPI Role = iota
	// RoleWorker builds the processing pipeline.
	RoleWorker
	// RoleAll builds both, for an API with embedded workers.
	RoleAll
)

func (r Role) api() bool     { return r == RoleAPI || r == RoleAll }
func (r Role) workers() bool { return r == RoleWorker || r == RoleAll }

// Runtime holds the assembled components. Close releases them in reverse
// order of construction.
type Runtime struct {
	Config       *infra.Config
	Orchestrator *jobs.Orchestrator
	Templates    *templates.Store
	Store        storage.Store
	// Files is set when objects live on the local filesystem.
	Files *storage.FileStore
	// Hub delivers events to websocket subscribers in this process.
	Hub *notify.Hub
	// Relay feeds Hub from Redis when events cross processes.
	Relay *notify.RedisRelay

	pool    *pgxpool.Pool
	redis   *redis.Client
	closers []func()
	logger  zerolog.Logger
}

// Build wires every component the role needs.
func Build(ctx context.Context, cfg *infra.Config, role Role, logger zerolog.Logger) (*Runtime, error) {
	rt := &Runtime{Config: cfg, logger: logger}
	if err := rt.build(ctx, role); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

func (rt *Runtime) build(ctx context.Context, role Role) (err error) {
	cfg, logger := rt.Config, rt.logger

	if cfg.NeedsPostgres() {
		rt.pool, err = infra.NewDBPool(ctx, cfg)
		if err != nil {
			return err
		}
		rt.closers = append(rt.closers, rt.pool.Close)
		if err := repo.EnsureSchema(ctx, rt.sql()); err != nil {
			return err
		}
	}
	if cfg.QueueDriver == "redis" {
		rt.redis, err = infra.NewRedisClient(ctx, cfg)
		if err != nil {
			return err
		}
		client := rt.redis
		rt.closers = append(rt.closers, func() { _ = client.Close() })
	}

	rt.Templates, err = loadTemplates(cfg)
	if err != nil {
		return err
	}
	jobRepo, err := rt.jobRepository()
	if err != nil {
		return err
	}
	brands, err := rt.brandRepository()
	if err != nil {
		return err
	}
	if err := rt.buildStorage(); err != nil {
		return err
	}

	var q queue.Queue
	var publisher notify.Publisher
	if rt.redis != nil {
		q = queue.NewRedis(rt.redis, queue.DefaultKey)
		publisher = notify.NewRedisPublisher(rt.redis, cfg.NotifyChannel)
	} else {
		mem := queue.NewMemory()
		rt.closers = append(rt.closers, mem.Close)
		q = mem
	}
	if role.api() {
		rt.Hub = notify.NewHub(64)
		if rt.redis != nil {
			rt.Relay = notify.NewRedisRelay(rt.redis, cfg.NotifyChannel, rt.Hub, &logger)
		} else {
			publisher = rt.Hub
		}
	}

	var processor jobs.Processor
	if role.workers() {
		processor, err = rt.buildProcessor(ctx, brands)
		if err != nil {
			return err
		}
	}

	rt.Orchestrator = jobs.New(jobRepo, q, processor, publisher,
		jobs.WithConcurrency(cfg.WorkerConcurrency),
		jobs.WithMaxAttempts(cfg.WorkerMaxAttempts),
		jobs.WithBackoff(cfg.WorkerBackoffBase, cfg.WorkerBackoffMax),
		jobs.WithRetention(cfg.JobRetention),
		jobs.WithSweepInterval(cfg.JobSweepInterval),
		jobs.WithStaleAfter(cfg.JobStaleAfter),
		jobs.WithCatalog(rt.Templates, brands),
		jobs.WithObjectDeleter(rt.Store),
		jobs.WithLogger(logger.With().Str("module", "jobs").Logger()),
	)
	return nil
}

// Ready pings the external dependencies.
func (rt *Runtime) Ready(ctx context.Context) error {
	var errs []error
	if rt.pool != nil {
		if err := rt.pool.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("postgres: %w", err))
		}
	}
	if rt.redis != nil {
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, fmt.Errorf("redis: %w", err))
		}
	}
	return errors.Join(errs...)
}

// StaticHandler serves locally stored objects, or nil when storage is remote.
func (rt *Runtime) StaticHandler() http.Handler {
	if rt.Files == nil {
		return nil
	}
	return http.FileServer(http.Dir(rt.Files.BasePath()))
}

// Objects returns the store as a reader when it supports reads.
func (rt *Runtime) Objects() storage.Reader {
	r, _ := rt.Store.(storage.Reader)
	return r
}

// Close releases every resource Build acquired.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

func (rt *Runtime) sql() *infra.SQLRunner {
	return infra.NewSQLRunner(rt.pool, rt.logger)
}

func loadTemplates(cfg *infra.Config) (*templates.Store, error) {
	var opts []templates.Option
	if dir := strings.TrimSpace(cfg.TemplateDir); dir != "" {
		opts = append(opts, templates.WithDir(dir))
	}
	store, err := templates.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}
	return store, nil
}

func (rt *Runtime) jobRepository() (domain.JobRepository, error) {
	switch rt.Config.JobStore {
	case "postgres":
		return repo.NewJobRepository(rt.sql()), nil
	case "sqlite":
		path := rt.Config.SQLitePath
		if dir := filepath.Dir(path); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite: ensure directory: %w", err)
			}
		}
		r, err := repo.OpenSQLiteJobRepository(path)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = r.Close() })
		return r, nil
	default:
		return repo.NewMemoryJobRepository(), nil
	}
}

func (rt *Runtime) brandRepository() (domain.BrandRepository, error) {
	switch rt.Config.BrandSource {
	case "postgres":
		return repo.NewBrandRepository(rt.sql()), nil
	case "supabase":
		return repo.NewBrandRepositorySupabase(rt.Config.SupabaseURL, rt.Config.SupabaseServiceKey)
	default:
		return repo.NewMemoryBrandRepository(repo.DemoBrand), nil
	}
}

func (rt *Runtime) buildStorage() error {
	cfg := rt.Config
	if cfg.StorageDriver == "supabase" {
		s, err := storage.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket)
		if err != nil {
			return err
		}
		rt.Store = s
		return nil
	}
	path := cfg.StoragePath
	if !filepath.IsAbs(path) {
		if abs, err := filepath.Abs(path); err == nil {
			path = abs
		}
	}
	fs, err := storage.NewFileStore(path, cfg.StorageBaseURL)
	if err != nil {
		return err
	}
	rt.Files = fs
	rt.Store = fs
	return nil
}

func (rt *Runtime) buildProcessor(ctx context.Context, brands domain.BrandRepository) (jobs.Processor, error) {
	cfg := rt.Config
	providers, err := rt.imageProviders(ctx)
	if err != nil {
		return nil, err
	}
	chain := image.NewChain(providers,
		image.WithTimeout(cfg.ProviderTimeout),
		image.WithLogger(rt.logger.With().Str("module", "images").Logger()),
	)

	opts := []creative.Option{
		creative.WithDefaultLocale(cfg.DefaultLocale),
		creative.WithLogger(rt.logger.With().Str("module", "creative").Logger()),
	}
	if cfg.CaptureEnabled {
		encoder, err := capture.EncoderFor(cfg.CaptureEncoding, cfg.CaptureQuality)
		if err != nil {
			return nil, err
		}
		chrome, err := capture.NewChrome(capture.ChromeOptions{
			ExecPath:  cfg.ChromePath,
			Settle:    cfg.CaptureSettle,
			NoSandbox: cfg.AppEnv != "development",
		})
		if err != nil {
			rt.logger.Warn().Err(err).Msg("bootstrap: chrome unavailable, previews disabled")
		} else {
			rt.closers = append(rt.closers, chrome.Close)
			opts = append(opts, creative.WithPreviewer(capture.New(chrome, rt.Store,
				capture.WithEncoder(encoder),
				capture.WithTimeout(cfg.CaptureTimeout),
				capture.WithLogger(rt.logger.With().Str("module", "capture").Logger()),
			)))
		}
	}
	return creative.New(rt.Templates, brands, chain, rt.Store, opts...), nil
}

// imageProviders builds the configured providers in order. Keys fall back
// to the credential store when Postgres is available.
func (rt *Runtime) imageProviders(ctx context.Context) ([]image.Provider, error) {
	cfg := rt.Config
	var creds *credentials.Store
	if rt.pool != nil {
		creds = credentials.NewStore(rt.sql())
	}
	resolve := func(provider, configured string) string {
		if creds == nil {
			return strings.TrimSpace(configured)
		}
		key, err := creds.Resolve(ctx, provider, configured)
		if err != nil {
			rt.logger.Warn().Err(err).Str("provider", provider).Msg("bootstrap: credential lookup failed")
			return strings.TrimSpace(configured)
		}
		return key
	}

	var out []image.Provider
	for _, name := range cfg.ImageProviders {
		switch strings.ToLower(name) {
		case credentials.ProviderGemini:
			g, err := image.NewGemini(ctx, resolve(credentials.ProviderGemini, cfg.GeminiAPIKey), cfg.GeminiModel)
			if err != nil {
				return nil, err
			}
			out = append(out, g)
		case credentials.ProviderQwen:
			client := qwen.NewClient(qwen.Options{
				APIKey:         resolve(credentials.ProviderQwen, cfg.QwenAPIKey),
				BaseURL:        cfg.QwenBaseURL,
				Model:          cfg.QwenModel,
				RequestTimeout: cfg.ProviderTimeout,
				Logger:         &rt.logger,
			})
			out = append(out, image.NewQwen(client))
		case "synthetic":
			// The chain always ends with the synthetic provider.
		default:
			return nil, fmt.Errorf("unknown image provider %q", name)
		}
	}
	return out, nil
}
