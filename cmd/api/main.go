package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/bootstrap"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/http/handlers"
	httpapi "github.com/maxence-hue/meta-ads-analytics-sub000/internal/http"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/infra/geoip"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/middleware"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/notify"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv, "api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	role := bootstrap.RoleAPI
	if cfg.WorkerEmbedded {
		role = bootstrap.RoleAll
	} else if cfg.QueueDriver == "memory" {
		logger.Warn().Msg("api: workers disabled with an in-process queue, jobs will stay pending")
	}
	rt, err := bootstrap.Build(ctx, cfg, role, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: bootstrap failed")
	}
	defer rt.Close()

	var countryLookup middleware.CountryLookup
	if countries, err := geoip.Open(cfg.GeoIPDBPath); err != nil {
		logger.Warn().Err(err).Msg("api: geoip disabled")
	} else if countries != nil {
		countryLookup = countries.Lookup()
		defer countries.Close()
	}

	app := handlers.NewApp(rt.Orchestrator, rt.Templates, logger)
	app.Ready = rt.Ready
	app.Objects = rt.Objects()
	events := notify.NewWebSocketHandler(rt.Hub, func(r *http.Request) (string, bool) {
		owner := middleware.OwnerIDFromContext(r.Context())
		return owner, owner != ""
	}, originChecker(cfg.CORSAllowedOrigins), &logger)

	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:      cfg.JWTSecret,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		EnqueuePerMin:  cfg.RateLimitPerMin,
		DefaultLocale:  cfg.DefaultLocale,
		CountryLookup:  countryLookup,
		Events:         events,
		Static:         rt.StaticHandler(),
		Logger:         logger,
	})
	server := infra.NewHTTPServer(cfg, router)

	var wg sync.WaitGroup
	if rt.Relay != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.Relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("api: event relay stopped")
			}
		}()
	}
	if role == bootstrap.RoleAll {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := rt.Orchestrator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("api: embedded workers stopped")
			}
		}()
	}

	go func() {
		logger.Info().Str("addr", server.Addr()).Bool("embedded_workers", role == bootstrap.RoleAll).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	wg.Wait()
	logger.Info().Msg("api: stopped")
}

// originChecker accepts websocket upgrades from the CORS allow list, and
// same-origin requests when the list is empty.
func originChecker(allowed []string) func(*http.Request) bool {
	if len(allowed) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		set[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}
