package httpapi

import (
	stdhttp "net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/http/handlers"
	"github.com/maxence-hue/meta-ads-analytics-sub000/internal/middleware"
)

// Options carries the router's non-handler dependencies.
type Options struct {
	JWTSecret      string
	AllowedOrigins []string
	EnqueuePerMin  int
	DefaultLocale  string
	CountryLookup  middleware.CountryLookup
	// Events streams notifications for the authenticated owner. Optional.
	Events stdhttp.Handler
	// Static serves stored objects under /static when storage is local. Optional.
	Static stdhttp.Handler
	Logger zerolog.Logger
}

func NewRouter(app *handlers.App, opts Options) stdhttp.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	if opts.Static != nil {
		r.Handle("/static/*", stdhttp.StripPrefix("/static/", opts.Static))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/healthz", app.Health)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthJWT(opts.JWTSecret))

			r.Get("/templates", app.ListTemplates)

			r.Route("/creatives", func(r chi.Router) {
				r.With(middleware.RateLimit(opts.EnqueuePerMin, time.Minute)).Post("/", app.EnqueueCreative)
				r.Get("/{id}", app.CreativeStatus)
				r.Get("/{id}/bundle", app.CreativeBundle)
			})

			if opts.Events != nil {
				r.Handle("/ws", opts.Events)
			}
		})
	})

	return r
}
