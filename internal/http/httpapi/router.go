package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"server/internal/http/handlers"
	"server/internal/infra"
	mw "server/internal/middleware"
)

// Options carries the router's collaborators.
type Options struct {
	App     *handlers.App
	Config  *infra.Config
	Logger  infra.Logger
	Country mw.CountryLookup
}

func NewRouter(opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		mw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		mw.Logger(opts.Logger),
		mw.CORS(opts.Config.AllowedOrigins),
		mw.I18N(opts.Config.DefaultLocale, opts.Country),
	)

	r.Get("/v1/healthz", opts.App.Health)

	r.Route("/v1", func(r chi.Router) {
		if opts.Config.RateLimitPerMin > 0 {
			r.Use(mw.RateLimit(opts.Config.RateLimitPerMin, time.Minute))
		}
		if opts.Config.APIJWTSecret != "" {
			r.Use(mw.AuthJWT(opts.Config.APIJWTSecret))
		}

		r.Post("/briefings", opts.App.BriefingsGenerate)
		r.Post("/exports", opts.App.ExportsGenerate)
		r.Post("/index/sync", opts.App.IndexSync)

		r.Route("/jobs/{job_id}", func(r chi.Router) {
			r.Get("/status", opts.App.JobStatus)
			r.Get("/artifact", opts.App.JobArtifact)
		})
	})

	return r
}
