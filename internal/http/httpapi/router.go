package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"studio/internal/http/handlers"
	"studio/internal/middleware"
)

// Options configures the ambient middleware stack.
type Options struct {
	Logger          zerolog.Logger
	AllowedOrigins  []string
	RateLimitPerMin int
	DefaultLocale   string
	CountryLookup   middleware.CountryLookup
}

func NewRouter(app *handlers.App, opts Options) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		middleware.Logger(opts.Logger),
		middleware.CORS(opts.AllowedOrigins),
		middleware.I18N(opts.DefaultLocale, opts.CountryLookup),
	)

	// Health
	r.Get("/v1/healthz", app.Health)
	r.Get("/v1/openapi.json", app.OpenAPIJSON)
	r.Get("/v1/docs", app.OpenAPIDocs)

	limit := middleware.RateLimit(opts.RateLimitPerMin, time.Minute)

	r.Route("/v1/sessions", func(r chi.Router) {
		// Event streams stay open for minutes; keep them out of the rate limiter.
		r.Get("/{id}/events", app.SessionEvents)

		r.Group(func(r chi.Router) {
			r.Use(limit)
			r.Post("/", app.CreateSession)
			r.Get("/{id}", app.GetSession)
			r.Delete("/{id}", app.DeleteSession)
			r.Post("/{id}/brief", app.CreateBrief)
			r.Post("/{id}/chat", app.Chat)
			r.Get("/{id}/chat/history", app.ChatHistory)
			r.Post("/{id}/references", app.UploadReference)
			r.Post("/{id}/generations", app.StartGeneration)
			r.Delete("/{id}/generations/current", app.CancelGeneration)
			r.Put("/{id}/results/{result_id}/rating", app.RateResult)
			r.Put("/{id}/results/{result_id}/selection", app.SelectResult)
			r.Post("/{id}/feedback", app.SubmitFeedback)
			r.Post("/{id}/download", app.DownloadResults)
			r.Get("/{id}/archive", app.ArchiveResults)
		})
	})

	r.Route("/v1/generations", func(r chi.Router) {
		r.Use(limit)
		r.Get("/", app.ListGenerations)
		r.Get("/{id}", app.GetGeneration)
	})

	return r
}
