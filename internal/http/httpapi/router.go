package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"doctrans/internal/http/handlers"
	"doctrans/internal/infra"
	"doctrans/internal/middleware"
)

// NewRouter assembles the API surface in front of the orchestration core.
func NewRouter(app *handlers.App, cfg *infra.Config, logger infra.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.Logger(logger),
		middleware.CORS(cfg.AllowedOrigins),
		chimw.Recoverer,
	)

	r.Get("/v1/healthz", app.Health)

	r.Route("/api", func(r chi.Router) {
		limited := middleware.RateLimit(cfg.RateLimitPerMin, time.Minute)

		r.With(limited).Post("/upload", app.Upload)
		r.With(limited).Post("/translate", app.Translate)

		r.Route("/translation/{task_id}", func(r chi.Router) {
			r.Get("/status", app.TranslationStatus)
			r.Get("/ws", app.TranslationProgress)
			r.Post("/cancel", app.TranslationCancel)
			r.Get("/download", app.DownloadBundle)
			r.Get("/download/{kind}", app.Download)
			r.Delete("/", app.TranslationDelete)
		})

		r.Get("/translations", app.TranslationList)
		r.Delete("/translations", app.TranslationDeleteMany)

		r.With(limited).Post("/glossary/upload", app.GlossaryUpload)
		r.Get("/glossaries", app.GlossaryList)
		r.Delete("/glossary/{glossary_id}", app.GlossaryDelete)

		r.Post("/files/cleanup", app.FilesCleanup)
		r.Get("/files/stats", app.FilesStats)
	})

	return r
}
