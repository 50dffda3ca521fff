// Package web exposes the bound collections as a JSON HTTP API:
// generic document CRUD, secret management, and the OpenAPI export of
// the registered schemas.
package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/albmarin/umongo/adapters/clock"
	"github.com/albmarin/umongo/app"
	"github.com/albmarin/umongo/ports"
)

// maxBodyBytes caps the size of accepted request bodies.
const maxBodyBytes = 1 << 20 // 1 MiB

// Handler provides the document API endpoints.
type Handler struct {
	schemas   *app.SchemaService
	documents *app.DocumentService
	logger    zerolog.Logger
	clock     ports.Clock

	metricsEnabled bool
	metricsPath    string
}

// Deps contains dependencies for the web handler.
type Deps struct {
	Schemas   *app.SchemaService
	Documents *app.DocumentService
	Logger    zerolog.Logger
	Clock     ports.Clock

	MetricsEnabled bool
	MetricsPath    string
}

// NewHandler creates a new API handler.
func NewHandler(deps Deps) *Handler {
	path := deps.MetricsPath
	if path == "" {
		path = "/metrics"
	}
	if deps.Clock == nil {
		deps.Clock = clock.Real{}
	}
	return &Handler{
		schemas:        deps.Schemas,
		documents:      deps.Documents,
		logger:         deps.Logger.With().Str("component", "web").Logger(),
		clock:          deps.Clock,
		metricsEnabled: deps.MetricsEnabled,
		metricsPath:    path,
	}
}

// Router returns the API router.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(h.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Health)
	if h.metricsEnabled {
		r.Handle(h.metricsPath, promhttp.Handler())
	}
	r.Get("/openapi.json", h.OpenAPISpec)

	r.Get("/collections", h.ListCollections)
	r.Route("/collections/{collection}", func(r chi.Router) {
		r.Get("/", h.ListDocuments)
		r.Post("/", h.CreateDocument)
		r.Get("/find", h.FindDocument)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetDocument)
			r.Patch("/", h.UpdateDocument)
			r.Delete("/", h.DeleteDocument)
			r.Put("/secret/{field}", h.SetSecret)
			r.Post("/secret/{field}/check", h.CheckSecret)
		})
	})

	return r
}

// requestLogger logs one line per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := h.clock.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		h.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("duration", h.clock.Now().Sub(start)).
			Msg("request")
	})
}
