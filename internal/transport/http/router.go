package httptransport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter wires the pipeline endpoints. An empty signing key disables
// auth, which is only acceptable for local development.
func NewRouter(h *Handler, signingKey string) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", h.handleHealthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if signingKey != "" {
			r.Use(RequireAuth(signingKey, h.log))
		}
		r.Post("/pipeline/check", h.handleCheck)
		r.Post("/pipeline/generate", h.handleGenerate)
		r.Post("/pipeline/replace", h.handleReplace)
		r.Post("/pipeline/notify", h.handleNotify)
		r.Post("/pipeline/run", h.handleRun)
	})

	return r
}
