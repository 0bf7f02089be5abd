package rest

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ppiankov/schemetrust/internal/transport/middleware"
)

// NewRouter mounts the verification API and health probes.
// adminKey guards trigger and override; empty disables the check.
func NewRouter(v *VerificationHandler, health *HealthHandler, adminKey string, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recovery(logger), middleware.Logger(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Get("/health/live", health.Live)
	r.Get("/health/ready", health.Ready)

	r.Route("/verification", func(api chi.Router) {
		api.Get("/status/{schemeID}", v.Status)
		api.Get("/evidence/{schemeID}", v.Evidence)
		api.Get("/changelog/{schemeID}", v.Changelog)
		api.Get("/dashboard", v.Dashboard)
		api.Get("/search", v.Search)

		api.Group(func(admin chi.Router) {
			admin.Use(middleware.RequireAdminKey(adminKey))
			admin.Post("/trigger", v.Trigger)
			admin.Post("/override/{schemeID}", v.Override)
		})
	})

	return r
}
