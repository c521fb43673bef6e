package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimid "github.com/go-chi/chi/v5/middleware"

	"github.com/appforge/engine/internal/api/handlers"
	mw "github.com/appforge/engine/internal/api/middleware"
)

type Dependencies struct {
	HMACSecret          []byte
	ApplicationsHandler *handlers.ApplicationsHandler
}

func NewRouter(dep Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.Recovery)
	r.Use(mw.Logging)
	r.Use(mw.CORS)
	r.Use(mw.RateLimit(10, 20))
	r.Use(chimid.Compress(5))

	hh := handlers.NewHealthHandler()
	r.Get("/healthz", hh.Liveness)
	r.Get("/readyz", hh.Readiness)

	r.Route("/api/v1", func(api chi.Router) {
		api.Group(func(protected chi.Router) {
			protected.Use(mw.Auth(dep.HMACSecret))

			protected.Route("/applications", func(ar chi.Router) {
				ar.Get("/", dep.ApplicationsHandler.List)
				ar.Post("/", dep.ApplicationsHandler.Create)
				ar.Get("/{id}", dep.ApplicationsHandler.Get)
				ar.Get("/{id}/deployments", dep.ApplicationsHandler.Deployments)
			})
		})
	})

	return r
}
