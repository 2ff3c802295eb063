package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the HTTP router for the API surface.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/aircraft", h.GetAircraft)
		r.Get("/aircraft/{id}", h.GetAircraftByID)
		r.Get("/aircraft/{id}/track", h.GetAircraftTrack)
		r.Post("/aircraft/{id}/select", h.SelectAircraft)
		r.Delete("/aircraft/{id}/select", h.DeselectAircraft)
		r.Get("/status", h.GetStatus)
	})

	r.Get("/ws", h.HandleWebSocket)

	return r
}
