package handler

import (
	"net/http"

	"bookingsync-service/internal/domain/entity"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the API router. serveWS is the observer upgrade handler;
// the metrics endpoint is mounted by the caller.
func NewRouter(h *Handler, serveWS http.HandlerFunc) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)

	r.Get("/health", HealthCheck)
	r.Get("/ws", serveWS)

	r.Route("/users", func(r chi.Router) {
		r.Post("/", h.CreateUser)
		r.Get("/", h.List(entity.CollectionUsers))
		r.Get("/{id}", h.Get(entity.CollectionUsers))
	})
	r.Route("/cities", func(r chi.Router) {
		r.Post("/", h.CreateCity)
		r.Get("/", h.List(entity.CollectionCities))
		r.Get("/{id}", h.Get(entity.CollectionCities))
	})
	r.Route("/aircrafts", func(r chi.Router) {
		r.Post("/", h.CreateAircraft)
		r.Get("/", h.List(entity.CollectionAircrafts))
		r.Get("/{id}", h.Get(entity.CollectionAircrafts))
	})
	r.Route("/flights", func(r chi.Router) {
		r.Post("/", h.CreateFlight)
		r.Get("/", h.List(entity.CollectionFlights))
		r.Get("/{id}", h.Get(entity.CollectionFlights))
		r.Patch("/{id}/status", h.UpdateFlightStatus)
	})
	r.Route("/bookings", func(r chi.Router) {
		r.Post("/", h.CreateBooking)
		r.Get("/", h.List(entity.CollectionBookings))
		r.Get("/{id}", h.Get(entity.CollectionBookings))
		r.Patch("/{id}", h.UpdateBooking)
	})

	return r
}
