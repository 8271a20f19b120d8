package api

import (
	"github.com/go-chi/chi/v5"
)

// setupAPIRoutes sets up API v1 routes
func (s *RESTServer) setupAPIRoutes(r chi.Router) {
	// Health check
	r.Get("/health", s.HandleHealth)

	// Auth routes (public)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", s.HandleLogin)
		r.Post("/refresh", s.HandleRefresh)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/link", func(r chi.Router) {
			r.Get("/", s.HandleLinkStatus)
			r.Post("/rejoin", s.HandleRejoin)
			r.Post("/disconnect", s.HandleDisconnect)
		})

		r.Route("/stats", func(r chi.Router) {
			r.Get("/", s.HandleStats)
			r.Delete("/", s.HandleClearStats)
		})

		r.Route("/settings", func(r chi.Router) {
			r.Get("/", s.HandleGetSettings)
			r.Put("/", s.HandleUpdateSettings)
		})

		r.Get("/battery", s.HandleBattery)

		// Inject a downlink command frame as if received over the air.
		r.Post("/downlink", s.HandleInjectDownlink)

		r.Route("/history", func(r chi.Router) {
			r.Get("/events", s.HandleListEvents)
			r.Get("/frames", s.HandleListFrames)
		})
	})
}
