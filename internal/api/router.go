package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
//
// Queries are public. Mutations go through authMiddleware and are submitted
// as the token's principal.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/stats", s.handleStats)
		r.Get("/journal/head", s.handleJournalHead)
		r.Get("/journal/entries", s.handleJournalEntries)
		r.Get("/ws", s.handleWebSocket)

		r.Route("/devices", func(r chi.Router) {
			r.With(s.authMiddleware).Post("/", s.handleRegisterDevice)

			r.Route("/{device}", func(r chi.Router) {
				authed := r.With(s.authMiddleware)

				r.Get("/", s.handleGetDevice)
				authed.Put("/active", s.handleSetDeviceActive)

				r.Get("/permissions/{operator}", s.handleGetPermission)
				authed.Put("/permissions/{operator}", s.handleSetPermission)

				authed.Post("/data", s.handleStoreData)
				r.Get("/data/{timestamp}", s.handleGetData)
				r.Get("/aggregations/{dataType}", s.handleGetAggregation)

				authed.Post("/triggers", s.handleCreateTrigger)
				r.Get("/triggers/{triggerID}", s.handleGetTrigger)
				authed.Put("/triggers/{triggerID}/active", s.handleSetTriggerActive)
			})
		})

		r.Route("/groups", func(r chi.Router) {
			r.With(s.authMiddleware).Post("/", s.handleCreateGroup)

			r.Route("/{group}", func(r chi.Router) {
				authed := r.With(s.authMiddleware)

				r.Get("/", s.handleGetGroup)
				authed.Put("/devices/{device}", s.handleAddDevice)

				authed.Post("/alerts", s.handleCreateAlert)
				r.Get("/alerts/{alertID}", s.handleGetAlert)
				authed.Post("/alerts/{alertID}/resolve", s.handleResolveAlert)
			})
		})
	})

	return r
}
