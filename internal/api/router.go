package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		r.Get("/metrics", s.handleMetrics)
		r.Handle("/metrics/prometheus", promhttp.Handler())

		// Auth via single-use ticket, validated in the handler.
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			r.Route("/things", func(r chi.Router) {
				r.Get("/", s.handleListMyThings)
				r.Post("/directmethod", s.handleDirectMethod)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetThing)
					r.Get("/shadow", s.handleGetShadow)
					r.Get("/status", s.handleGetStatus)
					r.Post("/claim", s.handleClaim)
					r.Post("/release", s.handleRelease)
				})
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(s.requireAdmin)

				r.Get("/devices", s.handleListAllDevices)
				r.Post("/devices", s.handleOnboardDevice)
				r.Get("/devices/stats", s.handleDeviceStats)
				r.Delete("/devices/{id}", s.handleDeleteDevice)
				r.Post("/devices/{id}/release", s.handleForceRelease)
				r.Get("/audit", s.handleListAuditLogs)
			})
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"version": s.version,
	}
	if s.mqtt != nil {
		resp["mqtt_connected"] = s.mqtt.IsConnected()
	}
	if s.db != nil {
		if err := s.db.HealthCheck(r.Context()); err != nil {
			resp["status"] = "degraded"
			resp["database"] = err.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
