package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/luminlabs/pulse/internal/config"
)

// SetupRoutes configures the API routes.
func SetupRoutes(cfg config.ServerConfig, h *Handlers, hc *HealthChecker) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:5173", "http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", hc.HandleHealth)
	r.Get("/health/live", hc.HandleLiveness)
	r.Get("/health/ready", hc.HandleReadiness)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/signals", h.IngestSignal)
		r.Post("/signals/batch", h.IngestSignalBatch)

		r.Route("/organizations/{orgID}", func(r chi.Router) {
			r.Get("/scores", h.ListScores)
			r.Get("/scores/{accountID}", h.GetScore)
			r.Post("/scores/{accountID}/recompute", h.RecomputeScore)

			r.Get("/notifications", h.ListNotifications)
			r.Post("/notifications/{id}/read", h.MarkNotificationRead)

			r.Route("/subscriptions", func(r chi.Router) {
				r.Get("/", h.ListSubscriptions)
				r.Post("/", h.CreateSubscription)
				r.Get("/{id}", h.GetSubscription)
				r.Delete("/{id}", h.DeleteSubscription)
				r.Get("/{id}/attempts", h.ListDeliveryAttempts)
			})

			r.Route("/alert-rules", func(r chi.Router) {
				r.Get("/", h.ListAlertRules)
				r.Post("/", h.CreateAlertRule)
				r.Patch("/{id}", h.UpdateAlertRule)
				r.Delete("/{id}", h.DeleteAlertRule)
			})
		})

		r.Route("/admin/queues", func(r chi.Router) {
			r.Get("/{lane}/depth", h.QueueDepth)
			r.Get("/{lane}/dead-letters", h.QueueDeadLetters)
		})
	})

	return r
}
