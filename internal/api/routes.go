package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(m.Timeout(30 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	// v1 API routes
	r.Route("/v1", func(r chi.Router) {
		r.Route("/projects/{projectID}", func(r chi.Router) {
			// Unified timeline
			r.Get("/timeline", h.GetTimeline)
			r.Get("/notes", h.GetNotes)

			// Refresh
			r.Post("/refresh", h.RefreshAll)
			r.Post("/refresh/{category}", h.RefreshCategory)

			// Posts
			r.Route("/posts", func(r chi.Router) {
				r.Post("/", h.SavePost)
				r.Delete("/{postID}", h.DeletePost)
				r.Post("/{postID}/publish", h.PublishPostNow)
			})

			// Notes
			r.Post("/notes", h.SaveNote)
			r.Delete("/notes/{noteID}", h.DeleteNote)

			// Selection
			r.Route("/selection", func(r chi.Router) {
				r.Post("/mode", h.ToggleSelectionMode)
				r.Post("/items", h.ToggleItemSelected)
				r.Delete("/", h.BulkDeleteSelected)
			})

			// Drag gestures
			r.Route("/drag", func(r chi.Router) {
				r.Post("/begin", h.BeginDrag)
				r.Post("/drop", h.DropOnDate)
				r.Post("/end", h.EndDrag)
			})

			// Move/copy confirmation
			r.Route("/move-prompt", func(r chi.Router) {
				r.Get("/", h.GetPendingMove)
				r.Post("/confirm", h.ConfirmMove)
				r.Delete("/", h.CancelMove)
			})
		})

		// Live updates
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)
	})

	return r
}
