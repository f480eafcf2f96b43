/**
 * @description
 * This file sets up the HTTP router for the interest-service using the
 * go-chi/chi router. It defines the API routes, applies middleware for
 * logging, CORS, and session authentication, and maps the routes to their
 * corresponding handler functions.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the interest-service routes.
func NewRouter(h *InterestHandlers, sessionSecret []byte, loginURL string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Interest service is healthy"))
	})

	// Protected routes that require an authenticated session. Requests
	// without one are redirected to the login page by the middleware.
	r.Group(func(r chi.Router) {
		r.Use(SessionAuthMiddleware(sessionSecret, loginURL))

		r.Get("/interests", h.ListInterestsHandler)
		r.Post("/subscriptions", h.SubscribeHandler)
		r.Delete("/subscriptions/{id}", h.UnsubscribeHandler)
		r.Delete("/interest/{id}", h.DeleteInterestHandler)
		r.Put("/interest/{id}", h.UpdateInterestHandler)
		r.Post("/item/{item_id}/follow", h.FollowItemHandler)
		r.Delete("/item/{item_id}/follow", h.UnfollowItemHandler)
	})

	return r
}
