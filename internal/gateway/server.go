package gateway

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(g.instrument)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	r.Handle("/metrics", g.metrics.Handler())

	r.Group(func(r chi.Router) {
		if g.config.Auth.IsConfigured() {
			r.Use(authMiddleware(g.config.Auth, g.audit))
		}
		r.Use(middleware.RequestSize(g.config.MaxBodyBytes))

		r.Route("/api/projects", func(r chi.Router) {
			r.Get("/", g.handleListProjects())
			r.Route("/{project}", func(r chi.Router) {
				r.Get("/rules", g.handleRules())
				r.Get("/settings", g.handleSettings())
				r.Get("/characters", g.handleCharacters())
				r.Post("/watch", g.handleWatchStart())
				r.Delete("/watch", g.handleWatchStop())
				r.Post("/editor", g.handleEditorChanged())
				r.Get("/entities", g.handleEntityStatus())
				r.Post("/context", g.handleAssemble())
				r.Get("/memory/injection", g.handleMemoryPreview())
				r.Route("/conversations", func(r chi.Router) {
					r.Post("/", g.handleSaveConversation())
					r.Get("/", g.handleListConversations())
					r.Get("/{id}", g.handleGetConversation())
					r.Post("/{id}/summary", g.handleGenerateSummary())
				})
			})
		})
		r.Get("/ws/projects/{project}/changes", g.handleChanges())
	})

	// Admin endpoints. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit))
			r.Get("/status", g.handleStatus())
			r.Route("/api/admin", func(r chi.Router) {
				r.Get("/modules", g.handleGetAllModules())
				r.Get("/config", g.handleGetConfig())
				r.Post("/config/reload", g.handleReloadConfig())
			})
		})
	}

	return r
}
