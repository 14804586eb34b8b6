package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/formrelay/internal/api"
	apiMiddleware "github.com/phrazzld/formrelay/internal/api/middleware"
)

// setupRouter creates the router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger, app.telemetry.Tracer))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	taskHandler := api.NewTaskHandler(app.taskService, app.logger)
	healthHandler := api.NewHealthHandler(app.db, app.logger)

	r.Get("/health", healthHandler.Health)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/tasks", taskHandler.EnqueueTask)
		r.Get("/tasks/{id}", taskHandler.GetTask)
		r.Get("/conversations/{id}/tasks", taskHandler.ListConversationTasks)
		r.Get("/stats", taskHandler.GetStats)
	})

	return r
}
