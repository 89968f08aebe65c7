package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		r.Use(apiHandler.OptionalAuth)

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Route("/entities/Task", func(r chi.Router) {
			r.Get("/", apiHandler.ListTasksHandler)
			r.Post("/", apiHandler.CreateTaskHandler)
			r.Get("/{taskID}", apiHandler.GetTaskHandler)
			r.Put("/{taskID}", apiHandler.UpdateTaskHandler)
			r.Patch("/{taskID}", apiHandler.UpdateTaskHandler)
			r.Delete("/{taskID}", apiHandler.DeleteTaskHandler)
		})

		r.Handle("/functions/{name}", apiHandler.functions)

		r.Route("/auth", func(r chi.Router) {
			r.Get("/login/{provider}", apiHandler.LoginHandler)
			r.Get("/callback/{provider}", apiHandler.CallbackHandler)
			r.Get("/logout", apiHandler.LogoutHandler)
			r.With(RequireAuth).Get("/me", apiHandler.MeHandler)
			r.With(RequireAuth).Get("/token", apiHandler.TokenHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Post("/agents/conversations", apiHandler.CreateConversationHandler)
			r.Get("/agents/conversations/{conversationID}", apiHandler.GetConversationHandler)
			r.Post("/agents/conversations/{conversationID}/messages", apiHandler.AddMessageHandler)
			r.Get("/agents/conversations/{conversationID}/subscribe", apiHandler.SubscribeHandler)
		})
	})

	return r
}
