package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func SetupRoutes(api *API, wsHandler http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Get("/ws", wsHandler)
	r.Get("/reset", api.Reset)
	r.Get("/status", api.Status)
	r.Get("/api/state", api.State)
	r.Get("/api/behaviors", api.Behaviors)
	r.Post("/api/behaviors", api.AddBehavior)
	r.Get("/healthz", Healthz)
	return r
}
