package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/SirAlabar/StarCendence-sub002/internal/lobby"
	"github.com/SirAlabar/StarCendence-sub002/internal/session"
)

func SetupRoutes(store *session.Store, lobbies *lobby.Manager) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/stats", Stats(store, lobbies))
	return r
}
