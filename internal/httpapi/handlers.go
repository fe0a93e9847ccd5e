package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/SirAlabar/StarCendence-sub002/internal/lobby"
	"github.com/SirAlabar/StarCendence-sub002/internal/session"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// Stats exposes live counts for dashboards; read-only.
func Stats(store *session.Store, lobbies *lobby.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lobbyStats, err := lobbies.Stats(r.Context())
		if err != nil {
			http.Error(w, "stats unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(struct {
			Sessions int `json:"sessions"`
			Playing  int `json:"playing"`
			Lobbies  int `json:"lobbies"`
		}{
			Sessions: store.Len(),
			Playing:  len(store.ByStatus(session.StatusPlaying)),
			Lobbies:  lobbyStats.Lobbies,
		})
	}
}
