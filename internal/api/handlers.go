package api

import (
	"encoding/json"
	"net/http"
	"strconv"
)

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.coord.Snapshot())
}

func (a *API) handleReplay(w http.ResponseWriter, r *http.Request) {
	lines := a.coord.ReplayLines()
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, map[string]interface{}{"lines": lines})
}

func (a *API) handleSessions(w http.ResponseWriter, r *http.Request) {
	if a.store == nil {
		http.Error(w, "session history is not configured", http.StatusNotImplemented)
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 200 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = n
	}

	sessions, err := a.store.RecentSessions(r.Context(), limit)
	if err != nil {
		http.Error(w, "failed to load sessions", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]interface{}{"sessions": sessions})
}

// handleStopSession force-unloads the running game, same as a channel
// !stopgame.
func (a *API) handleStopSession(w http.ResponseWriter, r *http.Request) {
	a.coord.Unload()
	writeJSON(w, map[string]string{"message": "stop requested"})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
