package apihttp

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

type playerSettingsResponse struct {
	CurrentVideoID domain.VideoID `json:"currentVideoId"`
}

func (s *Server) handlePlayerSettings(w http.ResponseWriter, r *http.Request) {
	if s.playerSettings == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "player settings not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		id, _, err := s.playerSettings.GetCurrentVideoID(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, playerSettingsResponse{CurrentVideoID: id})
	case http.MethodPut:
		var req playerSettingsResponse
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		id := domain.VideoID(strings.TrimSpace(string(req.CurrentVideoID)))
		if err := s.playerSettings.SetCurrentVideoID(r.Context(), id); err != nil {
			writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
			return
		}
		// Changing the current video is the strongest pre-warm hint we get.
		if id != "" {
			s.players.Prepare(id)
		}
		writeJSON(w, http.StatusOK, playerSettingsResponse{CurrentVideoID: id})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or PUT")
	}
}
