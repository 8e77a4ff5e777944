package apihttp

import (
	"net/http"
	"strings"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

// handleVideoDownload serves /videos/{id}/download.
func (s *Server) handleVideoDownload(w http.ResponseWriter, r *http.Request) {
	if s.downloads == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "download manager not configured")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/videos/")
	parts := strings.Split(rest, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "download" {
		writeError(w, http.StatusNotFound, "not_found", "unknown video path")
		return
	}
	id := domain.VideoID(parts[0])

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, domain.DownloadEvent{ID: id, State: s.downloads.State(id)})
	case http.MethodPost:
		if err := s.downloads.Start(r.Context(), id); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		writeJSON(w, http.StatusAccepted, domain.DownloadEvent{ID: id, State: s.downloads.State(id)})
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or POST")
	}
}
