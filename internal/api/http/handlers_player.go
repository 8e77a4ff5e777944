package apihttp

import (
	"encoding/json"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

type playerInfoResponse struct {
	Count int              `json:"count"`
	IDs   []domain.VideoID `json:"ids"`
}

type prepareRequest struct {
	IDs []domain.VideoID `json:"ids"`
}

type playbackResponse struct {
	ID       domain.VideoID   `json:"id"`
	Location string           `json:"location"`
	Media    domain.MediaInfo `json:"media"`
}

// playerMissResponse tells the UI why there is no handle yet so it can show
// a download indicator instead of an error.
type playerMissResponse struct {
	ID       domain.VideoID       `json:"id"`
	Download domain.DownloadState `json:"download"`
}

func (s *Server) handlePlayers(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		count, ids := s.players.Info()
		writeJSON(w, http.StatusOK, playerInfoResponse{Count: count, IDs: ids})
	case http.MethodDelete:
		s.players.Clear()
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}

func (s *Server) handlePlayerByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/players/")
	if rest == "prepare" {
		s.handlePrepare(w, r)
		return
	}
	if raw, ok := strings.CutSuffix(rest, "/content"); ok && raw != "" && !strings.Contains(raw, "/") {
		s.handlePlayerContent(w, r, domain.VideoID(raw))
		return
	}
	if rest == "" || strings.Contains(rest, "/") {
		writeError(w, http.StatusNotFound, "not_found", "unknown player path")
		return
	}
	id := domain.VideoID(rest)

	switch r.Method {
	case http.MethodGet:
		handle := s.players.Get(id)
		if handle == nil {
			// Absence is a normal state the UI must handle; report the
			// download side so it can decide what to show.
			miss := playerMissResponse{ID: id}
			if s.downloads != nil {
				miss.Download = s.downloads.State(id)
			}
			writeJSON(w, http.StatusNotFound, miss)
			return
		}
		writeJSON(w, http.StatusOK, playbackResponse{
			ID:       id,
			Location: handle.Location(),
			Media:    handle.Media(),
		})
	case http.MethodDelete:
		s.players.Release(id)
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET or DELETE")
	}
}

// handlePlayerContent streams the cached media bytes for one player. The
// handle keeps its file open, so a cache hit serves without touching the
// filesystem, and ServeContent gives the player UI Range support for seeking.
func (s *Server) handlePlayerContent(w http.ResponseWriter, r *http.Request, id domain.VideoID) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	handle := s.players.Get(id)
	if handle == nil {
		miss := playerMissResponse{ID: id}
		if s.downloads != nil {
			miss.Download = s.downloads.State(id)
		}
		writeJSON(w, http.StatusNotFound, miss)
		return
	}

	content := handle.Content()
	if content == nil {
		// The handle was closed between Get and here; the borrow contract
		// makes this a normal miss.
		writeError(w, http.StatusNotFound, "not_found", "player was released")
		return
	}
	// The system mime table may not know .mp4; name the type ourselves so
	// ServeContent does not fall back to sniffing.
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeContent(w, r, filepath.Base(handle.Location()), time.Time{}, content)
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use POST")
		return
	}

	var req prepareRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	ids := make([]domain.VideoID, 0, len(req.IDs))
	for _, id := range req.IDs {
		if strings.TrimSpace(string(id)) == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "ids is required")
		return
	}

	// Best-effort warm-up: construction runs in the background and a later
	// lookup may still miss.
	s.players.PreparePlayers(ids)
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(ids)})
}
