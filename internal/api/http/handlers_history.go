package apihttp

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/tianzhicdev/dogetionary-sub001/internal/domain"
)

func (s *Server) handleWatchHistory(w http.ResponseWriter, r *http.Request) {
	if s.watchHistory == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "watch history not configured")
		return
	}

	switch r.Method {
	case http.MethodGet:
		limit := 20
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed <= 0 || parsed > 200 {
				writeError(w, http.StatusBadRequest, "invalid_request", "limit must be 1-200")
				return
			}
			limit = parsed
		}
		positions, err := s.watchHistory.ListRecent(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, positions)
	case http.MethodPut, http.MethodPost:
		var wp domain.WatchPosition
		if err := json.NewDecoder(r.Body).Decode(&wp); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
			return
		}
		if strings.TrimSpace(string(wp.VideoID)) == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "videoId is required")
			return
		}
		if wp.Position < 0 || wp.Duration < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "position and duration must be non-negative")
			return
		}
		if err := s.watchHistory.Upsert(r.Context(), wp); err != nil {
			writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET, POST or PUT")
	}
}

func (s *Server) handleWatchHistoryByID(w http.ResponseWriter, r *http.Request) {
	if s.watchHistory == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "watch history not configured")
		return
	}
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "use GET")
		return
	}

	id := domain.VideoID(strings.TrimPrefix(r.URL.Path, "/watch-history/"))
	if id == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown watch history path")
		return
	}

	wp, err := s.watchHistory.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no watch position for video")
			return
		}
		writeError(w, http.StatusInternalServerError, "repository_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, wp)
}
